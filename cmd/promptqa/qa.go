package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/promptqa/internal/export"
	"github.com/dshills/promptqa/internal/router"
	"github.com/dshills/promptqa/internal/schema"
)

type qaFlags struct {
	format      string
	workers     int
	failOnDraft bool
	tags        []string
	category    string
}

func newQACmd(a *app) *cobra.Command {
	var f qaFlags
	cmd := &cobra.Command{
		Use:   "qa <file|dir>...",
		Short: "Score prompt templates and propose patches",
		Long: `qa classifies each prompt by modality, scores it against that modality's
rubric and appends any missing sections as a patch. Plain text files are read
as template text; YAML and JSON files are read as content records.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQA(a, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.format, "format", "f", "json", "Output format: json or markdown")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Concurrent evaluations (default qa.workers)")
	cmd.Flags().BoolVar(&f.failOnDraft, "fail-on-draft", false, "Exit 2 when any prompt is below the verified level")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Tags applied to plain text prompts for routing")
	cmd.Flags().StringVar(&f.category, "category", "", "Category applied to plain text prompts for routing")
	return cmd
}

func runQA(a *app, f qaFlags, args []string) error {
	if f.format != "json" && f.format != "markdown" {
		return withCode(exitCodeBadInput, "unknown format %q (want json or markdown)", f.format)
	}
	paths, err := expandPaths(args, isPromptFile)
	if err != nil {
		return err
	}
	srcs := make([]schema.ContentSource, 0, len(paths))
	for _, p := range paths {
		src, err := loadSource(p, f.tags, f.category)
		if err != nil {
			return err
		}
		srcs = append(srcs, src)
	}

	workers := f.workers
	if workers <= 0 {
		workers = a.cfg.QA.Workers
	}
	a.logger.Info("Evaluating prompts", zap.Int("count", len(srcs)), zap.Int("workers", workers))

	ctx, cancel := a.runContext()
	defer cancel()
	results, err := router.EvaluateAll(ctx, srcs, workers)
	if err != nil {
		return err
	}

	var drafts []string
	for _, r := range results {
		a.logger.Debug("Prompt evaluated",
			zap.String("id", r.ID),
			zap.Stringer("route", r.Route),
			zap.Int("score", r.Before.Score),
			zap.Int("patched_score", r.After.Score))
		if r.Before.Level != schema.LevelVerified {
			drafts = append(drafts, r.ID)
		}
	}

	if f.format == "markdown" {
		fmt.Fprint(a.out, export.Markdown(results))
	} else if err := writeJSON(a.out, results); err != nil {
		return err
	}

	if f.failOnDraft && len(drafts) > 0 {
		return withCode(exitCodeFailOn, "%d prompt(s) below verified: %s", len(drafts), strings.Join(drafts, ", "))
	}
	return nil
}

func newPatchCmd(a *app) *cobra.Command {
	var (
		format   string
		tags     []string
		category string
	)
	cmd := &cobra.Command{
		Use:   "patch <file>",
		Short: "Append missing sections to a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := loadSource(args[0], tags, category)
			if err != nil {
				return err
			}
			res := router.Pipeline(src)
			a.logger.Info("Patched prompt",
				zap.String("id", res.ID),
				zap.Int("before", res.Before.Score),
				zap.Int("after", res.After.Score),
				zap.Strings("changes", res.Patch.Changes))
			switch format {
			case "text":
				fmt.Fprintln(a.out, strings.TrimRight(res.Patch.Patched, "\n"))
				return nil
			case "json":
				return writeJSON(a.out, res)
			}
			return withCode(exitCodeBadInput, "unknown format %q (want text or json)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags applied to plain text prompts for routing")
	cmd.Flags().StringVar(&category, "category", "", "Category applied to plain text prompts for routing")
	return cmd
}
