package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/promptqa/internal/config"
	"github.com/dshills/promptqa/internal/export"
	"github.com/dshills/promptqa/internal/submission"
	"github.com/dshills/promptqa/internal/submission/sqlitestore"
)

// openStore returns the configured submission store and its closer. The
// memory store lives only as long as the process.
func (a *app) openStore() (submission.Store, func() error, error) {
	switch a.cfg.Submission.Store {
	case config.StoreSQLite:
		s, err := sqlitestore.Open(a.cfg.Submission.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		if a.mem == nil {
			a.mem = submission.NewMemStore()
		}
		return a.mem, func() error { return nil }, nil
	}
}

func newSubmitCmd(a *app) *cobra.Command {
	var (
		submitter string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "submit <asset>",
		Short: "Score an asset and record it as verified, submitted or rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, cancel := a.runContext()
			defer cancel()
			sc := submission.NewScorer(store)
			sc.Now = a.now
			sub, err := sc.Submit(ctx, as, submitter)
			if err != nil {
				return err
			}
			a.logger.Info("Recorded submission",
				zap.String("id", sub.ID),
				zap.String("ref", as.Ref()),
				zap.String("status", string(sub.Status)),
				zap.Int("score", sub.Score))

			if err := writeSubmission(a, sub, format); err != nil {
				return err
			}
			if sub.Status == submission.StatusRejected {
				return withCode(exitCodeFailOn, "submission %s rejected with score %d", sub.ID, sub.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&submitter, "submitter", "", "Submitter id (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or markdown")
	_ = cmd.MarkFlagRequired("submitter")
	return cmd
}

func writeSubmission(a *app, sub submission.Submission, format string) error {
	switch format {
	case "json":
		return writeJSON(a.out, sub)
	case "markdown":
		fmt.Fprint(a.out, export.SubmissionMarkdown(sub))
		return nil
	}
	return withCode(exitCodeBadInput, "unknown format %q (want json or markdown)", format)
}

// submissionSummary is one row of submissions list.
type submissionSummary struct {
	ID          string            `json:"id"`
	AssetID     string            `json:"asset_id"`
	Version     string            `json:"version"`
	SubmitterID string            `json:"submitter_id"`
	Status      submission.Status `json:"status"`
	Score       int               `json:"score"`
	CreatedAt   string            `json:"created_at"`
}

func newSubmissionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Inspect recorded submissions (requires submission.store = sqlite to persist)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List submissions oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			ctx, cancel := a.runContext()
			defer cancel()

			subs, err := store.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]submissionSummary, len(subs))
			for i, s := range subs {
				rows[i] = submissionSummary{
					ID: s.ID, AssetID: s.AssetID, Version: s.Version, SubmitterID: s.SubmitterID,
					Status: s.Status, Score: s.Score, CreatedAt: s.CreatedAt.Format(time.RFC3339),
				}
			}
			return writeJSON(a.out, rows)
		},
	}

	var format string
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one submission with its full report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			ctx, cancel := a.runContext()
			defer cancel()

			sub, err := store.Get(ctx, args[0])
			if errors.Is(err, submission.ErrNotFound) {
				return withCode(exitCodeBadInput, "submission %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return writeSubmission(a, sub, format)
		},
	}
	get.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or markdown")

	cmd.AddCommand(list, get)
	return cmd
}
