package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/assetqa"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/repair"
)

func newAssetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Validate, render, run and check prompt assets",
	}
	cmd.AddCommand(
		newAssetValidateCmd(a),
		newAssetRenderCmd(a),
		newAssetRunCmd(a),
		newAssetCheckCmd(a),
		newAssetPatchCmd(a),
	)
	return cmd
}

// assetReport is the validate output for one file.
type assetReport struct {
	Path   string        `json:"path"`
	Ref    string        `json:"ref,omitempty"`
	Valid  bool          `json:"valid"`
	Issues []asset.Issue `json:"issues"`
}

type validateReport struct {
	Assets     []assetReport `json:"assets"`
	Duplicates []asset.Issue `json:"duplicates"`
}

func newAssetValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Check asset structure, variables, block keys and adapters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args, asset.IsAssetFile)
			if err != nil {
				return err
			}
			rep := validateReport{Assets: []assetReport{}, Duplicates: []asset.Issue{}}
			var loaded []asset.Asset
			invalid := 0
			for _, p := range paths {
				ar := assetReport{Path: p}
				as, issues, err := asset.LoadFile(p)
				switch {
				case err != nil:
					return &exitError{code: exitCodeBadInput, err: err}
				case len(issues) > 0:
					ar.Issues = issues
				default:
					res := asset.Validate(as)
					ar.Ref, ar.Valid, ar.Issues = as.Ref(), res.Valid, res.Issues
					loaded = append(loaded, *as)
				}
				if !ar.Valid {
					invalid++
				}
				rep.Assets = append(rep.Assets, ar)
			}
			if dups := asset.Duplicates(loaded); len(dups) > 0 {
				rep.Duplicates = dups
			}
			a.logger.Info("Validated assets", zap.Int("count", len(paths)), zap.Int("invalid", invalid))

			if err := writeJSON(a.out, rep); err != nil {
				return err
			}
			if invalid > 0 || len(rep.Duplicates) > 0 {
				return withCode(exitCodeFailOn, "%d invalid asset(s), %d duplicate(s)", invalid, len(rep.Duplicates))
			}
			return nil
		},
	}
}

func newAssetRenderCmd(a *app) *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "render <asset>",
		Short: "Resolve inputs and print the model payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			inputs, err := in.values()
			if err != nil {
				return err
			}
			r := render.Render(as, inputs, a.renderOptions())
			if !r.OK() {
				if err := writeJSON(a.out, r.InputValidation); err != nil {
					return err
				}
				return withCode(exitCodeBadInput, "%d input error(s)", len(r.InputValidation.Errors))
			}
			return writeJSON(a.out, r.Payload(as, a.now()))
		},
	}
	in.register(cmd)
	return cmd
}

func newAssetRunCmd(a *app) *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "run <asset>",
		Short: "Render an asset, call the model and repair invalid structured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			inputs, err := in.values()
			if err != nil {
				return err
			}
			ctx, cancel := a.runContext()
			defer cancel()

			a.logger.Info("Running asset", zap.String("ref", as.Ref()))
			rc, err := a.orchestrator().Run(ctx, as, inputs, a.renderOptions())
			if werr := writeJSON(a.out, rc); werr != nil {
				return werr
			}
			return runExit(rc, err)
		},
	}
	in.register(cmd)
	return cmd
}

// runExit maps a run contract to the process exit code.
func runExit(rc repair.RunContract, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &exitError{code: exitCodeAPIError, err: err}
	}
	switch {
	case rc.State == repair.StateInputInvalid:
		return withCode(exitCodeBadInput, "%d input error(s)", len(rc.Issues))
	case !rc.OutputOK:
		codes := make([]string, len(rc.Issues))
		for i, is := range rc.Issues {
			codes[i] = is.Code
		}
		return withCode(exitCodeBadOutput, "output invalid after %d call(s): %s", rc.Calls, strings.Join(codes, ", "))
	}
	return nil
}

func newAssetCheckCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "check <asset>",
		Short: "Run the asset's QA checks against a candidate output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, inputs, text, err := checkArgs(args[0], output, &in)
			if err != nil {
				return err
			}
			res := assetqa.Run(as, inputs, text)
			if err := writeJSON(a.out, res); err != nil {
				return err
			}
			if !res.Pass {
				return withCode(exitCodeFailOn, "%d check(s) failed", len(res.Failures))
			}
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Candidate output file, - for stdin")
	return cmd
}

func newAssetPatchCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "patch <asset>",
		Short: "Fill missing required blocks of a candidate output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, inputs, text, err := checkArgs(args[0], output, &in)
			if err != nil {
				return err
			}
			res := assetqa.Patch(as, inputs, text)
			a.logger.Info("Patched output", zap.String("ref", as.Ref()), zap.Strings("added", res.Added), zap.Bool("pass", res.After.Pass))
			switch format {
			case "text":
				fmt.Fprintln(a.out, strings.TrimRight(res.Output, "\n"))
			case "json":
				if err := writeJSON(a.out, res); err != nil {
					return err
				}
			default:
				return withCode(exitCodeBadInput, "unknown format %q (want text or json)", format)
			}
			if !res.After.Pass {
				return withCode(exitCodeFailOn, "%d check(s) still failing after patch", len(res.After.Failures))
			}
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Candidate output file, - for stdin")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

func checkArgs(assetPath, outputPath string, in *inputFlags) (*asset.Asset, map[string]interface{}, string, error) {
	as, err := loadAsset(assetPath)
	if err != nil {
		return nil, nil, "", err
	}
	inputs, err := in.values()
	if err != nil {
		return nil, nil, "", err
	}
	text, err := readText(outputPath)
	if err != nil {
		return nil, nil, "", err
	}
	return as, inputs, text, nil
}
