package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/testpack"
)

func newTestpackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testpack",
		Short: "Validate and run test packs against a prompt asset",
	}

	var assetPath string
	validate := &cobra.Command{
		Use:   "validate <pack>",
		Short: "Check a test pack, optionally against the asset it targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := testpack.LoadFile(args[0])
			if err != nil {
				return &exitError{code: exitCodeBadInput, err: err}
			}
			issues := testpack.Validate(p, nil)
			if assetPath != "" {
				as, err := loadAsset(assetPath)
				if err != nil {
					return err
				}
				issues = testpack.Validate(p, as)
			}
			if err := writeJSON(a.out, issues); err != nil {
				return err
			}
			errs := 0
			for _, is := range issues {
				if is.Level == schema.IssueError {
					errs++
				}
			}
			if errs > 0 {
				return withCode(exitCodeFailOn, "%d test pack error(s)", errs)
			}
			return nil
		},
	}
	validate.Flags().StringVar(&assetPath, "asset", "", "Asset the pack targets")

	run := &cobra.Command{
		Use:   "run <asset> <pack>",
		Short: "Run every case through the model and evaluate its assertions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			p, err := testpack.LoadFile(args[1])
			if err != nil {
				return &exitError{code: exitCodeBadInput, err: err}
			}
			for _, is := range testpack.Validate(p, as) {
				if is.Level == schema.IssueError {
					return withCode(exitCodeBadInput, "test pack: %s", is)
				}
			}

			ctx, cancel := a.runContext()
			defer cancel()
			a.logger.Info("Running test pack", zap.String("ref", as.Ref()), zap.Int("cases", len(p.Cases)))
			rep, err := testpack.NewRunner(a.orchestrator(), a.renderOptions()).Run(ctx, p, as)
			if err != nil {
				return err
			}
			a.logger.Info("Test pack finished", zap.Int("passed", rep.Passed), zap.Int("failed", rep.Failed))
			if err := writeJSON(a.out, rep); err != nil {
				return err
			}
			if !rep.OK() {
				return withCode(exitCodeFailOn, "%d of %d case(s) failed", rep.Failed, len(rep.Cases))
			}
			return nil
		},
	}

	cmd.AddCommand(validate, run)
	return cmd
}
