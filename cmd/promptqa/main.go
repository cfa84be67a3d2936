package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/promptqa/internal/config"
	"github.com/dshills/promptqa/internal/llm"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/repair"
	"github.com/dshills/promptqa/internal/submission"
)

// Exit codes.
const (
	exitCodeFailOn    = 2 // QA gate, failed checks or rejected submission
	exitCodeBadInput  = 3 // unreadable files, invalid assets or inputs
	exitCodeAPIError  = 4 // model call failed
	exitCodeBadOutput = 5 // model output still invalid after repair
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// app is the state shared by every command.
type app struct {
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	// invoke is the model boundary; tests replace it.
	invoke llm.InvokeFunc
	now    func() time.Time

	mem *submission.MemStore
}

func newApp() *app {
	return &app{
		logger: zap.NewNop(),
		out:    os.Stdout,
		invoke: llm.Invoke,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *app) setup() error {
	zc := zap.NewProductionConfig()
	if a.verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if a.cfg == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return &exitError{code: exitCodeBadInput, err: err}
		}
		a.cfg = cfg
	}
	return nil
}

// renderOptions applies the configured LLM overrides.
func (a *app) renderOptions() render.Options {
	return render.Options{
		Provider:    a.cfg.LLM.Provider,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
	}
}

// orchestrator builds a repair orchestrator over the throttled invoker.
func (a *app) orchestrator() *repair.Orchestrator {
	invoke := llm.Throttle(a.invoke, a.cfg.LLM.RequestsPerMinute)
	opts := repair.Options{Enabled: a.cfg.Repair.Enabled, MaxRetries: a.cfg.Repair.MaxRetries}
	return repair.New(invoke, opts, a.logger.Named("repair"))
}

// runContext returns a context bounded by --timeout and canceled on SIGINT or SIGTERM.
func (a *app) runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if a.timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "promptqa",
		Short: "Deterministic QA, scoring and repair for prompt templates",
		Long: `promptqa scores prompt templates against per-modality rubrics, patches
missing sections, validates and renders prompt assets, repairs structured
model output and classifies catalog submissions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ./promptqa.toml or ~/.promptqa.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Minute, "Operation timeout")

	root.AddCommand(
		newQACmd(a),
		newPatchCmd(a),
		newAssetCmd(a),
		newSubmitCmd(a),
		newSubmissionsCmd(a),
		newTestpackCmd(a),
		newExportCmd(a),
		newInitCmd(a),
	)
	return root
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "promptqa.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Init(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
}

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
