// Package repair runs one render → invoke → validate cycle and, when the
// structured output fails validation, re-invokes the model with a
// deterministic repair prompt up to a fixed number of times.
//
// The cycle is an explicit state machine:
//
//	Initial → Succeeded
//	Initial → Invalid → Repairing → (Succeeded | Invalid) ... → Exhausted
//
// Cancellation of the caller's context is the terminal state Canceled and is
// never retried. Model calls are issued strictly one after another.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/promptqa/internal/llm"
	"github.com/dshills/promptqa/internal/outputqa"
	"github.com/dshills/promptqa/internal/schema"
)

// State is a repair cycle state.
type State string

const (
	StateInitial      State = "initial"
	StateInvalid      State = "invalid"
	StateRepairing    State = "repairing"
	StateSucceeded    State = "succeeded"
	StateExhausted    State = "exhausted"
	StateCanceled     State = "canceled"
	StateFailed       State = "failed"
	StateInputInvalid State = "input_invalid"
)

// Terminal reports whether s ends the cycle.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StateCanceled, StateFailed, StateInputInvalid:
		return true
	}
	return false
}

// MaxIssuesInPrompt bounds the issues quoted in one repair prompt.
const MaxIssuesInPrompt = 6

// DefaultMaxRetries is the repair budget when none is configured.
const DefaultMaxRetries = 1

// Options configures the repair policy.
type Options struct {
	// Enabled turns the fallback repair policy on.
	Enabled bool
	// MaxRetries is the number of repair attempts after the first call.
	MaxRetries int
}

// DefaultOptions enables repair with one attempt.
func DefaultOptions() Options {
	return Options{Enabled: true, MaxRetries: DefaultMaxRetries}
}

// Orchestrator drives the repair cycle through an injected model call.
type Orchestrator struct {
	invoke llm.InvokeFunc
	opts   Options
	log    *zap.Logger
}

// New returns an Orchestrator. A nil logger discards log output.
func New(invoke llm.InvokeFunc, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Orchestrator{invoke: invoke, opts: opts, log: log}
}

// Outcome is the result of Execute.
type Outcome struct {
	State State `json:"state"`
	// Calls counts model invocations, including the first.
	Calls int `json:"calls"`
	// Attempts counts repair invocations only.
	Attempts    int             `json:"attempts"`
	Repaired    bool            `json:"repaired"`
	Validation  outputqa.Result `json:"validation"`
	Transitions []State         `json:"transitions"`
}

// Execute invokes the model with msgs and validates the response against
// cfg.OutputFormat and outSchema, repairing as the options allow. The error is
// non-nil only when a model call fails; the Outcome is always populated.
func (o *Orchestrator) Execute(ctx context.Context, msgs []schema.Message, cfg schema.ExecutionConfig, outSchema map[string]interface{}) (Outcome, error) {
	out := Outcome{State: StateInitial, Transitions: []State{StateInitial}}
	move := func(s State) {
		out.State = s
		out.Transitions = append(out.Transitions, s)
	}

	var callErr error
	call := func(history []schema.Message, c schema.ExecutionConfig) {
		out.Calls++
		o.log.Debug("Invoking model",
			zap.Int("call", out.Calls),
			zap.String("state", string(out.State)),
			zap.String("provider", c.Provider),
			zap.Float64("temperature", c.Temperature))
		resp, err := o.invoke(ctx, history, c)
		if err != nil {
			callErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				o.log.Info("Model call canceled", zap.Int("call", out.Calls), zap.Error(err))
				move(StateCanceled)
			} else {
				o.log.Warn("Model call failed", zap.Int("call", out.Calls), zap.Error(err))
				move(StateFailed)
			}
			return
		}
		o.log.Debug("Model output", zap.String("raw", resp.RawText))
		out.Validation = outputqa.Validate(resp.RawText, c.OutputFormat, outSchema)
		if out.Validation.OK {
			move(StateSucceeded)
		} else {
			o.log.Warn("Output validation failed",
				zap.Int("issues", len(out.Validation.Issues)),
				zap.Strings("codes", out.Validation.Codes()))
			move(StateInvalid)
		}
	}

	for !out.State.Terminal() {
		if err := ctx.Err(); err != nil {
			callErr = err
			move(StateCanceled)
			break
		}
		switch out.State {
		case StateInitial:
			call(msgs, cfg)
		case StateInvalid:
			if o.canRepair(cfg, out) {
				move(StateRepairing)
			} else {
				if out.Attempts > 0 {
					o.log.Info("Repair attempts exhausted", zap.Int("attempts", out.Attempts))
				}
				move(StateExhausted)
			}
		case StateRepairing:
			out.Attempts++
			out.Repaired = true
			rc := cfg
			rc.Temperature = 0
			call(RepairHistory(msgs, out.Validation, outSchema), rc)
		}
	}

	if out.State == StateCanceled || out.State == StateFailed {
		return out, fmt.Errorf("repair: invoke: %w", callErr)
	}
	return out, nil
}

func (o *Orchestrator) canRepair(cfg schema.ExecutionConfig, out Outcome) bool {
	return cfg.OutputFormat.IsStructured() &&
		o.opts.Enabled &&
		out.Attempts < o.opts.MaxRetries &&
		out.Validation.Repairable()
}

// RepairSystemPrompt opens every repair message pair.
const RepairSystemPrompt = "Your previous response failed validation. " +
	"Reply with corrected JSON only: no code fences, no markdown, no commentary."

// RepairHistory returns the original history followed by one system+user
// repair pair describing failed. Earlier repair pairs are never included.
func RepairHistory(original []schema.Message, failed outputqa.Result, outSchema map[string]interface{}) []schema.Message {
	history := make([]schema.Message, 0, len(original)+2)
	history = append(history, original...)
	return append(history,
		schema.Message{Role: schema.RoleSystem, Content: RepairSystemPrompt},
		schema.Message{Role: schema.RoleUser, Content: repairUserPrompt(failed, outSchema)},
	)
}

func repairUserPrompt(failed outputqa.Result, outSchema map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString("Validation issues:\n")
	issues := failed.Issues
	if len(issues) > MaxIssuesInPrompt {
		issues = issues[:MaxIssuesInPrompt]
	}
	for _, is := range issues {
		fmt.Fprintf(&sb, "- %s\n", is.String())
	}
	if n := len(failed.Issues) - len(issues); n > 0 {
		fmt.Fprintf(&sb, "- (%d more not shown)\n", n)
	}
	sb.WriteString("\nPrevious response:\n")
	sb.WriteString(failed.RawText)
	sb.WriteString("\n\nTarget schema:\n")
	if len(outSchema) == 0 {
		sb.WriteString("(none declared; return a single valid JSON value)")
	} else if b, err := json.MarshalIndent(outSchema, "", "  "); err == nil {
		sb.Write(b)
	}
	return sb.String()
}
