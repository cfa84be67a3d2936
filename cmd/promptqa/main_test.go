package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/promptqa/internal/outputqa"
	"github.com/dshills/promptqa/internal/repair"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
	assert.Equal(t, exitCodeBadOutput, exitCode(fmt.Errorf("wrapped: %w", withCode(exitCodeBadOutput, "bad"))))
}

func TestParseInputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topic: tracing\ncount: 3\n"), 0o644))

	got, err := parseInputs(path, []string{"tone=dry", "topic=metrics"}, []string{`tags=["a","b"]`, "count=5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"topic": "metrics",
		"tone":  "dry",
		"count": 5.0,
		"tags":  []interface{}{"a", "b"},
	}, got)

	_, err = parseInputs("", []string{"novalue"}, nil)
	assert.Equal(t, exitCodeBadInput, exitCode(err))
	_, err = parseInputs("", nil, []string{"x={"})
	assert.Equal(t, exitCodeBadInput, exitCode(err))
}

func TestRunExit(t *testing.T) {
	tests := []struct {
		name string
		rc   repair.RunContract
		err  error
		want int
	}{
		{"ok", repair.RunContract{State: repair.StateSucceeded, OutputOK: true}, nil, 0},
		{"input", repair.RunContract{State: repair.StateInputInvalid}, nil, exitCodeBadInput},
		{"output", repair.RunContract{State: repair.StateExhausted, Issues: []outputqa.Issue{{Code: outputqa.CodeJSONParse}}}, nil, exitCodeBadOutput},
		{"api", repair.RunContract{State: repair.StateFailed}, errors.New("quota"), exitCodeAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(runExit(tt.rc, tt.err)))
		})
	}
}

func TestLoadSource_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hero.prompt")
	require.NoError(t, os.WriteFile(path, []byte("A fox in snow"), 0o644))
	src, err := loadSource(path, []string{"image"}, "art")
	require.NoError(t, err)
	assert.Equal(t, "hero", src.ID)
	assert.Equal(t, []string{"image"}, src.Tags)
	assert.Equal(t, "A fox in snow", src.Template)
}
