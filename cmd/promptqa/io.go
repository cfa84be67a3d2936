package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/schema"
)

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// decodeDocument reads a YAML or JSON file into v using v's json tags.
func decodeDocument(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &exitError{code: exitCodeBadInput, err: err}
	}
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return withCode(exitCodeBadInput, "%s: %w", path, err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return withCode(exitCodeBadInput, "%s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return withCode(exitCodeBadInput, "%s: %w", path, err)
	}
	return nil
}

// expandPaths replaces each directory argument with the files directly inside
// it that match keep, sorted by name.
func expandPaths(args []string, keep func(string) bool) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, &exitError{code: exitCodeBadInput, err: err}
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, &exitError{code: exitCodeBadInput, err: err}
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && keep(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(arg, n))
		}
	}
	return out, nil
}

func isPromptFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".prompt", ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// loadSource reads a content record. Structured files decode into
// schema.ContentSource; any other file is taken as the template text.
func loadSource(path string, tags []string, category string) (schema.ContentSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		var src schema.ContentSource
		if err := decodeDocument(path, &src); err != nil {
			return schema.ContentSource{}, err
		}
		if src.ID == "" {
			src.ID = baseName(path)
		}
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.ContentSource{}, &exitError{code: exitCodeBadInput, err: err}
	}
	return schema.ContentSource{
		ID:       baseName(path),
		Title:    baseName(path),
		Tags:     tags,
		Category: category,
		Type:     schema.ContentPrompt,
		Template: string(data),
	}, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// loadAsset reads one asset file, reporting shape issues as bad input.
func loadAsset(path string) (*asset.Asset, error) {
	a, issues, err := asset.LoadFile(path)
	if err != nil {
		return nil, &exitError{code: exitCodeBadInput, err: err}
	}
	if len(issues) > 0 {
		return nil, withCode(exitCodeBadInput, "%s: %s", path, joinIssues(issues))
	}
	return a, nil
}

func joinIssues(issues []asset.Issue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.String()
	}
	return strings.Join(parts, "; ")
}

// parseInputs merges an optional inputs file with key=value string pairs and
// key=<json> pairs, in that order.
func parseInputs(file string, pairs, jsonPairs []string) (map[string]interface{}, error) {
	inputs := map[string]interface{}{}
	if file != "" {
		if err := decodeDocument(file, &inputs); err != nil {
			return nil, err
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, withCode(exitCodeBadInput, "input %q is not key=value", p)
		}
		inputs[k] = v
	}
	for _, p := range jsonPairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, withCode(exitCodeBadInput, "input %q is not key=<json>", p)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, withCode(exitCodeBadInput, "input %s: %w", k, err)
		}
		inputs[k] = decoded
	}
	return inputs, nil
}

// inputFlags are shared by every command that renders an asset.
type inputFlags struct {
	file      string
	pairs     []string
	jsonPairs []string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "inputs", "", "YAML or JSON file of input values")
	cmd.Flags().StringArrayVarP(&f.pairs, "input", "i", nil, "Input value as key=value (string)")
	cmd.Flags().StringArrayVar(&f.jsonPairs, "input-json", nil, "Input value as key=<json>")
}

func (f *inputFlags) values() (map[string]interface{}, error) {
	return parseInputs(f.file, f.pairs, f.jsonPairs)
}

func readText(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", &exitError{code: exitCodeBadInput, err: err}
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &exitError{code: exitCodeBadInput, err: err}
	}
	return string(b), nil
}
