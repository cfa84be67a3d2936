//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/promptqa/internal/config"
	"github.com/dshills/promptqa/internal/repair"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/submission"
	"github.com/dshills/promptqa/internal/testpack"
)

const fixtures = "../../testdata/"

// testApp returns an app with default configuration whose model replays
// responses in order, repeating the last one.
func testApp(t *testing.T, responses ...string) (*app, *bytes.Buffer, *int) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Repair.Enabled = true
	cfg.Repair.MaxRetries = 1
	cfg.Submission.Store = config.StoreMemory
	cfg.QA.Workers = 2

	out := &bytes.Buffer{}
	calls := 0
	a := newApp()
	a.cfg = cfg
	a.out = out
	a.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	a.invoke = func(ctx context.Context, _ []schema.Message, _ schema.ExecutionConfig) (schema.ModelResponse, error) {
		calls++
		if len(responses) == 0 {
			return schema.ModelResponse{}, errors.New("simulated API error")
		}
		i := calls - 1
		if i >= len(responses) {
			i = len(responses) - 1
		}
		return schema.ModelResponse{RawText: responses[i]}, nil
	}
	return a, out, &calls
}

func execute(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.Execute()
}

func TestIntegration_QA(t *testing.T) {
	a, out, _ := testApp(t)
	err := execute(a, "qa", fixtures+"prompts")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d: %v", code, err)
	}

	var results []struct {
		ID     string          `json:"id"`
		Before schema.QaResult `json:"before"`
		After  schema.QaResult `json:"after"`
	}
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	byID := map[string]schema.QaResult{}
	for _, r := range results {
		byID[r.ID] = r.Before
	}
	if got := byID["complete"]; got.Score != 100 || got.Level != schema.LevelVerified {
		t.Errorf("complete: got %d %s, want 100 verified", got.Score, got.Level)
	}
	if got := byID["bare"]; got.Level != schema.LevelDraft {
		t.Errorf("bare: got level %s, want draft", got.Level)
	}
	if got := byID["product-shot"]; got.Modality != schema.ModalityImage {
		t.Errorf("product-shot: got modality %s, want image", got.Modality)
	}
}

func TestIntegration_QAFailOnDraft(t *testing.T) {
	a, _, _ := testApp(t)
	err := execute(a, "qa", "--fail-on-draft", fixtures+"prompts/bare.txt")
	if code := exitCode(err); code != exitCodeFailOn {
		t.Errorf("expected exit %d, got %d: %v", exitCodeFailOn, code, err)
	}
}

func TestIntegration_QAMarkdown(t *testing.T) {
	a, out, _ := testApp(t)
	if err := execute(a, "qa", "-f", "markdown", fixtures+"prompts/bare.txt"); err != nil {
		t.Fatalf("qa: %v", err)
	}
	if !strings.HasPrefix(out.String(), "## PromptQA Report") {
		t.Errorf("unexpected markdown:\n%s", out.String())
	}
}

func TestIntegration_Patch(t *testing.T) {
	a, out, _ := testApp(t)
	if err := execute(a, "patch", fixtures+"prompts/bare.txt"); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Write something about {{topic}}.") {
		t.Errorf("patched text does not start with the original:\n%s", out.String())
	}
}

func TestIntegration_AssetValidate(t *testing.T) {
	a, out, _ := testApp(t)
	err := execute(a, "asset", "validate", fixtures+"assets")
	if code := exitCode(err); code != exitCodeFailOn {
		t.Fatalf("expected exit %d, got %d: %v", exitCodeFailOn, code, err)
	}
	var rep validateReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	valid := map[string]bool{}
	for _, ar := range rep.Assets {
		valid[filepath.Base(ar.Path)] = ar.Valid
	}
	want := map[string]bool{"article-summary.yaml": true, "broken.yaml": false, "titles.yaml": true}
	for name, v := range want {
		if valid[name] != v {
			t.Errorf("%s: valid = %v, want %v", name, valid[name], v)
		}
	}
	if !strings.Contains(out.String(), "UNDECLARED_VARIABLE") {
		t.Error("expected UNDECLARED_VARIABLE for broken.yaml")
	}
}

func TestIntegration_AssetRender(t *testing.T) {
	a, out, calls := testApp(t)
	if err := execute(a, "asset", "render", fixtures+"assets/article-summary.yaml", "-i", "topic=tracing"); err != nil {
		t.Fatalf("render: %v", err)
	}
	var payload struct {
		Messages        []schema.Message       `json:"messages"`
		ExecutionConfig schema.ExecutionConfig `json:"execution_config"`
	}
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if len(payload.Messages) == 0 || !strings.Contains(payload.Messages[len(payload.Messages)-1].Content, "tracing") {
		t.Errorf("user message does not carry the input: %+v", payload.Messages)
	}
	if *calls != 0 {
		t.Errorf("render called the model %d time(s)", *calls)
	}

	a, _, _ = testApp(t)
	err := execute(a, "asset", "render", fixtures+"assets/article-summary.yaml")
	if code := exitCode(err); code != exitCodeBadInput {
		t.Errorf("missing input: expected exit %d, got %d: %v", exitCodeBadInput, code, err)
	}
}

func TestIntegration_AssetRunRepairs(t *testing.T) {
	a, out, calls := testApp(t, "```json\n{\"title\": \"Tracing\"}\n```", `{"title": "Tracing"}`)
	err := execute(a, "asset", "run", fixtures+"assets/titles.yaml", "-i", "topic=tracing")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d: %v", code, err)
	}
	var rc repair.RunContract
	if err := json.Unmarshal(out.Bytes(), &rc); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if !rc.OutputOK || !rc.Repaired || rc.State != repair.StateSucceeded {
		t.Errorf("contract: ok=%v repaired=%v state=%s", rc.OutputOK, rc.Repaired, rc.State)
	}
	if *calls != 2 {
		t.Errorf("calls: got %d, want 2", *calls)
	}
}

func TestIntegration_AssetRunExitCodes(t *testing.T) {
	a, _, _ := testApp(t, "not json at all", "still not json")
	err := execute(a, "asset", "run", fixtures+"assets/titles.yaml", "-i", "topic=tracing")
	if code := exitCode(err); code != exitCodeBadOutput {
		t.Errorf("invalid output: expected exit %d, got %d: %v", exitCodeBadOutput, code, err)
	}

	a, _, _ = testApp(t)
	err = execute(a, "asset", "run", fixtures+"assets/titles.yaml", "-i", "topic=tracing")
	if code := exitCode(err); code != exitCodeAPIError {
		t.Errorf("provider error: expected exit %d, got %d: %v", exitCodeAPIError, code, err)
	}

	a, _, calls := testApp(t, `{"title": "x"}`)
	err = execute(a, "asset", "run", fixtures+"assets/titles.yaml")
	if code := exitCode(err); code != exitCodeBadInput {
		t.Errorf("missing input: expected exit %d, got %d: %v", exitCodeBadInput, code, err)
	}
	if *calls != 0 {
		t.Errorf("invalid inputs reached the model")
	}
}

func TestIntegration_SubmitSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "subs.db")

	a, out, _ := testApp(t)
	a.cfg.Submission.Store = config.StoreSQLite
	a.cfg.Submission.DBPath = db
	err := execute(a, "submit", fixtures+"assets/article-summary.yaml", "--submitter", "alice")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d: %v", code, err)
	}
	var sub submission.Submission
	if err := json.Unmarshal(out.Bytes(), &sub); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if sub.Status != submission.StatusVerified {
		t.Errorf("status: got %s (score %d), want verified", sub.Status, sub.Score)
	}

	a, out, _ = testApp(t)
	a.cfg.Submission.Store = config.StoreSQLite
	a.cfg.Submission.DBPath = db
	if err := execute(a, "submissions", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	var rows []submissionSummary
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != sub.ID || rows[0].SubmitterID != "alice" {
		t.Errorf("list: got %+v", rows)
	}

	a, _, _ = testApp(t)
	a.cfg.Submission.Store = config.StoreSQLite
	a.cfg.Submission.DBPath = db
	err = execute(a, "submissions", "get", "missing")
	if code := exitCode(err); code != exitCodeBadInput {
		t.Errorf("get missing: expected exit %d, got %d: %v", exitCodeBadInput, code, err)
	}
}

func TestIntegration_SubmitRejected(t *testing.T) {
	a, _, _ := testApp(t)
	err := execute(a, "submit", fixtures+"assets/broken.yaml", "--submitter", "bob")
	if code := exitCode(err); code != exitCodeFailOn {
		t.Errorf("expected exit %d, got %d: %v", exitCodeFailOn, code, err)
	}
}

func TestIntegration_Testpack(t *testing.T) {
	a, out, calls := testApp(t, "SUMMARY: distributed tracing follows a request across services.\nTAKEAWAYS: start with sampling.")
	err := execute(a, "testpack", "run", fixtures+"assets/article-summary.yaml", fixtures+"testpacks/article-summary.yaml")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d: %v\n%s", code, err, out.String())
	}
	var rep testpack.Report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	if rep.Passed != 2 || rep.Failed != 0 {
		t.Errorf("report: passed %d failed %d", rep.Passed, rep.Failed)
	}
	if *calls != 2 {
		t.Errorf("calls: got %d, want 2", *calls)
	}

	a, _, _ = testApp(t)
	err = execute(a, "testpack", "validate", "--asset", fixtures+"assets/titles.yaml", fixtures+"testpacks/article-summary.yaml")
	if code := exitCode(err); code != exitCodeFailOn {
		t.Errorf("mismatched asset: expected exit %d, got %d: %v", exitCodeFailOn, code, err)
	}
}

func TestIntegration_Export(t *testing.T) {
	a, out, _ := testApp(t)
	if err := execute(a, "export", "-f", "text", fixtures+"assets/article-summary.yaml"); err != nil {
		t.Fatalf("export text: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Article summary (article-summary@1.0.0)") {
		t.Errorf("unexpected text export:\n%s", out.String())
	}

	a, out, _ = testApp(t)
	if err := execute(a, "export", fixtures+"prompts/product-shot.yaml"); err != nil {
		t.Fatalf("export json: %v", err)
	}
	if !strings.Contains(out.String(), `"kind": "content"`) {
		t.Errorf("expected a content document:\n%s", out.String())
	}
}
