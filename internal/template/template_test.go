package template_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/flowtune/flowtune/internal/template"
)

const indexerPod = `name: indexer
type: indexer
with:
  workspace: $FLOWTUNE_WORKSPACE
  analyzer: $ANALYZER
  top_k: $TOP_K
  field: text
metas:
  description: $UNMATCHED
`

const evaluatorPod = `name: evaluator
type: evaluator
components:
  - name: precision
    with:
      metric: precision
      eval_at: $TOP_K
  - name: recall
    with:
      metric: recall
      eval_at: $TOP_K
`

func setupFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"pods/indexer.yml":  indexerPod,
		"pods/evaluate.yml": evaluatorPod,
		"pods/notes.txt":    "not yaml\n",
		"flows/index.yml":   "pods:\n  indexer:\n    uses: pods/indexer.yml\n",
		"flows/query.yml":   "pods:\n  indexer:\n    uses: pods/indexer.yml\n  evaluator:\n    uses: pods/evaluate.yml\n",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return fs
}

func loadYAML(t *testing.T, fs afero.Fs, path string) map[string]any {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	return doc
}

func TestCreateTrialPods(t *testing.T) {
	fs := setupFs(t)
	r := template.NewRenderer(fs)

	params := map[string]any{
		"FLOWTUNE_WORKSPACE": "trial-ws",
		"ANALYZER":           "keyword",
		"TOP_K":              25,
	}
	if err := r.CreateTrialPods("pods", "trial-ws", params); err != nil {
		t.Fatalf("CreateTrialPods: %v", err)
	}

	doc := loadYAML(t, fs, "trial-ws/pods/indexer.yml")
	with := doc["with"].(map[string]any)
	if with["workspace"] != "trial-ws" {
		t.Errorf("workspace = %v, want trial-ws", with["workspace"])
	}
	if with["analyzer"] != "keyword" {
		t.Errorf("analyzer = %v, want keyword", with["analyzer"])
	}
	if with["top_k"] != 25 {
		t.Errorf("top_k = %v (%T), want int 25", with["top_k"], with["top_k"])
	}
	if with["field"] != "text" {
		t.Errorf("untouched value changed: field = %v", with["field"])
	}
	metas := doc["metas"].(map[string]any)
	if metas["description"] != "$UNMATCHED" {
		t.Errorf("unmatched token rewritten: %v", metas["description"])
	}

	// components entries get the same treatment
	evalDoc := loadYAML(t, fs, "trial-ws/pods/evaluate.yml")
	comps := evalDoc["components"].([]any)
	first := comps[0].(map[string]any)["with"].(map[string]any)
	if first["eval_at"] != 25 {
		t.Errorf("component eval_at = %v, want 25", first["eval_at"])
	}

	// non-YAML files copied verbatim
	raw, err := afero.ReadFile(fs, "trial-ws/pods/notes.txt")
	if err != nil || string(raw) != "not yaml\n" {
		t.Errorf("plain file not copied verbatim: %q, %v", raw, err)
	}
}

func TestCreateTrialFlows(t *testing.T) {
	fs := setupFs(t)
	r := template.NewRenderer(fs)

	if err := r.CreateTrialFlows("trial-ws", "flows/index.yml", "flows/query.yml"); err != nil {
		t.Fatalf("CreateTrialFlows: %v", err)
	}

	doc := loadYAML(t, fs, "trial-ws/flows/query.yml")
	pods := doc["pods"].(map[string]any)
	for name, v := range pods {
		uses := v.(map[string]any)["uses"].(string)
		if !filepath.IsAbs(uses) {
			t.Errorf("pod %s: uses %q not absolute", name, uses)
		}
		if !strings.Contains(uses, filepath.Join("trial-ws", "pods")) {
			t.Errorf("pod %s: uses %q not rewritten to trial pod dir", name, uses)
		}
	}
}

func TestTokens(t *testing.T) {
	tokens, err := template.Tokens([]byte(indexerPod))
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	want := map[string]bool{"FLOWTUNE_WORKSPACE": true, "ANALYZER": true, "TOP_K": true, "UNMATCHED": true}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

func TestCreateTrialPodsMissingDir(t *testing.T) {
	r := template.NewRenderer(afero.NewMemMapFs())
	if err := r.CreateTrialPods("nonexistent", "trial-ws", nil); err == nil {
		t.Error("expected error for missing pod dir")
	}
}
