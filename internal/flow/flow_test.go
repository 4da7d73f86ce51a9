package flow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowtune/flowtune/internal/document"
	"github.com/flowtune/flowtune/internal/flow"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func writeTestFlow(t *testing.T, dir, workspace string) (indexFlow, queryFlow string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "pods", "indexer.yml"), fmt.Sprintf(`name: indexer
type: indexer
with:
  workspace: %s
  analyzer: standard
  field: text
  top_k: 5
`, workspace))
	writeFile(t, filepath.Join(dir, "pods", "evaluate.yml"), `name: evaluator
type: evaluator
with:
  metrics: [precision, recall]
  eval_at: 5
`)
	indexFlow = filepath.Join(dir, "flows", "index.yml")
	writeFile(t, indexFlow, `pods:
  indexer:
    uses: ../pods/indexer.yml
`)
	queryFlow = filepath.Join(dir, "flows", "query.yml")
	writeFile(t, queryFlow, `pods:
  indexer:
    uses: ../pods/indexer.yml
  evaluator:
    uses: ../pods/evaluate.yml
`)
	return indexFlow, queryFlow
}

func TestLoadPreservesPodOrder(t *testing.T) {
	dir := t.TempDir()
	_, queryFlow := writeTestFlow(t, dir, filepath.Join(dir, "ws"))

	f, err := flow.Load(queryFlow)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Pods) != 2 {
		t.Fatalf("expected 2 pods, got %d", len(f.Pods))
	}
	if f.Pods[0].Name != "indexer" || f.Pods[1].Name != "evaluator" {
		t.Errorf("pod order: %q, %q", f.Pods[0].Name, f.Pods[1].Name)
	}
	if f.PodConfig("evaluator").Type != "evaluator" {
		t.Errorf("evaluator config not loaded")
	}
}

func TestLoadMissingFlow(t *testing.T) {
	if _, err := flow.Load("nonexistent.yml"); err == nil {
		t.Error("expected error for missing flow file")
	}
}

func TestIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	ws := filepath.Join(dir, "ws")
	indexFlow, queryFlow := writeTestFlow(t, dir, ws)

	corpus := document.SliceSource([]document.Document{
		{ID: "a", Text: "red leather jacket"},
		{ID: "b", Text: "blue denim jacket"},
		{ID: "c", Text: "green wool sweater"},
	})
	queries := document.SliceSource([]document.Document{
		{ID: "q1", Text: "jacket", Relevant: []string{"a", "b"}},
		{ID: "q2", Text: "sweater", Relevant: []string{"c"}},
	})

	ctx := context.Background()

	fi, err := flow.Load(indexFlow)
	if err != nil {
		t.Fatalf("loading index flow: %v", err)
	}
	if err := fi.Index(ctx, corpus, 2); err != nil {
		t.Fatalf("Index: %v", err)
	}

	fq, err := flow.Load(queryFlow)
	if err != nil {
		t.Fatalf("loading query flow: %v", err)
	}
	var docs []flow.ResponseDoc
	err = fq.Search(ctx, queries, 10, func(resp *flow.Response) error {
		docs = append(docs, resp.Docs...)
		return nil
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 response docs, got %d", len(docs))
	}

	byID := map[string]flow.ResponseDoc{}
	for _, d := range docs {
		byID[d.ID] = d
	}
	q1 := byID["q1"]
	if len(q1.Matches) != 2 {
		t.Errorf("q1: expected 2 matches, got %d", len(q1.Matches))
	}
	if len(q1.Evaluations) != 2 {
		t.Fatalf("q1: expected 2 evaluations, got %d", len(q1.Evaluations))
	}
	for _, e := range q1.Evaluations {
		if e.Op == "recall" && e.Value != 1.0 {
			t.Errorf("q1 recall = %f, want 1.0", e.Value)
		}
	}
	q2 := byID["q2"]
	if len(q2.Matches) != 1 || q2.Matches[0].ID != "c" {
		t.Errorf("q2 matches = %+v, want single hit c", q2.Matches)
	}
}

func TestIndexAndSearchCustomField(t *testing.T) {
	dir := t.TempDir()
	ws := filepath.Join(dir, "ws")
	writeFile(t, filepath.Join(dir, "pods", "indexer.yml"), fmt.Sprintf(`name: indexer
type: indexer
with:
  workspace: %s
  field: body
  top_k: 5
`, ws))
	indexFlow := filepath.Join(dir, "flows", "index.yml")
	writeFile(t, indexFlow, "pods:\n  indexer:\n    uses: ../pods/indexer.yml\n")
	queryFlow := filepath.Join(dir, "flows", "query.yml")
	writeFile(t, queryFlow, "pods:\n  indexer:\n    uses: ../pods/indexer.yml\n")

	ctx := context.Background()
	fi, err := flow.Load(indexFlow)
	if err != nil {
		t.Fatalf("loading index flow: %v", err)
	}
	err = fi.Index(ctx, document.SliceSource([]document.Document{
		{ID: "a", Text: "red leather jacket"},
	}), 1)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	fq, err := flow.Load(queryFlow)
	if err != nil {
		t.Fatalf("loading query flow: %v", err)
	}
	var docs []flow.ResponseDoc
	err = fq.Search(ctx, document.SliceSource([]document.Document{
		{ID: "q1", Text: "jacket"},
	}), 10, func(resp *flow.Response) error {
		docs = append(docs, resp.Docs...)
		return nil
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 response doc, got %d", len(docs))
	}
	if len(docs[0].Matches) != 1 || docs[0].Matches[0].ID != "a" {
		t.Errorf("field=body matches = %+v, want single hit a", docs[0].Matches)
	}
}

func TestSearchWithoutIndexFails(t *testing.T) {
	dir := t.TempDir()
	_, queryFlow := writeTestFlow(t, dir, filepath.Join(dir, "never-indexed"))

	fq, err := flow.Load(queryFlow)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = fq.Search(context.Background(), document.SliceSource(nil), 10, func(*flow.Response) error { return nil })
	if err == nil {
		t.Error("expected error searching a workspace that was never indexed")
	}
}
