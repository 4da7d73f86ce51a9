// Package flow loads pipeline definitions from YAML and executes them
// against an embedded bleve index. A flow names pods in order; each pod
// YAML configures one executor (indexer, evaluator).
package flow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flowtune/flowtune/internal/document"
)

// Match is a single search hit.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Evaluation is one scalar metric computed for one query document.
type Evaluation struct {
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

// ResponseDoc is the per-query-document result of a search pass.
type ResponseDoc struct {
	ID          string       `json:"id"`
	Matches     []Match      `json:"matches"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Response is the result of one search batch.
type Response struct {
	Docs []ResponseDoc `json:"docs"`
}

// PodRef names a pod and the config file it uses, in flow order.
type PodRef struct {
	Name string
	Uses string
}

// ComponentConfig is one entry of a pod's components sequence.
type ComponentConfig struct {
	Name string         `yaml:"name"`
	With map[string]any `yaml:"with"`
}

// PodConfig is a parsed pod YAML.
type PodConfig struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	With       map[string]any    `yaml:"with"`
	Metas      map[string]any    `yaml:"metas"`
	Components []ComponentConfig `yaml:"components"`
}

// Flow is a loaded pipeline: an ordered set of pods with their configs.
type Flow struct {
	Path string
	Pods []PodRef

	configs map[string]*PodConfig
	indexer *Indexer
}

// Load parses a flow YAML and the pod configs it references. Relative
// `uses` paths resolve against the working directory first, then against
// the flow file's own directory.
func Load(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flow %s: %w", path, err)
	}
	pods, err := parsePods(data)
	if err != nil {
		return nil, fmt.Errorf("parsing flow %s: %w", path, err)
	}
	if len(pods) == 0 {
		return nil, fmt.Errorf("flow %s defines no pods", path)
	}

	f := &Flow{Path: path, Pods: pods, configs: make(map[string]*PodConfig)}
	flowDir := filepath.Dir(path)
	for _, ref := range pods {
		podPath := resolveUses(flowDir, ref.Uses)
		cfg, err := loadPodConfig(podPath)
		if err != nil {
			return nil, err
		}
		if cfg.Name == "" {
			cfg.Name = ref.Name
		}
		f.configs[ref.Name] = cfg
	}
	return f, nil
}

// parsePods walks the flow document's `pods` mapping with yaml.Node so
// pod order is preserved.
func parsePods(data []byte) ([]PodRef, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at top level")
	}

	var refs []PodRef
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "pods" {
			continue
		}
		podsNode := doc.Content[i+1]
		if podsNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("pods must be a mapping")
		}
		for j := 0; j+1 < len(podsNode.Content); j += 2 {
			name := podsNode.Content[j].Value
			var pod struct {
				Uses string `yaml:"uses"`
			}
			if err := podsNode.Content[j+1].Decode(&pod); err != nil {
				return nil, fmt.Errorf("pod %s: %w", name, err)
			}
			if pod.Uses == "" {
				return nil, fmt.Errorf("pod %s: uses is required", name)
			}
			refs = append(refs, PodRef{Name: name, Uses: pod.Uses})
		}
	}
	return refs, nil
}

func resolveUses(flowDir, uses string) string {
	if filepath.IsAbs(uses) {
		return uses
	}
	if _, err := os.Stat(uses); err == nil {
		return uses
	}
	return filepath.Join(flowDir, uses)
}

func loadPodConfig(path string) (*PodConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pod %s: %w", path, err)
	}
	var cfg PodConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing pod %s: %w", path, err)
	}
	return &cfg, nil
}

// PodConfig returns the parsed config of a named pod, or nil.
func (f *Flow) PodConfig(name string) *PodConfig {
	return f.configs[name]
}

func (f *Flow) findByType(podType string) *PodConfig {
	for _, ref := range f.Pods {
		cfg := f.configs[ref.Name]
		if cfg != nil && cfg.Type == podType {
			return cfg
		}
	}
	return nil
}

// Index feeds documents from src through the flow's indexer pod in
// batches of batchSize.
func (f *Flow) Index(ctx context.Context, src document.Source, batchSize int) error {
	cfg := f.findByType("indexer")
	if cfg == nil {
		return fmt.Errorf("flow %s has no indexer pod", f.Path)
	}
	idx, err := OpenIndexer(cfg, true)
	if err != nil {
		return err
	}
	defer idx.Close()

	if batchSize < 1 {
		batchSize = 1
	}
	batch := make([]document.Document, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.IndexBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for doc, err := range src {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, doc)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Search runs each query document from src against the flow's indexer,
// attaches evaluations from the flow's evaluator pods, and invokes fn
// once per batch.
func (f *Flow) Search(ctx context.Context, src document.Source, batchSize int, fn func(*Response) error) error {
	cfg := f.findByType("indexer")
	if cfg == nil {
		return fmt.Errorf("flow %s has no indexer pod", f.Path)
	}
	idx, err := OpenIndexer(cfg, false)
	if err != nil {
		return err
	}
	defer idx.Close()

	var evaluators []*Evaluator
	for _, ref := range f.Pods {
		pc := f.configs[ref.Name]
		if pc != nil && pc.Type == "evaluator" {
			ev, err := NewEvaluator(pc)
			if err != nil {
				return err
			}
			evaluators = append(evaluators, ev)
		}
	}

	if batchSize < 1 {
		batchSize = 1
	}
	resp := &Response{}
	flush := func() error {
		if len(resp.Docs) == 0 {
			return nil
		}
		if err := fn(resp); err != nil {
			return err
		}
		resp = &Response{}
		return nil
	}

	for doc, err := range src {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		matches, err := idx.Query(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("querying %s: %w", doc.ID, err)
		}
		rd := ResponseDoc{ID: doc.ID, Matches: matches}
		for _, ev := range evaluators {
			rd.Evaluations = append(rd.Evaluations, ev.Evaluate(doc, matches)...)
		}
		resp.Docs = append(resp.Docs, rd)
		if len(resp.Docs) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
