package flow

import (
	"fmt"

	"github.com/flowtune/flowtune/internal/document"
)

// metricFn computes one ranking metric at depth k against a relevant set.
type metricFn func(matches []Match, relevant map[string]bool, k int) float64

var metrics = map[string]metricFn{
	"precision":       precisionAt,
	"recall":          recallAt,
	"f1":              f1At,
	"reciprocal_rank": reciprocalRankAt,
}

type metricSpec struct {
	op     string
	metric metricFn
	evalAt int
}

// Evaluator computes ranking metrics for query documents. Metrics come
// either from a components sequence (one metric per component) or from
// the pod's with.metrics list; eval_at sets the ranking depth.
type Evaluator struct {
	specs []metricSpec
}

func NewEvaluator(cfg *PodConfig) (*Evaluator, error) {
	defaultAt := intWith(cfg.With, "eval_at", 10)

	var specs []metricSpec
	if len(cfg.Components) > 0 {
		for i, comp := range cfg.Components {
			name := stringWith(comp.With, "metric", comp.Name)
			fn, ok := metrics[name]
			if !ok {
				return nil, fmt.Errorf("evaluator pod %s component %d: unknown metric %q", cfg.Name, i, name)
			}
			op := comp.Name
			if op == "" {
				op = name
			}
			specs = append(specs, metricSpec{
				op:     op,
				metric: fn,
				evalAt: intWith(comp.With, "eval_at", defaultAt),
			})
		}
	} else {
		names, err := metricNames(cfg.With["metrics"])
		if err != nil {
			return nil, fmt.Errorf("evaluator pod %s: %w", cfg.Name, err)
		}
		for _, name := range names {
			fn, ok := metrics[name]
			if !ok {
				return nil, fmt.Errorf("evaluator pod %s: unknown metric %q", cfg.Name, name)
			}
			specs = append(specs, metricSpec{op: name, metric: fn, evalAt: defaultAt})
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("evaluator pod %s defines no metrics", cfg.Name)
	}
	return &Evaluator{specs: specs}, nil
}

func metricNames(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, fmt.Errorf("with.metrics is required")
	case []any:
		names := make([]string, 0, len(list))
		for _, e := range list {
			names = append(names, fmt.Sprint(e))
		}
		return names, nil
	case []string:
		return list, nil
	case string:
		return []string{list}, nil
	default:
		return nil, fmt.Errorf("with.metrics must be a list, got %T", v)
	}
}

// Evaluate computes every configured metric for one query document.
func (e *Evaluator) Evaluate(doc document.Document, matches []Match) []Evaluation {
	relevant := make(map[string]bool, len(doc.Relevant))
	for _, id := range doc.Relevant {
		relevant[id] = true
	}
	evals := make([]Evaluation, 0, len(e.specs))
	for _, spec := range e.specs {
		evals = append(evals, Evaluation{
			Op:    spec.op,
			Value: spec.metric(matches, relevant, spec.evalAt),
		})
	}
	return evals
}

func truncate(matches []Match, k int) []Match {
	if k > 0 && len(matches) > k {
		return matches[:k]
	}
	return matches
}

func relevantHits(matches []Match, relevant map[string]bool, k int) int {
	hits := 0
	for _, m := range truncate(matches, k) {
		if relevant[m.ID] {
			hits++
		}
	}
	return hits
}

func precisionAt(matches []Match, relevant map[string]bool, k int) float64 {
	if k < 1 {
		return 0
	}
	return float64(relevantHits(matches, relevant, k)) / float64(k)
}

func recallAt(matches []Match, relevant map[string]bool, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	return float64(relevantHits(matches, relevant, k)) / float64(len(relevant))
}

func f1At(matches []Match, relevant map[string]bool, k int) float64 {
	p := precisionAt(matches, relevant, k)
	r := recallAt(matches, relevant, k)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func reciprocalRankAt(matches []Match, relevant map[string]bool, k int) float64 {
	for i, m := range truncate(matches, k) {
		if relevant[m.ID] {
			return 1 / float64(i+1)
		}
	}
	return 0
}
