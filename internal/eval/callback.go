// Package eval accumulates per-document evaluation values across the
// search responses of one trial and reduces them to means.
package eval

import (
	"fmt"
	"sort"

	"github.com/flowtune/flowtune/internal/flow"
)

// Callback sums evaluation values per metric as responses arrive. One
// Callback serves exactly one trial; create a fresh one per trial.
type Callback struct {
	op   string
	sums map[string]float64
	docs int
}

// NewCallback returns an accumulator. With op set, Mean reports that
// metric; otherwise the first metric name in sorted order is used.
func NewCallback(op string) *Callback {
	return &Callback{op: op, sums: make(map[string]float64)}
}

// ProcessResponse folds one batch response into the running sums.
func (c *Callback) ProcessResponse(resp *flow.Response) error {
	c.docs += len(resp.Docs)
	for _, doc := range resp.Docs {
		for _, e := range doc.Evaluations {
			c.sums[e.Op] += e.Value
		}
	}
	return nil
}

// Docs reports how many query documents have been seen.
func (c *Callback) Docs() int {
	return c.docs
}

// Means returns the per-metric mean over all seen documents.
func (c *Callback) Means() (map[string]float64, error) {
	if c.docs == 0 {
		return nil, fmt.Errorf("no query documents processed")
	}
	means := make(map[string]float64, len(c.sums))
	for op, sum := range c.sums {
		means[op] = sum / float64(c.docs)
	}
	return means, nil
}

// MeanOf returns the mean of a single metric.
func (c *Callback) MeanOf(op string) (float64, error) {
	if c.docs == 0 {
		return 0, fmt.Errorf("no query documents processed")
	}
	sum, ok := c.sums[op]
	if !ok {
		return 0, fmt.Errorf("metric %q not recorded", op)
	}
	return sum / float64(c.docs), nil
}

// Mean returns the objective metric and its mean: the configured metric
// when set, else the first recorded metric name in sorted order.
func (c *Callback) Mean() (string, float64, error) {
	if c.op != "" {
		v, err := c.MeanOf(c.op)
		return c.op, v, err
	}
	if len(c.sums) == 0 {
		return "", 0, fmt.Errorf("no evaluations recorded")
	}
	ops := make([]string, 0, len(c.sums))
	for op := range c.sums {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	v, err := c.MeanOf(ops[0])
	return ops[0], v, err
}
