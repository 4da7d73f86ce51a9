package flow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/flowtune/flowtune/internal/document"
)

// Indexer wraps a bleve index configured by an indexer pod. Tunable
// settings come from the pod's `with:` section: workspace, analyzer,
// field, top_k, fuzziness, operator.
type Indexer struct {
	index     bleve.Index
	field     string
	topK      int
	fuzziness int
	operator  query.MatchQueryOperator
}

var analyzers = map[string]bool{
	standard.Name:   true,
	simple.Name:     true,
	keyword.Name:    true,
	en.AnalyzerName: true,
}

// OpenIndexer opens the bleve index described by an indexer pod config.
// With create set, an existing index at the workspace path is reopened
// and a missing one is created; otherwise the index must already exist.
func OpenIndexer(cfg *PodConfig, create bool) (*Indexer, error) {
	workspace := stringWith(cfg.With, "workspace", "")
	if workspace == "" {
		return nil, fmt.Errorf("indexer pod %s: with.workspace is required", cfg.Name)
	}
	workspace = os.ExpandEnv(workspace)
	indexPath := filepath.Join(workspace, "index")

	analyzer := stringWith(cfg.With, "analyzer", standard.Name)
	if !analyzers[analyzer] {
		return nil, fmt.Errorf("indexer pod %s: unknown analyzer %q", cfg.Name, analyzer)
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(indexPath); statErr == nil {
		idx, err = bleve.Open(indexPath)
	} else if create {
		m := bleve.NewIndexMapping()
		m.DefaultAnalyzer = analyzer
		idx, err = bleve.New(indexPath, m)
	} else {
		return nil, fmt.Errorf("indexer pod %s: no index at %s", cfg.Name, indexPath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", indexPath, err)
	}

	op := query.MatchQueryOperatorOr
	if stringWith(cfg.With, "operator", "or") == "and" {
		op = query.MatchQueryOperatorAnd
	}

	return &Indexer{
		index:     idx,
		field:     stringWith(cfg.With, "field", "text"),
		topK:      intWith(cfg.With, "top_k", 10),
		fuzziness: intWith(cfg.With, "fuzziness", 0),
		operator:  op,
	}, nil
}

// IndexBatch writes one batch of documents. Text goes under the pod's
// configured field so queries against the same pod always hit it.
func (ix *Indexer) IndexBatch(docs []document.Document) error {
	batch := ix.index.NewBatch()
	for _, d := range docs {
		fields := map[string]any{ix.field: d.Text}
		if len(d.Tags) > 0 {
			fields["tags"] = d.Tags
		}
		if err := batch.Index(d.ID, fields); err != nil {
			return fmt.Errorf("batching %s: %w", d.ID, err)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}
	return nil
}

// Query runs a match query for text and returns the top_k hits.
func (ix *Indexer) Query(ctx context.Context, text string) ([]Match, error) {
	q := bleve.NewMatchQuery(text)
	q.SetField(ix.field)
	if ix.fuzziness > 0 {
		q.SetFuzziness(ix.fuzziness)
	}
	q.SetOperator(ix.operator)
	req := bleve.NewSearchRequestOptions(q, ix.topK, 0, false)
	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		matches = append(matches, Match{ID: hit.ID, Score: hit.Score})
	}
	return matches, nil
}

func (ix *Indexer) Close() error {
	return ix.index.Close()
}

func stringWith(with map[string]any, key, def string) string {
	if v, ok := with[key]; ok {
		return fmt.Sprint(v)
	}
	return def
}

func intWith(with map[string]any, key string, def int) int {
	v, ok := with[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
