package document

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
)

// Document is a single record fed through a flow. Index documents carry
// text to be indexed; query documents additionally carry the IDs of the
// documents considered relevant to them, used by evaluator pods.
type Document struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Tags     []string `json:"tags,omitempty"`
	Relevant []string `json:"relevant,omitempty"`
}

// Source produces documents. Ranging over a Source restarts it from the
// beginning, so the same source can feed every trial of a study.
type Source = iter.Seq2[Document, error]

// JSONLSource reads one JSON document per line. The file is reopened on
// each ranging.
func JSONLSource(path string) Source {
	return func(yield func(Document, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(Document{}, fmt.Errorf("opening documents %s: %w", path, err))
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := sc.Bytes()
			if len(raw) == 0 {
				continue
			}
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				yield(Document{}, fmt.Errorf("parsing %s line %d: %w", path, line, err))
				return
			}
			if doc.ID == "" {
				doc.ID = fmt.Sprintf("doc-%d", line)
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Document{}, fmt.Errorf("reading %s: %w", path, err))
		}
	}
}

// SliceSource serves documents from memory.
func SliceSource(docs []Document) Source {
	return func(yield func(Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
