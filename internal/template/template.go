// Package template materializes trial workspaces: it copies pod template
// files with sampled parameter values substituted for $NAME tokens, and
// rewrites flow files to point at the trial's pod copies. YAML passes
// through yaml.Node so key order and comments survive the round trip.
package template

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Renderer performs trial materialization on an injected filesystem.
// Use NewRenderer(afero.NewMemMapFs()) in tests.
type Renderer struct {
	fs afero.Fs
}

func NewRenderer(fs afero.Fs) *Renderer {
	return &Renderer{fs: fs}
}

// Default returns a renderer on the real filesystem.
func Default() *Renderer {
	return NewRenderer(afero.NewOsFs())
}

// CreateTrialPods copies every file of podDir into <trialDir>/pods,
// substituting sampled parameters into the YAML files.
func (r *Renderer) CreateTrialPods(podDir, trialDir string, params map[string]any) error {
	trialPodDir := filepath.Join(trialDir, "pods")
	if err := r.fs.MkdirAll(trialPodDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", trialPodDir, err)
	}
	entries, err := afero.ReadDir(r.fs, podDir)
	if err != nil {
		return fmt.Errorf("reading pod dir %s: %w", podDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(podDir, entry.Name())
		dst := filepath.Join(trialPodDir, entry.Name())
		data, err := afero.ReadFile(r.fs, src)
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yml" || ext == ".yaml" {
			data, err = substituteYAML(data, params)
			if err != nil {
				return fmt.Errorf("rendering %s: %w", src, err)
			}
		}
		if err := afero.WriteFile(r.fs, dst, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	return nil
}

// CreateTrialFlows copies flow files into <trialDir>/flows with every
// pod `uses` reference rewritten to the trial pod dir.
func (r *Renderer) CreateTrialFlows(trialDir string, flowPaths ...string) error {
	trialFlowDir := filepath.Join(trialDir, "flows")
	if err := r.fs.MkdirAll(trialFlowDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", trialFlowDir, err)
	}
	trialPodDir, err := filepath.Abs(filepath.Join(trialDir, "pods"))
	if err != nil {
		return fmt.Errorf("resolving pod dir: %w", err)
	}
	for _, path := range flowPaths {
		data, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return fmt.Errorf("reading flow %s: %w", path, err)
		}
		rewritten, err := rewriteUses(data, trialPodDir)
		if err != nil {
			return fmt.Errorf("rewriting flow %s: %w", path, err)
		}
		dst := filepath.Join(trialFlowDir, filepath.Base(path))
		if err := afero.WriteFile(r.fs, dst, rewritten, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	return nil
}

// Tokens lists the $NAME substitution tokens found in a pod YAML's
// with/metas/components sections.
func Tokens(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	var tokens []string
	seen := map[string]bool{}
	walkSections(root.Content[0], func(val *yaml.Node) {
		if strings.HasPrefix(val.Value, "$") {
			name := strings.TrimPrefix(val.Value, "$")
			if !seen[name] {
				seen[name] = true
				tokens = append(tokens, name)
			}
		}
	})
	return tokens, nil
}

func substituteYAML(data []byte, params map[string]any) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return data, nil
	}
	walkSections(root.Content[0], func(val *yaml.Node) {
		name := strings.TrimPrefix(val.Value, "$")
		if v, ok := params[name]; ok {
			setScalar(val, v)
		}
	})
	return encode(&root)
}

// walkSections visits every scalar value of the with: and metas:
// mappings of a pod config, including those inside components entries.
func walkSections(doc *yaml.Node, visit func(*yaml.Node)) {
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]
		switch key {
		case "with", "metas":
			if val.Kind != yaml.MappingNode {
				continue
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				if v := val.Content[j+1]; v.Kind == yaml.ScalarNode {
					visit(v)
				}
			}
		case "components":
			if val.Kind != yaml.SequenceNode {
				continue
			}
			for _, comp := range val.Content {
				walkSections(comp, visit)
			}
		}
	}
}

func setScalar(n *yaml.Node, v any) {
	n.Kind = yaml.ScalarNode
	n.Style = 0
	switch x := v.(type) {
	case int:
		n.Tag, n.Value = "!!int", strconv.Itoa(x)
	case int64:
		n.Tag, n.Value = "!!int", strconv.FormatInt(x, 10)
	case float64:
		n.Tag, n.Value = "!!float", strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(x)
	default:
		n.Tag, n.Value = "!!str", fmt.Sprint(x)
	}
}

func rewriteUses(data []byte, trialPodDir string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return data, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at top level")
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "pods" {
			continue
		}
		pods := doc.Content[i+1]
		if pods.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(pods.Content); j += 2 {
			pod := pods.Content[j+1]
			if pod.Kind != yaml.MappingNode {
				continue
			}
			for k := 0; k+1 < len(pod.Content); k += 2 {
				key := pod.Content[k].Value
				val := pod.Content[k+1]
				if strings.HasPrefix(key, "uses") && val.Kind == yaml.ScalarNode {
					val.Value = filepath.Join(trialPodDir, filepath.Base(val.Value))
					val.Tag = "!!str"
					val.Style = 0
				}
			}
		}
	}
	return encode(&root)
}

func encode(root *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
