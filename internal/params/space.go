// Package params parses hyperparameter search spaces and samples them
// through goptuna trials.
package params

import (
	"fmt"
	"os"

	"github.com/c-bata/goptuna"
	"gopkg.in/yaml.v3"
)

// Parameter is one entry of the search space.
type Parameter struct {
	Name    string
	Type    string
	Low     float64
	High    float64
	Step    int
	Q       float64
	Choices []string
}

// Space is an ordered search space. Order follows the parameter file and
// defines trial workspace naming.
type Space struct {
	Params []Parameter
}

// Load reads a parameter space file. Each top-level key names a
// parameter; its value holds `type` plus the bounds that type needs.
func Load(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters %s: %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing parameters %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("parameters %s: empty document", path)
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parameters %s: expected a mapping", path)
	}

	space := &Space{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name := doc.Content[i].Value
		var raw struct {
			Type    string   `yaml:"type"`
			Low     float64  `yaml:"low"`
			High    float64  `yaml:"high"`
			Step    int      `yaml:"step"`
			Q       float64  `yaml:"q"`
			Choices []string `yaml:"choices"`
		}
		if err := doc.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		p := Parameter{
			Name: name, Type: raw.Type,
			Low: raw.Low, High: raw.High,
			Step: raw.Step, Q: raw.Q, Choices: raw.Choices,
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		space.Params = append(space.Params, p)
	}
	if len(space.Params) == 0 {
		return nil, fmt.Errorf("parameters %s: no parameters defined", path)
	}
	return space, nil
}

func (p *Parameter) validate() error {
	switch p.Type {
	case "uniform", "loguniform":
		if p.Low >= p.High {
			return fmt.Errorf("low must be below high")
		}
		if p.Type == "loguniform" && p.Low <= 0 {
			return fmt.Errorf("loguniform requires low > 0")
		}
	case "int":
		if p.Low >= p.High {
			return fmt.Errorf("low must be below high")
		}
	case "step_int":
		if p.Low >= p.High {
			return fmt.Errorf("low must be below high")
		}
		if p.Step < 1 {
			return fmt.Errorf("step_int requires step >= 1")
		}
	case "discrete_uniform":
		if p.Low >= p.High {
			return fmt.Errorf("low must be below high")
		}
		if p.Q <= 0 {
			return fmt.Errorf("discrete_uniform requires q > 0")
		}
	case "categorical":
		if len(p.Choices) == 0 {
			return fmt.Errorf("categorical requires choices")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
	return nil
}

// Names returns the parameter names in space order.
func (s *Space) Names() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// Sample draws one value per parameter from the trial.
func (s *Space) Sample(trial goptuna.Trial) (map[string]any, error) {
	sampled := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		var v any
		var err error
		switch p.Type {
		case "uniform":
			v, err = trial.SuggestFloat(p.Name, p.Low, p.High)
		case "loguniform":
			v, err = trial.SuggestLogFloat(p.Name, p.Low, p.High)
		case "int":
			v, err = trial.SuggestInt(p.Name, int(p.Low), int(p.High))
		case "step_int":
			v, err = trial.SuggestStepInt(p.Name, int(p.Low), int(p.High), p.Step)
		case "discrete_uniform":
			v, err = trial.SuggestDiscreteFloat(p.Name, p.Low, p.High, p.Q)
		case "categorical":
			v, err = trial.SuggestCategorical(p.Name, p.Choices)
		default:
			err = fmt.Errorf("unknown type %q", p.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("sampling %s: %w", p.Name, err)
		}
		sampled[p.Name] = v
	}
	return sampled, nil
}
