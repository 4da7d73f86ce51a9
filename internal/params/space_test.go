package params_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c-bata/goptuna"

	"github.com/flowtune/flowtune/internal/params"
)

func writeSpace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parameters.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadPreservesOrder(t *testing.T) {
	path := writeSpace(t, `TOP_K:
  type: int
  low: 5
  high: 50
ANALYZER:
  type: categorical
  choices: [standard, en, simple]
FUZZINESS:
  type: discrete_uniform
  low: 0
  high: 2
  q: 1
`)
	space, err := params.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"TOP_K", "ANALYZER", "FUZZINESS"}
	got := space.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d parameters, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing type", "P:\n  low: 1\n  high: 2\n"},
		{"unknown type", "P:\n  type: gaussian\n  low: 1\n  high: 2\n"},
		{"inverted bounds", "P:\n  type: uniform\n  low: 2\n  high: 1\n"},
		{"loguniform zero low", "P:\n  type: loguniform\n  low: 0\n  high: 1\n"},
		{"categorical no choices", "P:\n  type: categorical\n"},
		{"discrete without q", "P:\n  type: discrete_uniform\n  low: 0\n  high: 1\n"},
		{"empty space", "{}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSpace(t, tt.content)
			if _, err := params.Load(path); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestSample(t *testing.T) {
	path := writeSpace(t, `TOP_K:
  type: int
  low: 5
  high: 50
RATE:
  type: loguniform
  low: 0.001
  high: 0.1
ANALYZER:
  type: categorical
  choices: [standard, keyword]
`)
	space, err := params.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	study, err := goptuna.CreateStudy("sample-test")
	if err != nil {
		t.Fatalf("CreateStudy: %v", err)
	}
	var sampled map[string]any
	err = study.Optimize(func(trial goptuna.Trial) (float64, error) {
		var err error
		sampled, err = space.Sample(trial)
		return 0, err
	}, 1)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if len(sampled) != 3 {
		t.Fatalf("expected 3 sampled values, got %d", len(sampled))
	}
	topK, ok := sampled["TOP_K"].(int)
	if !ok || topK < 5 || topK > 50 {
		t.Errorf("TOP_K = %v, want int in [5,50]", sampled["TOP_K"])
	}
	rate, ok := sampled["RATE"].(float64)
	if !ok || rate < 0.001 || rate > 0.1 {
		t.Errorf("RATE = %v, want float in [0.001,0.1]", sampled["RATE"])
	}
	analyzer, ok := sampled["ANALYZER"].(string)
	if !ok || (analyzer != "standard" && analyzer != "keyword") {
		t.Errorf("ANALYZER = %v, want one of the choices", sampled["ANALYZER"])
	}
}
