// Package optimizer runs a hyperparameter study over a flow: each trial
// samples a parameter set, materializes a trial workspace from the pod
// and flow templates, runs a full index+query evaluation, and reports
// the mean of the objective metric back to the study.
package optimizer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/flowtune/flowtune/internal/eval"
	"github.com/flowtune/flowtune/internal/params"
	"github.com/flowtune/flowtune/internal/result"
	"github.com/flowtune/flowtune/internal/runner"
	"github.com/flowtune/flowtune/internal/template"
)

var goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("40")) // green

// Optimizer wires a flow runner, templates, and a parameter space into
// a goptuna study.
type Optimizer struct {
	Runner        *runner.FlowRunner
	PodDir        string
	IndexFlow     string
	QueryFlow     string
	ParameterFile string

	StudyName      string
	Metric         string // objective metric; first recorded (sorted) when empty
	WorkspaceEnv   string
	WorkspaceRoot  string // trial workspaces are created under here
	ResultsDir     string
	BestConfigPath string

	// OverwriteTrialWorkspace deletes a trial's workspace before the
	// trial runs, so repeated parameter combinations re-index.
	OverwriteTrialWorkspace bool

	renderer *template.Renderer
	space    *params.Space
	runID    string
	runDir   string
	trialNum int
}

// Best summarizes a finished study.
type Best struct {
	Params   map[string]any
	Value    float64
	Trials   int
	Duration time.Duration
	RunDir   string
}

// Optimize runs the study for nTrials trials and writes the best-config
// file. Direction is "maximize" or "minimize"; the TPE sampler is seeded
// for reproducible studies.
func (o *Optimizer) Optimize(ctx context.Context, nTrials int, direction string, seed int64) (*Best, error) {
	space, err := params.Load(o.ParameterFile)
	if err != nil {
		return nil, err
	}
	o.space = space
	if o.renderer == nil {
		o.renderer = template.Default()
	}
	o.WorkspaceEnv = strings.TrimPrefix(o.WorkspaceEnv, "$")

	if err := o.Runner.LoadEnv(); err != nil {
		return nil, err
	}

	runDir, err := result.CreateRunDir(o.ResultsDir)
	if err != nil {
		return nil, err
	}
	o.runDir = runDir
	o.runID = uuid.New().String()
	o.trialNum = 0

	dir := goptuna.StudyDirectionMaximize
	if direction == "minimize" {
		dir = goptuna.StudyDirectionMinimize
	}
	study, err := goptuna.CreateStudy(
		o.StudyName,
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))),
		goptuna.StudyOptionDirection(dir),
	)
	if err != nil {
		return nil, fmt.Errorf("creating study: %w", err)
	}

	start := time.Now()
	if err := study.Optimize(o.objective(ctx), nTrials); err != nil {
		return nil, fmt.Errorf("optimizing: %w", err)
	}
	elapsed := time.Since(start)

	bestParams, err := study.GetBestParams()
	if err != nil {
		return nil, fmt.Errorf("reading best params: %w", err)
	}
	bestValue, err := study.GetBestValue()
	if err != nil {
		return nil, fmt.Errorf("reading best value: %w", err)
	}

	if err := o.exportBest(bestParams); err != nil {
		return nil, err
	}

	fmt.Println(goodStyle.Render(fmt.Sprintf("Number of finished trials: %d", o.trialNum)))
	fmt.Println(goodStyle.Render(fmt.Sprintf("Best trial: %v", bestParams)))
	fmt.Println(goodStyle.Render(fmt.Sprintf("Time to finish: %s", elapsed.Round(time.Millisecond))))

	return &Best{
		Params:   bestParams,
		Value:    bestValue,
		Trials:   o.trialNum,
		Duration: elapsed,
		RunDir:   runDir,
	}, nil
}

func (o *Optimizer) objective(ctx context.Context) goptuna.FuncObjective {
	return func(trial goptuna.Trial) (float64, error) {
		start := time.Now()
		o.trialNum++

		sampled, err := o.space.Sample(trial)
		if err != nil {
			return 0, err
		}

		trialWS, err := filepath.Abs(filepath.Join(o.WorkspaceRoot, o.workspaceName(sampled)))
		if err != nil {
			return 0, fmt.Errorf("resolving trial workspace: %w", err)
		}
		fmt.Printf("Trial %d: workspace %s\n", o.trialNum, trialWS)

		trialParams := make(map[string]any, len(sampled)+1)
		for k, v := range sampled {
			trialParams[k] = v
		}
		trialParams[o.WorkspaceEnv] = trialWS
		if err := os.Setenv(o.WorkspaceEnv, trialWS); err != nil {
			return 0, fmt.Errorf("setting %s: %w", o.WorkspaceEnv, err)
		}

		if o.OverwriteTrialWorkspace {
			if err := runner.CleanWorkdir(trialWS); err != nil {
				return 0, err
			}
		}

		if err := o.renderer.CreateTrialPods(o.PodDir, trialWS, trialParams); err != nil {
			return 0, err
		}
		if err := o.renderer.CreateTrialFlows(trialWS, o.IndexFlow, o.QueryFlow); err != nil {
			return 0, err
		}

		callback := eval.NewCallback(o.Metric)
		trialIndexFlow := filepath.Join(trialWS, "flows", filepath.Base(o.IndexFlow))
		trialQueryFlow := filepath.Join(trialWS, "flows", filepath.Base(o.QueryFlow))
		if err := o.Runner.RunEvaluation(ctx, trialIndexFlow, trialQueryFlow, trialWS, callback.ProcessResponse); err != nil {
			return 0, err
		}

		op, mean, err := callback.Mean()
		if err != nil {
			return 0, err
		}
		fmt.Println(goodStyle.Render(fmt.Sprintf("Avg %s: %f", op, mean)))

		means, _ := callback.Means()
		meta := &result.TrialMeta{
			Study:     o.StudyName,
			RunID:     o.runID,
			Trial:     o.trialNum,
			Params:    sampled,
			Metrics:   means,
			Objective: mean,
			DurationS: int(time.Since(start).Seconds()),
			Workspace: trialWS,
		}
		if err := result.WriteTrialMeta(result.TrialDir(o.runDir, o.trialNum), meta); err != nil {
			log.Printf("warning: writing trial meta: %v", err)
		}

		return mean, nil
	}
}

// workspaceName derives a deterministic directory name from the sampled
// values in parameter-space order, so identical combinations share a
// workspace across trials.
func (o *Optimizer) workspaceName(sampled map[string]any) string {
	parts := []string{o.WorkspaceEnv}
	for _, name := range o.space.Names() {
		parts = append(parts, fmt.Sprint(sampled[name]))
	}
	return strings.Join(parts, "_")
}

// exportBest writes the merged environment and best trial parameters as
// YAML, with keys sorted for stable output.
func (o *Optimizer) exportBest(bestParams map[string]any) error {
	merged := map[string]any{}
	for k, v := range o.Runner.EnvParameters() {
		merged[k] = v
	}
	for k, v := range bestParams {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var val yaml.Node
		if err := val.Encode(merged[k]); err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling best config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(o.BestConfigPath), 0o755); err != nil {
		return fmt.Errorf("creating best config dir: %w", err)
	}
	if err := os.WriteFile(o.BestConfigPath, data, 0o644); err != nil {
		return fmt.Errorf("writing best config: %w", err)
	}
	return nil
}
