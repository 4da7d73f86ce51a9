package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Study      Study     `yaml:"study"`
	Flows      Flows     `yaml:"flows"`
	Parameters string    `yaml:"parameters"`
	Data       Data      `yaml:"data"`
	Env        Env       `yaml:"env"`
	Workspace  Workspace `yaml:"workspace"`
	Output     Output    `yaml:"output"`
}

type Study struct {
	Name      string `yaml:"name"`
	Trials    int    `yaml:"trials"`
	Direction string `yaml:"direction"`
	Seed      int64  `yaml:"seed"`
	Metric    string `yaml:"metric"`
}

type Flows struct {
	Index string `yaml:"index"`
	Query string `yaml:"query"`
	Pods  string `yaml:"pods"`
}

type Data struct {
	Corpus         string `yaml:"corpus"`
	Queries        string `yaml:"queries"`
	IndexBatchSize int    `yaml:"index_batch_size"`
	QueryBatchSize int    `yaml:"query_batch_size"`
}

type Env struct {
	File   string `yaml:"file"`
	Dotenv string `yaml:"dotenv"`
}

type Workspace struct {
	Env            string `yaml:"env"`
	Root           string `yaml:"root"`
	Overwrite      bool   `yaml:"overwrite"`
	OverwriteTrial *bool  `yaml:"overwrite_trial"`
}

type Output struct {
	Dir        string `yaml:"dir"`
	BestConfig string `yaml:"best_config"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Study.Name == "" {
		cfg.Study.Name = "flowtune"
	}
	if cfg.Study.Trials < 1 {
		return fmt.Errorf("study.trials must be at least 1")
	}
	switch cfg.Study.Direction {
	case "":
		cfg.Study.Direction = "maximize"
	case "maximize", "minimize":
	default:
		return fmt.Errorf("study.direction must be maximize or minimize, got %q", cfg.Study.Direction)
	}
	if cfg.Flows.Index == "" {
		return fmt.Errorf("flows.index is required")
	}
	if cfg.Flows.Query == "" {
		return fmt.Errorf("flows.query is required")
	}
	if cfg.Flows.Pods == "" {
		return fmt.Errorf("flows.pods is required")
	}
	if cfg.Parameters == "" {
		return fmt.Errorf("parameters is required")
	}
	if cfg.Data.Corpus == "" {
		return fmt.Errorf("data.corpus is required")
	}
	if cfg.Data.Queries == "" {
		return fmt.Errorf("data.queries is required")
	}
	if cfg.Data.IndexBatchSize < 1 {
		cfg.Data.IndexBatchSize = 64
	}
	if cfg.Data.QueryBatchSize < 1 {
		cfg.Data.QueryBatchSize = 16
	}
	cfg.Workspace.Env = strings.TrimPrefix(cfg.Workspace.Env, "$")
	if cfg.Workspace.Env == "" {
		cfg.Workspace.Env = "FLOWTUNE_WORKSPACE"
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "workspaces"
	}
	if cfg.Workspace.OverwriteTrial == nil {
		v := true
		cfg.Workspace.OverwriteTrial = &v
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "results"
	}
	if cfg.Output.BestConfig == "" {
		cfg.Output.BestConfig = "config/best_config.yml"
	}
	return nil
}
