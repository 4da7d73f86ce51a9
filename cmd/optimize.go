package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/flowtune/flowtune/internal/config"
	"github.com/flowtune/flowtune/internal/document"
	"github.com/flowtune/flowtune/internal/optimizer"
	"github.com/flowtune/flowtune/internal/report"
	"github.com/flowtune/flowtune/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagTrials    int
	flagSeed      int64
	flagDirection string
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a hyperparameter study",
		RunE:  runOptimize,
	}
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override trial count")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "override sampler seed")
	cmd.Flags().StringVar(&flagDirection, "direction", "", "override study direction (maximize, minimize)")
	return cmd
}

// applyStudyOverrides copies flags the user actually set onto the
// loaded config, so zero values like --seed 0 still override.
func applyStudyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("trials") {
		cfg.Study.Trials = flagTrials
	}
	if cmd.Flags().Changed("seed") {
		cfg.Study.Seed = flagSeed
	}
	if cmd.Flags().Changed("direction") {
		cfg.Study.Direction = flagDirection
	}
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyStudyOverrides(cmd, cfg)

	run := &runner.FlowRunner{
		IndexSource:        document.JSONLSource(cfg.Data.Corpus),
		QuerySource:        document.JSONLSource(cfg.Data.Queries),
		IndexBatchSize:     cfg.Data.IndexBatchSize,
		QueryBatchSize:     cfg.Data.QueryBatchSize,
		EnvFile:            cfg.Env.File,
		DotenvFile:         cfg.Env.Dotenv,
		WorkspaceEnv:       cfg.Workspace.Env,
		OverwriteWorkspace: cfg.Workspace.Overwrite,
	}

	opt := &optimizer.Optimizer{
		Runner:                  run,
		PodDir:                  cfg.Flows.Pods,
		IndexFlow:               cfg.Flows.Index,
		QueryFlow:               cfg.Flows.Query,
		ParameterFile:           cfg.Parameters,
		StudyName:               cfg.Study.Name,
		Metric:                  cfg.Study.Metric,
		WorkspaceEnv:            cfg.Workspace.Env,
		WorkspaceRoot:           cfg.Workspace.Root,
		ResultsDir:              cfg.Output.Dir,
		BestConfigPath:          cfg.Output.BestConfig,
		OverwriteTrialWorkspace: *cfg.Workspace.OverwriteTrial,
	}

	best, err := opt.Optimize(context.Background(), cfg.Study.Trials, cfg.Study.Direction, cfg.Study.Seed)
	if err != nil {
		return err
	}

	fmt.Println("\n--- Trials ---")
	return report.Generate(best.RunDir, "table", cfg.Study.Direction, os.Stdout)
}
