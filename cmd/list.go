package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flowtune/flowtune/internal/config"
	"github.com/flowtune/flowtune/internal/params"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured flows, pods, and parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Study: %s (%s, %d trials)\n", cfg.Study.Name, cfg.Study.Direction, cfg.Study.Trials)

			fmt.Println("\nFlows:")
			fmt.Printf("  - index: %s\n", cfg.Flows.Index)
			fmt.Printf("  - query: %s\n", cfg.Flows.Query)

			fmt.Println("\nPods:")
			pods, err := listPodFiles(cfg.Flows.Pods)
			if err != nil {
				return err
			}
			for _, p := range pods {
				fmt.Printf("  - %s\n", p)
			}

			space, err := params.Load(cfg.Parameters)
			if err != nil {
				return err
			}
			fmt.Println("\nParameters:")
			for _, p := range space.Params {
				fmt.Printf("  - %s (%s)\n", p.Name, describeParam(p))
			}
			return nil
		},
	}
}

func listPodFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading pod dir %s: %w", dir, err)
	}
	var pods []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yml" || ext == ".yaml" {
			pods = append(pods, e.Name())
		}
	}
	sort.Strings(pods)
	return pods, nil
}

func describeParam(p params.Parameter) string {
	switch p.Type {
	case "categorical":
		return fmt.Sprintf("categorical: %s", strings.Join(p.Choices, ", "))
	case "int":
		return fmt.Sprintf("int %g..%g", p.Low, p.High)
	case "step_int":
		return fmt.Sprintf("int %g..%g step %d", p.Low, p.High, p.Step)
	case "discrete_uniform":
		return fmt.Sprintf("float %g..%g q %g", p.Low, p.High, p.Q)
	default:
		return fmt.Sprintf("%s %g..%g", p.Type, p.Low, p.High)
	}
}
