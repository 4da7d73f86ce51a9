package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowtune/flowtune/internal/config"
	"github.com/flowtune/flowtune/internal/flow"
	"github.com/flowtune/flowtune/internal/params"
	"github.com/flowtune/flowtune/internal/template"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check config, flows, and pod templates for problems",
		Long:  "Load the config and parameter space, verify that every referenced file exists, and parse each pod template, warning about tokens no parameter or environment entry covers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			problems := 0
			checkFile := func(label, path string) {
				if path == "" {
					return
				}
				if _, err := os.Stat(path); err != nil {
					fmt.Printf("MISSING %s: %s\n", label, path)
					problems++
				}
			}
			checkFile("index flow", cfg.Flows.Index)
			checkFile("query flow", cfg.Flows.Query)
			checkFile("pod dir", cfg.Flows.Pods)
			checkFile("corpus", cfg.Data.Corpus)
			checkFile("queries", cfg.Data.Queries)
			checkFile("env file", cfg.Env.File)
			checkFile("dotenv", cfg.Env.Dotenv)

			for _, path := range []string{cfg.Flows.Index, cfg.Flows.Query} {
				if _, err := flow.Load(path); err != nil {
					fmt.Printf("BROKEN flow: %v\n", err)
					problems++
				}
			}

			space, err := params.Load(cfg.Parameters)
			if err != nil {
				return fmt.Errorf("loading parameter space: %w", err)
			}

			covered := map[string]bool{cfg.Workspace.Env: true}
			for _, name := range space.Names() {
				covered[name] = true
			}
			if cfg.Env.File != "" {
				keys, err := envKeys(cfg.Env.File)
				if err != nil {
					log.Printf("warning: %v", err)
				}
				for _, k := range keys {
					covered[k] = true
				}
			}

			tokens, err := podTokens(cfg.Flows.Pods)
			if err != nil {
				return err
			}
			for _, tok := range tokens {
				if !covered[tok] {
					log.Printf("warning: token $%s has no parameter or environment entry", tok)
				}
			}
			for _, p := range space.Params {
				if !tokenSeen(tokens, p.Name) {
					log.Printf("warning: parameter %s appears in no pod template", p.Name)
				}
			}

			if problems > 0 {
				return fmt.Errorf("%d missing file(s)", problems)
			}
			fmt.Printf("OK: %d pod token(s), %d parameter(s)\n", len(tokens), len(space.Params))
			return nil
		},
	}
}

// podTokens parses every template in the pod directory and returns the
// sorted union of their substitution tokens.
func podTokens(podDir string) ([]string, error) {
	entries, err := os.ReadDir(podDir)
	if err != nil {
		return nil, fmt.Errorf("reading pod dir %s: %w", podDir, err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(podDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading pod %s: %w", path, err)
		}
		tokens, err := template.Tokens(data)
		if err != nil {
			return nil, fmt.Errorf("parsing pod %s: %w", path, err)
		}
		for _, tok := range tokens {
			seen[tok] = true
		}
	}
	var tokens []string
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// envKeys returns the sorted parameter names of an env YAML file.
func envKeys(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	entries := map[string]any{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func tokenSeen(tokens []string, name string) bool {
	for _, tok := range tokens {
		if tok == name {
			return true
		}
	}
	return false
}
