// Package runner drives one index+query evaluation pass through a flow,
// managing the workspace directory and process environment around it.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flowtune/flowtune/internal/document"
	"github.com/flowtune/flowtune/internal/flow"
)

var (
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("160")) // red
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))  // cyan
)

// FlowRunner executes indexing and querying runs of a flow over fixed
// document sources. Sources restart on each ranging, so the same runner
// serves every trial of a study.
type FlowRunner struct {
	IndexSource    document.Source
	QuerySource    document.Source
	IndexBatchSize int
	QueryBatchSize int

	// EnvFile is a YAML mapping of environment parameters; each entry
	// is exported into the process environment and retained for the
	// best-config export. DotenvFile is an optional .env file loaded
	// alongside it.
	EnvFile    string
	DotenvFile string

	// WorkspaceEnv names the environment variable that, when set,
	// overrides the workspace passed to RunIndexing.
	WorkspaceEnv       string
	OverwriteWorkspace bool

	envParams map[string]any
}

// LoadEnv exports the configured environment files into the process
// environment. Missing configuration is not an error.
func (r *FlowRunner) LoadEnv() error {
	if r.DotenvFile != "" {
		if err := godotenv.Load(r.DotenvFile); err != nil {
			return fmt.Errorf("loading dotenv %s: %w", r.DotenvFile, err)
		}
	}
	if r.EnvFile == "" {
		log.Printf("no env file configured, skipping environment load")
		return nil
	}
	data, err := os.ReadFile(r.EnvFile)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", r.EnvFile, err)
	}
	params := map[string]any{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return fmt.Errorf("parsing env file %s: %w", r.EnvFile, err)
	}
	for k, v := range params {
		if err := os.Setenv(k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("setting %s: %w", k, err)
		}
	}
	r.envParams = params
	return nil
}

// EnvParameters returns the parameters loaded from the env file.
func (r *FlowRunner) EnvParameters() map[string]any {
	return r.envParams
}

// CleanWorkdir deletes a workspace directory if it exists.
func CleanWorkdir(workspace string) error {
	if _, err := os.Stat(workspace); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(workspace); err != nil {
		return fmt.Errorf("deleting workspace %s: %w", workspace, err)
	}
	banner(deleteStyle, "Existing workspace deleted", "WORKSPACE: "+workspace)
	return nil
}

// RunIndexing builds the index of a flow. The workspace comes from the
// runner's workspace environment variable when set, else the argument;
// the index itself lives in the `index` subdirectory. An existing index
// is deleted first when overwrite is enabled and skipped entirely
// otherwise.
func (r *FlowRunner) RunIndexing(ctx context.Context, flowPath, workspace string) error {
	if env := os.Getenv(r.WorkspaceEnv); r.WorkspaceEnv != "" && env != "" {
		workspace = env
	}
	if workspace == "" {
		return fmt.Errorf("no workspace given and %s is unset", r.WorkspaceEnv)
	}

	indexDir := filepath.Join(workspace, "index")
	if _, err := os.Stat(indexDir); err == nil {
		if !r.OverwriteWorkspace {
			banner(skipStyle, "Workspace already exists. Skipping indexing.", "WORKSPACE: "+workspace)
			return nil
		}
		if err := CleanWorkdir(indexDir); err != nil {
			return err
		}
	}

	f, err := flow.Load(flowPath)
	if err != nil {
		return err
	}
	if err := f.Index(ctx, r.IndexSource, r.IndexBatchSize); err != nil {
		return fmt.Errorf("indexing with %s: %w", flowPath, err)
	}
	return nil
}

// RunQuerying runs the query documents through a flow, passing each
// batch response to callback.
func (r *FlowRunner) RunQuerying(ctx context.Context, flowPath string, callback func(*flow.Response) error) error {
	f, err := flow.Load(flowPath)
	if err != nil {
		return err
	}
	if err := f.Search(ctx, r.QuerySource, r.QueryBatchSize, callback); err != nil {
		return fmt.Errorf("querying with %s: %w", flowPath, err)
	}
	return nil
}

// RunEvaluation performs one full trial pass: environment, indexing,
// then querying with the evaluation callback.
func (r *FlowRunner) RunEvaluation(ctx context.Context, indexFlow, queryFlow, workspace string, callback func(*flow.Response) error) error {
	if err := r.LoadEnv(); err != nil {
		return err
	}
	if err := r.RunIndexing(ctx, indexFlow, workspace); err != nil {
		return err
	}
	return r.RunQuerying(ctx, queryFlow, callback)
}

func banner(style lipgloss.Style, lines ...string) {
	rule := strings.Repeat("-", 56)
	fmt.Println(style.Render(rule))
	for _, line := range lines {
		fmt.Println(style.Render(line))
	}
	fmt.Println(style.Render(rule))
}
