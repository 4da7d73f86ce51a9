package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowtune",
		Short: "Hyperparameter optimization for search flows",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "flowtune.yaml", "config file path")
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
