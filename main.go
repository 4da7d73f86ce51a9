package main

import (
	"os"

	"github.com/flowtune/flowtune/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
