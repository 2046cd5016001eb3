// Package main is the entry point for the society gate service.
package main

import (
	"fmt"
	"os"

	"society-gate-backend/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
