// Package main provides the entry point for the chipchip CLI.
package main

import (
	"fmt"
	"os"

	"chipchip/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
