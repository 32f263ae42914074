// Package main provides the entry point for the rifflux CLI.
package main

import (
	"fmt"
	"os"

	"github.com/rifflux/rifflux/cmd/rifflux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
