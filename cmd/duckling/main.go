// Package main provides the entry point for the duckling CLI.
package main

import (
	"os"

	"github.com/randalmurphal/duckling/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
