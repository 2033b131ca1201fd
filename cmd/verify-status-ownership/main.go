// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Command verify-status-ownership fails when meeting statuses are written
// outside the executor, or when reason codes are spelled as raw strings
// instead of the model constants.
//
//	go run ./cmd/verify-status-ownership ./internal/... ./cmd/...
package main

import (
	"fmt"
	"os"
)

func main() {
	patterns := os.Args[1:]
	if len(patterns) == 0 {
		patterns = []string{"./internal/...", "./cmd/..."}
	}
	violations, err := Analyze(patterns...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load packages: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "status ownership violations:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, v)
		}
		os.Exit(1)
	}
}
