// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/wardsuite/ward/internal/bundle"
	"github.com/wardsuite/ward/testing"
)

// listCmd implements subcommands.Command to list registered tests.
type listCmd struct {
	json bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list tests" }
func (*listCmd) Usage() string {
	return `Usage: ward list [flag]... [pattern]...

List tests matched by zero or more patterns.

`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print full test details as JSON")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	bargs := &bundle.Args{Patterns: f.Args()}
	if c.json {
		if err := bundle.List(bargs, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list tests: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	m, err := testing.NewMatcher(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse patterns: %v\n", err)
		return subcommands.ExitUsageError
	}
	for _, t := range testing.GlobalRegistry().AllTests() {
		if m.Match(t.Name, t.Attr) {
			fmt.Println(t.Name)
		}
	}
	return subcommands.ExitSuccess
}
