// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"

	"github.com/wardsuite/ward/cmd/ward/logging"
	"github.com/wardsuite/ward/cmd/ward/run"
)

// runCmd implements subcommands.Command to run tests and collect results.
type runCmd struct {
	cfg run.Config
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run tests" }
func (*runCmd) Usage() string {
	return `Usage: ward run [flag]... [pattern]...

Run tests matched by zero or more patterns. A pattern is either a wildcard
matching test names or a single parenthesized attribute expression, e.g.
'("feature:Atomicity" && !informational)'.

`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.cfg.ResultsDir, "resultsdir", "", "directory where test results are written (default: a timestamped directory under ~/ward/results)")
	f.Var((*repeatedFlag)(&r.cfg.Vars), "var", `runtime variable to pass to tests, as "name=value" (can be repeated)`)
	f.Var((*repeatedFlag)(&r.cfg.VarsFiles), "varsfile", "YAML file containing runtime variables (can be repeated)")
	f.Var((*repeatedFlag)(&r.cfg.DefaultVarsDirs), "defaultvarsdir", "directory containing YAML files with default runtime variables (can be repeated)")
	f.BoolVar(&r.cfg.CollectSysInfo, "sysinfo", true, "write system_info.json describing this machine")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	lg := args[0].(*logging.Logger)

	r.cfg.Patterns = f.Args()
	if r.cfg.ResultsDir == "" {
		r.cfg.ResultsDir = defaultResultsDir()
	}

	switch status := run.Run(ctx, &r.cfg); status {
	case run.Success:
		return subcommands.ExitSuccess
	case run.TestsFailed:
		lg.Print("Some tests failed")
		return subcommands.ExitFailure
	default:
		lg.Print("Run failed")
		return subcommands.ExitFailure
	}
}

// defaultResultsDir returns a timestamped results dir under the user's home
// directory, falling back to the system temp dir.
func defaultResultsDir() string {
	base, err := os.UserHomeDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "ward", "results", time.Now().Format("20060102-150405"))
}
