// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package run

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardsuite/ward/internal/bundle"
	"github.com/wardsuite/ward/internal/logging"
)

// Status describes the outcome of a run.
type Status int

const (
	// Success indicates that all requested tests ran and passed.
	Success Status = iota
	// TestsFailed indicates that the run completed but some tests failed.
	TestsFailed
	// RunFailed indicates that the run itself failed.
	RunFailed
)

const heartbeatInterval = time.Second

// Run executes tests matched by cfg.Patterns and writes results under
// cfg.ResultsDir.
func Run(ctx context.Context, cfg *Config) Status {
	vars, err := readVars(cfg)
	if err != nil {
		logging.Infof(ctx, "Failed to read vars: %v", err)
		return RunFailed
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		logging.Infof(ctx, "Failed to create results dir: %v", err)
		return RunFailed
	}
	logging.Info(ctx, "Writing results to ", cfg.ResultsDir)

	if cfg.CollectSysInfo {
		if err := writeSystemInfo(ctx, cfg.ResultsDir); err != nil {
			logging.Infof(ctx, "Failed to write system info: %v", err)
		}
	}

	args := &bundle.Args{
		Patterns:          cfg.Patterns,
		Vars:              vars,
		OutDir:            filepath.Join(cfg.ResultsDir, testOutputDirname),
		HeartbeatInterval: heartbeatInterval,
	}

	// The bundle streams control messages through a pipe to the results
	// handler, which writes results files as tests finish.
	pr, pw := io.Pipe()
	var results []*TestResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer pw.Close()
		bundle.Run(gctx, args, pw, bundle.Delegate{})
		return nil
	})
	g.Go(func() error {
		var err error
		results, err = processResults(gctx, pr, cfg.ResultsDir)
		// Drain the pipe so the bundle is not blocked if processing stopped
		// early.
		io.Copy(io.Discard, pr)
		return err
	})
	if err := g.Wait(); err != nil {
		logging.Infof(ctx, "Run failed: %v", err)
		return RunFailed
	}

	if len(results) == 0 {
		logging.Info(ctx, "No tests matched the requested patterns")
	}

	var failed int
	for _, res := range results {
		if len(res.Errors) > 0 {
			failed++
		}
	}
	logging.Infof(ctx, "Ran %d test(s), %d failed", len(results), failed)
	if failed > 0 {
		return TestsFailed
	}
	return Success
}
