// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package bundle runs collections of registered tests and reports their
// progress as a stream of control messages.
package bundle

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/control"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/logging"
	"github.com/wardsuite/ward/internal/planner"
	"github.com/wardsuite/ward/internal/timing"
	"github.com/wardsuite/ward/testing"
)

// Status codes returned by Run.
const (
	statusSuccess     = 0 // all tests ran (they may have failed)
	statusError       = 1 // the run was aborted
	statusBadPatterns = 2 // patterns didn't parse
	statusNoTests     = 3 // no tests matched the patterns
)

// Args describes a request to run or list tests.
type Args struct {
	// Patterns specifies which tests to operate on. An empty list matches
	// all tests. See testing.NewMatcher for the supported syntax.
	Patterns []string

	// Vars contains names and values of runtime variables supplied to tests
	// and fixtures.
	Vars map[string]string

	// OutDir is the base directory under which entities write output files.
	OutDir string

	// HeartbeatInterval is the interval at which heartbeat messages are
	// written while tests run. If non-positive, no heartbeats are written.
	HeartbeatInterval time.Duration
}

// Delegate injects functions provided by specific bundles.
type Delegate struct {
	// TestHook is called before each test if it is non-nil. The returned
	// closure is executed after the test if it is also non-nil.
	TestHook func(ctx context.Context, s *testing.TestHookState) func(ctx context.Context, s *testing.TestHookState)

	// RunHook is called at the beginning of a run if it is non-nil. The
	// returned closure is executed at the end of the run if it is also
	// non-nil. If RunHook returns an error, the run is aborted.
	RunHook func(ctx context.Context) (func(context.Context) error, error)
}

// Run runs tests in the global registry matched by args.Patterns, writing
// control messages to w. The returned status code describes the overall
// outcome; individual test failures are reported via EntityError messages and
// do not affect it.
func Run(ctx context.Context, args *Args, w io.Writer, d Delegate) int {
	mw := control.NewMessageWriter(w)

	abort := func(status int, err error) int {
		mw.WriteMessage(&control.RunError{
			Time:   time.Now(),
			Error:  *testing.NewError(nil, err.Error(), err.Error(), 0),
			Status: status,
		})
		return status
	}

	if errs := testing.RegistrationErrors(); len(errs) > 0 {
		return abort(statusError, errors.Wrap(errs[0], "bundle initialization failed"))
	}

	tests, err := matchedTests(args.Patterns)
	if err != nil {
		return abort(statusBadPatterns, err)
	}
	if len(tests) == 0 {
		mw.WriteMessage(&control.RunStart{Time: time.Now()})
		mw.WriteMessage(&control.RunEnd{Time: time.Now()})
		return statusNoTests
	}

	// Logs emitted outside any entity become RunLog messages.
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(logging.LevelInfo, false, logging.NewFuncSink(func(msg string) {
		mw.WriteMessage(&control.RunLog{Time: time.Now(), Text: msg})
	})))

	hbw := control.NewHeartbeatWriter(mw, args.HeartbeatInterval)
	defer hbw.Stop()

	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.Name
	}
	mw.WriteMessage(&control.RunStart{Time: time.Now(), TestNames: names})

	if d.RunHook != nil {
		post, err := d.RunHook(ctx)
		if err != nil {
			return abort(statusError, errors.Wrap(err, "run hook failed"))
		}
		if post != nil {
			defer func() {
				if err := post(ctx); err != nil {
					logging.Infof(ctx, "Run hook teardown failed: %v", err)
				}
			}()
		}
	}

	pcfg := &planner.Config{
		OutDir:   args.OutDir,
		Vars:     args.Vars,
		Fixtures: testing.GlobalRegistry().AllFixtures(),
		TestHook: d.TestHook,
	}
	if err := planner.RunTests(ctx, tests, &eventWriter{mw: mw}, pcfg); err != nil {
		return abort(statusError, errors.Wrap(err, "run failed"))
	}

	mw.WriteMessage(&control.RunEnd{Time: time.Now()})
	return statusSuccess
}

// List writes a JSON array of entity descriptions for tests matched by
// args.Patterns to w.
func List(args *Args, w io.Writer) error {
	tests, err := matchedTests(args.Patterns)
	if err != nil {
		return err
	}
	infos := make([]*jsonprotocol.EntityInfo, len(tests))
	for i, t := range tests {
		infos[i] = t.EntityInfo()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

// matchedTests returns sorted tests in the global registry matched by
// patterns.
func matchedTests(patterns []string) ([]*testing.TestInstance, error) {
	m, err := testing.NewMatcher(patterns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse patterns")
	}
	var tests []*testing.TestInstance
	for _, t := range testing.GlobalRegistry().AllTests() {
		if m.Match(t.Name, t.Attr) {
			tests = append(tests, t)
		}
	}
	testing.SortTests(tests)
	return tests, nil
}

// eventWriter converts planner output into control messages.
type eventWriter struct {
	mw *control.MessageWriter
}

func (ew *eventWriter) EntityStart(ei *jsonprotocol.EntityInfo, outDir string) error {
	return ew.mw.WriteMessage(&control.EntityStart{Time: time.Now(), Info: *ei, OutDir: outDir})
}

func (ew *eventWriter) EntityLog(ei *jsonprotocol.EntityInfo, msg string) error {
	return ew.mw.WriteMessage(&control.EntityLog{Time: time.Now(), Text: msg, Name: ei.Name})
}

func (ew *eventWriter) EntityAnnotation(ei *jsonprotocol.EntityInfo, a *jsonprotocol.Annotation) error {
	return ew.mw.WriteMessage(&control.EntityAnnotation{Time: time.Now(), Annotation: *a, Name: ei.Name})
}

func (ew *eventWriter) EntityError(ei *jsonprotocol.EntityInfo, e *jsonprotocol.Error) error {
	return ew.mw.WriteMessage(&control.EntityError{Time: time.Now(), Error: *e, Name: ei.Name})
}

func (ew *eventWriter) EntityEnd(ei *jsonprotocol.EntityInfo, skipReasons []string, timingLog *timing.Log) error {
	return ew.mw.WriteMessage(&control.EntityEnd{Time: time.Now(), Name: ei.Name, SkipReasons: skipReasons, TimingLog: timingLog})
}
