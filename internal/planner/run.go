// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package planner handles the execution of a set of test instances, including
// the management of fixtures they depend on.
package planner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/timing"
	"github.com/wardsuite/ward/testing"
)

// Config contains details about how the planner should run tests.
type Config struct {
	// OutDir is the base directory under which tests and fixtures write
	// output files. If empty, temporary directories are used.
	OutDir string

	// Vars contains names and values of runtime variables used to pass
	// out-of-band data to tests and fixtures.
	Vars map[string]string

	// Fixtures is a map from fixture names to fixture instances available to
	// the tests being run.
	Fixtures map[string]*testing.FixtureInstance

	// TestHook is run before each test if it is non-nil. The returned closure
	// is run after the test if it is also non-nil.
	TestHook func(ctx context.Context, s *testing.TestHookState) func(ctx context.Context, s *testing.TestHookState)

	// CustomGracePeriod specifies the grace period given to user code after
	// its deadline before it is abandoned. If nil, a reasonable default is
	// used. Config owners should set this only in unit tests.
	CustomGracePeriod *time.Duration
}

// GracePeriod returns the grace period given to user code after its deadline.
func (c *Config) GracePeriod() time.Duration {
	if c.CustomGracePeriod != nil {
		return *c.CustomGracePeriod
	}
	return defaultGracePeriod
}

// RunTests runs a set of tests, writing outputs to out.
//
// RunTests sets up and tears down fixtures the tests depend on as it walks
// the sorted test list. It is safe to call RunTests concurrently with different
// OutputStreams so long as the Configs do not share OutDir.
func RunTests(ctx context.Context, tests []*testing.TestInstance, out OutputStream, pcfg *Config) error {
	tests = append([]*testing.TestInstance(nil), tests...)
	testing.SortTests(tests)

	stack := newFixtureStack(pcfg, out)
	for _, t := range tests {
		if err := runTest(ctx, t, stack, out, pcfg); err != nil {
			return err
		}
	}

	// Tear down the remaining fixtures.
	for len(stack.Names()) > 0 {
		if err := stack.Pop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runTest runs a single test after adjusting the fixture stack for it.
//
// An error is returned only if the test execution was abandoned, e.g. user
// code ignored the timeout. Test failures are reported via out and do not
// result in an error.
func runTest(ctx context.Context, t *testing.TestInstance, stack *fixtureStack, out OutputStream, pcfg *Config) error {
	tout := newEntityOutputStream(out, t.EntityInfo())

	reportOrphan := func(err error) {
		tout.Start("")
		tout.Error(&jsonprotocol.Error{Reason: err.Error()})
		tout.End(nil, timing.NewLog())
	}

	chain, err := fixtureChain(t.Fixture, pcfg.Fixtures)
	if err != nil {
		reportOrphan(err)
		return nil
	}

	if err := adjustFixtureStack(ctx, stack, chain); err != nil {
		return err
	}

	// If a fixture the test depends on failed to set up, report its errors
	// for the test without running it.
	if errs := stack.Errors(); len(errs) > 0 {
		tout.Start("")
		for _, e := range errs {
			tout.Error(e)
		}
		tout.End(nil, timing.NewLog())
		return nil
	}

	if err := stack.MarkDirty(); err != nil {
		return err
	}

	outDir, err := createEntityOutDir(pcfg.OutDir, t.Name)
	if err != nil {
		reportOrphan(err)
		return nil
	}

	timingLog := timing.NewLog()
	ctx = timing.NewContext(ctx, timingLog)

	condition := testing.NewEntityCondition()
	rcfg := &testing.RuntimeConfig{
		OutDir:    outDir,
		Vars:      pcfg.Vars,
		FixtValue: stack.Val(),
	}
	root := testing.NewTestEntityRoot(t, rcfg, tout, condition)
	ctx = root.NewContext(ctx)

	tout.Start(outDir)

	var postHook func(ctx context.Context, s *testing.TestHookState)
	if pcfg.TestHook != nil {
		postHook = pcfg.TestHook(ctx, root.NewTestHookState())
	}

	postTest, err := stack.PreTest(ctx, t, outDir, tout, condition)
	if err != nil {
		return err
	}

	if !condition.HasError() {
		if err := runTestBody(ctx, t, root, pcfg); err != nil {
			tout.Error(&jsonprotocol.Error{Reason: err.Error()})
			dumpGoroutines(tout)
			tout.End(nil, timingLog)
			return err
		}
	}

	if err := postTest(ctx); err != nil {
		return err
	}

	if postHook != nil {
		postHook(ctx, root.NewTestHookState())
	}

	tout.End(nil, timingLog)
	return nil
}

// runTestBody runs the test function with a timeout.
func runTestBody(ctx context.Context, t *testing.TestInstance, root *testing.TestEntityRoot, pcfg *Config) error {
	gracePeriod := pcfg.GracePeriod()
	if t.ExitTimeout > 0 {
		gracePeriod = t.ExitTimeout
	}
	s := root.NewTestState()
	return safeCall(ctx, t.Name, t.Timeout, gracePeriod, errorOnPanic(s), func(ctx context.Context) {
		if t.Timeout <= 0 {
			s.Fatal("Invalid timeout ", t.Timeout)
		}
		t.Func(ctx, s)
	})
}

// fixtureChain resolves the chain of fixtures a test depends on, from the
// root fixture to the direct parent. An empty fixture name resolves to an
// empty chain.
func fixtureChain(name string, fixtures map[string]*testing.FixtureInstance) ([]*testing.FixtureInstance, error) {
	var chain []*testing.FixtureInstance
	seen := make(map[string]struct{})
	for name != "" {
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("fixture %q has circular dependency", name)
		}
		seen[name] = struct{}{}
		f, ok := fixtures[name]
		if !ok {
			return nil, errors.Errorf("fixture %q not found", name)
		}
		chain = append(chain, f)
		name = f.Parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// adjustFixtureStack pops, resets and pushes fixtures so that the stack
// consists of exactly the fixtures in chain, resetting surviving fixtures
// between tests.
func adjustFixtureStack(ctx context.Context, stack *fixtureStack, chain []*testing.FixtureInstance) error {
	chainNames := make([]string, len(chain))
	for i, f := range chain {
		chainNames[i] = f.Name
	}

	// Pop fixtures the next test does not depend on.
	for !isPrefix(stack.Names(), chainNames) {
		if err := stack.Pop(ctx); err != nil {
			return err
		}
	}

	// Reset surviving fixtures if a test has run since the last reset.
	if stack.dirty {
		if err := stack.Reset(ctx); err != nil {
			return err
		}
	}

	// Pop fixtures that failed to reset. Tests get a freshly set up fixture
	// instead.
	for stack.Status() == statusYellow {
		if err := stack.Pop(ctx); err != nil {
			return err
		}
	}

	// Push fixtures the next test depends on.
	for _, f := range chain[len(stack.Names()):] {
		if err := stack.Push(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func isPrefix(p, s []string) bool {
	if len(p) > len(s) {
		return false
	}
	for i := range p {
		if p[i] != s[i] {
			return false
		}
	}
	return true
}

// createEntityOutDir creates an output directory for the entity with the
// given name. If baseDir is empty, files are put under a temporary directory.
func createEntityOutDir(baseDir, name string) (string, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.MkdirTemp("", "ward_out.")
		if err != nil {
			return "", err
		}
	}
	outDir := filepath.Join(baseDir, name)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	// Make the directory world-writable so that tests can create files as
	// other users, and set the sticky bit to prevent users from deleting
	// other users' files.
	if err := os.Chmod(outDir, 0777|os.ModeSticky); err != nil {
		return "", err
	}
	return outDir, nil
}

// dumpGoroutines writes a goroutine dump to the entity log to help debug
// abandoned user code.
func dumpGoroutines(tout *entityOutputStream) {
	p := pprof.Lookup("goroutine")
	if p == nil {
		return
	}
	var b bytes.Buffer
	if err := p.WriteTo(&b, 2); err != nil {
		return
	}
	tout.Log("Dumping all goroutines")
	for _, l := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		tout.Log(l)
	}
}
