// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testing implements public framework APIs, as well as
// framework-internal facility to run an entity.
//
// An entity is a piece of user code registered to the framework with metadata.
// Currently there are two types of entities: tests and fixtures. Entities are
// registered to the framework by calling testing.Add* at test bundle
// initialization time. Entity metadata contain various information the
// framework needs to know to call into an entity properly. When a test bundle
// is started, the framework builds an execution plan of entities according to
// the request and runs them.
//
// The framework typically calls into user functions with two arguments:
// context.Context and testing.*State (the exact State type varies).
// context.Context is associated with the entity for which a user function is
// called. One can call testing.Context* functions with a given context to
// query entity metadata, or emit logs for an entity (testing.ContextLog).
//
// A new State object is created by the framework every time on calling into
// an entity. This means that there might be multiple State objects for an
// entity at a time. To maintain states common to multiple State objects for
// the same entity, a single EntityRoot object (and additionally a
// TestEntityRoot object in the case of a test) is allocated. Root objects are
// private to the framework, and user code always accesses Root objects
// indirectly via State objects.
//
// Since there are several State types that provide similar but different sets
// of methods, State types typically embed mix-in types that actually implement
// API methods.
package testing

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/logging"
	"github.com/wardsuite/ward/internal/testcontext"
	"github.com/wardsuite/ward/internal/timing"
)

// EntityCondition stores mutable condition of an entity.
//
// A single EntityCondition is shared between a test and the fixture PreTest
// and PostTest calls surrounding it, so it is also where annotations attached
// to the test are deduplicated: the same (key, value) pair reported twice
// within one test invocation is dropped on the second report.
type EntityCondition struct {
	mu          sync.Mutex
	hasError    bool
	annotations map[Annotation]struct{}
}

// NewEntityCondition creates a new EntityCondition.
func NewEntityCondition() *EntityCondition {
	return &EntityCondition{annotations: make(map[Annotation]struct{})}
}

// RecordError records that an error has been reported for the entity.
func (c *EntityCondition) RecordError() {
	c.mu.Lock()
	c.hasError = true
	c.mu.Unlock()
}

// HasError returns whether an error has been reported for the entity.
func (c *EntityCondition) HasError() bool {
	c.mu.Lock()
	res := c.hasError
	c.mu.Unlock()
	return res
}

// recordAnnotation records that a has been attached to the entity. It returns
// false if the same pair was attached before.
func (c *EntityCondition) recordAnnotation(a Annotation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.annotations[a]; ok {
		return false
	}
	c.annotations[a] = struct{}{}
	return true
}

// EntityConstraints represents constraints imposed to an entity.
// For example, a test can only access runtime variables declared on its
// registration. This struct carries a list of declared runtime variables to
// be checked against in State.Var.
type EntityConstraints struct {
	allVars []string
}

// RuntimeConfig contains details about how an individual entity should be run.
type RuntimeConfig struct {
	// OutDir is the directory to which the entity will write output files.
	OutDir string
	// Vars contains names and values of out-of-band variables passed to
	// tests at runtime. Names must be registered in Test.Vars and values
	// may be accessed using State.Var.
	Vars map[string]string
	// FixtValue is a value returned by a parent fixture.
	// It is nil if not available.
	FixtValue interface{}
	// FixtCtx is the context that lives as long as the fixture.
	// It can be accessed only from testing.FixtState.
	FixtCtx context.Context
}

// EntityRoot is the root of all State objects associated with an entity.
// EntityRoot keeps track of states shared among all State objects associated
// with an entity (e.g. whether any error has been reported), as well as
// immutable entity information such as RuntimeConfig. Make sure to create
// State objects for an entity from the same EntityRoot.
// EntityRoot must be kept private to the framework.
type EntityRoot struct {
	ce        *testcontext.CurrentEntity // current entity info to be available via context.Context
	cst       *EntityConstraints         // constraints for the entity
	cfg       *RuntimeConfig             // details about how to run an entity
	out       OutputStream               // stream to which logging messages and errors are reported
	condition *EntityCondition
}

// NewEntityRoot returns a new EntityRoot object.
func NewEntityRoot(ce *testcontext.CurrentEntity, cst *EntityConstraints, cfg *RuntimeConfig, out OutputStream, condition *EntityCondition) *EntityRoot {
	return &EntityRoot{
		ce:        ce,
		cst:       cst,
		cfg:       cfg,
		out:       out,
		condition: condition,
	}
}

func (r *EntityRoot) newGlobalMixin(errPrefix string, hasError bool) *globalMixin {
	return &globalMixin{
		entityRoot: r,
		errPrefix:  errPrefix,
		hasError:   hasError,
	}
}

func (r *EntityRoot) newEntityMixin() *entityMixin {
	return &entityMixin{
		entityRoot: r,
	}
}

func (r *EntityRoot) newAnnotationMixin() *annotationMixin {
	return &annotationMixin{
		entityRoot: r,
	}
}

// NewFixtState creates a FixtState for a fixture.
func (r *EntityRoot) NewFixtState() *FixtState {
	return &FixtState{
		globalMixin: r.newGlobalMixin("", r.hasError()),
		entityMixin: r.newEntityMixin(),
		entityRoot:  r,
	}
}

// NewContext creates a new context associated with the entity.
func (r *EntityRoot) NewContext(ctx context.Context) context.Context {
	return NewContext(ctx, r.ce, logging.NewFuncSink(func(msg string) { r.out.Log(msg) }))
}

// hasError checks if any error has been reported.
func (r *EntityRoot) hasError() bool {
	return r.condition.HasError()
}

// recordError records that the entity has reported an error.
func (r *EntityRoot) recordError() {
	r.condition.RecordError()
}

// TestEntityRoot is the root of all State objects associated with a test.
// TestEntityRoot is very similar to EntityRoot, but it contains additional
// states and immutable test information.
// TestEntityRoot must be kept private to the framework.
type TestEntityRoot struct {
	entityRoot *EntityRoot
	test       *TestInstance // test being run
}

// NewTestEntityRoot returns a new TestEntityRoot object.
func NewTestEntityRoot(test *TestInstance, cfg *RuntimeConfig, out OutputStream, condition *EntityCondition) *TestEntityRoot {
	ce := &testcontext.CurrentEntity{
		Name:     test.Name,
		OutDir:   cfg.OutDir,
		Features: test.Features,
		Labels:   labelStrings(test.Labels),
	}
	return &TestEntityRoot{
		entityRoot: NewEntityRoot(ce, test.Constraints(), cfg, out, condition),
		test:       test,
	}
}

// EntityInfo returns the test being run as a jsonprotocol.EntityInfo.
func (r *TestEntityRoot) EntityInfo() *jsonprotocol.EntityInfo {
	return r.test.EntityInfo()
}

func (r *TestEntityRoot) newTestMixin() *testMixin {
	return &testMixin{
		testRoot: r,
	}
}

// NewTestState creates a State for a test.
func (r *TestEntityRoot) NewTestState() *State {
	return &State{
		globalMixin:     r.entityRoot.newGlobalMixin("", r.hasError()),
		entityMixin:     r.entityRoot.newEntityMixin(),
		annotationMixin: r.entityRoot.newAnnotationMixin(),
		testMixin:       r.newTestMixin(),
		testRoot:        r,
	}
}

// NewTestHookState creates a TestHookState for a test hook.
func (r *TestEntityRoot) NewTestHookState() *TestHookState {
	return &TestHookState{
		globalMixin: r.entityRoot.newGlobalMixin("", r.hasError()),
		entityMixin: r.entityRoot.newEntityMixin(),
		testMixin:   r.newTestMixin(),
	}
}

// NewContext creates a new context associated with the entity.
func (r *TestEntityRoot) NewContext(ctx context.Context) context.Context {
	return r.entityRoot.NewContext(ctx)
}

func (r *TestEntityRoot) hasError() bool {
	return r.entityRoot.hasError()
}

// LogSink returns a logging sink for the test entity.
func (r *TestEntityRoot) LogSink() logging.Sink {
	return logging.NewFuncSink(func(msg string) { r.entityRoot.out.Log(msg) })
}

// FixtTestEntityRoot is the root of all State objects associated with a test
// and a fixture. Such a state is only FixtTestState.
// FixtTestEntityRoot must be kept private to the framework.
type FixtTestEntityRoot struct {
	entityRoot *EntityRoot
}

// NewFixtTestEntityRoot creates a new FixtTestEntityRoot. test is the test
// the fixture is about to run; out and condition must be the ones associated
// with the test so that errors and annotations reported through this root
// attach to the test's result record.
func NewFixtTestEntityRoot(fixture *FixtureInstance, test *TestInstance, cfg *RuntimeConfig, out OutputStream, condition *EntityCondition) *FixtTestEntityRoot {
	ce := &testcontext.CurrentEntity{
		Name:     test.Name,
		OutDir:   cfg.OutDir, // test outDir
		Features: test.Features,
		Labels:   labelStrings(test.Labels),
	}
	return &FixtTestEntityRoot{
		entityRoot: NewEntityRoot(ce, fixture.Constraints(), cfg, out, condition),
	}
}

func (r *FixtTestEntityRoot) hasError() bool {
	return r.entityRoot.hasError()
}

// LogSink returns a logging sink for the entity.
func (r *FixtTestEntityRoot) LogSink() logging.Sink {
	return logging.NewFuncSink(func(msg string) { r.entityRoot.out.Log(msg) })
}

// OutDir returns a directory into which the entity may place arbitrary files
// that should be included with the test results.
func (r *FixtTestEntityRoot) OutDir() string {
	return r.entityRoot.cfg.OutDir
}

// NewFixtTestState creates a FixtTestState.
// ctx should have the same lifetime as the test, including PreTest and
// PostTest.
func (r *FixtTestEntityRoot) NewFixtTestState(ctx context.Context) *FixtTestState {
	return &FixtTestState{
		globalMixin:     r.entityRoot.newGlobalMixin("", r.hasError()),
		annotationMixin: r.entityRoot.newAnnotationMixin(),
		testCtx:         ctx,
	}
}

// NewContext returns a context.Context to be used for the entity.
func NewContext(ctx context.Context, ec *testcontext.CurrentEntity, sink logging.Sink) context.Context {
	logger := logging.NewSinkLogger(logging.LevelInfo, false, sink)
	ctx = logging.AttachLoggerNoPropagation(ctx, logger)
	ctx = testcontext.WithCurrentEntity(ctx, ec)
	return ctx
}

func labelStrings(labels []Annotation) []string {
	ls := make([]string, len(labels))
	for i, l := range labels {
		ls[i] = l.Key + ":" + l.Value
	}
	return ls
}

// globalMixin implements common methods for all State types.
// A globalMixin object must not be shared among multiple State objects.
type globalMixin struct {
	entityRoot *EntityRoot
	errPrefix  string // prefix to be added to error messages

	mu       sync.Mutex // protects hasError
	hasError bool       // true if any error was reported from this State object or subtests' State objects
}

// Log formats its arguments using default formatting and logs them.
func (s *globalMixin) Log(args ...interface{}) {
	s.entityRoot.out.Log(fmt.Sprint(args...))
}

// Logf is similar to Log but formats its arguments using fmt.Sprintf.
func (s *globalMixin) Logf(format string, args ...interface{}) {
	s.entityRoot.out.Log(fmt.Sprintf(format, args...))
}

// Error formats its arguments using default formatting and marks the entity
// as having failed (using the arguments as a reason for the failure)
// while letting the entity continue execution.
func (s *globalMixin) Error(args ...interface{}) {
	s.recordError()
	fullMsg, lastMsg, err := s.formatError(args...)
	e := NewError(err, fullMsg, lastMsg, 1)
	s.entityRoot.out.Error(e)
}

// Errorf is similar to Error but formats its arguments using fmt.Sprintf.
func (s *globalMixin) Errorf(format string, args ...interface{}) {
	s.recordError()
	fullMsg, lastMsg, err := s.formatErrorf(format, args...)
	e := NewError(err, fullMsg, lastMsg, 1)
	s.entityRoot.out.Error(e)
}

// Fatal is similar to Error but additionally immediately ends the entity.
func (s *globalMixin) Fatal(args ...interface{}) {
	s.recordError()
	fullMsg, lastMsg, err := s.formatError(args...)
	e := NewError(err, fullMsg, lastMsg, 1)
	s.entityRoot.out.Error(e)
	runtime.Goexit()
}

// Fatalf is similar to Fatal but formats its arguments using fmt.Sprintf.
func (s *globalMixin) Fatalf(format string, args ...interface{}) {
	s.recordError()
	fullMsg, lastMsg, err := s.formatErrorf(format, args...)
	e := NewError(err, fullMsg, lastMsg, 1)
	s.entityRoot.out.Error(e)
	runtime.Goexit()
}

// HasError reports whether the entity has already reported errors.
func (s *globalMixin) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasError
}

// errorSuffix matches the well-known error message suffixes for formatError.
var errorSuffix = regexp.MustCompile(`(\s*:\s*|\s+)$`)

// formatError formats an error message using fmt.Sprint.
// If the format is a well-known one, such as:
//
//	formatError("Failed something: ", err)
//
// then this function extracts an error object and returns parsed error
// messages in the following way:
//
//	lastMsg = "Failed something"
//	fullMsg = "Failed something: <error message>"
func (s *globalMixin) formatError(args ...interface{}) (fullMsg, lastMsg string, err error) {
	fullMsg = s.errPrefix + fmt.Sprint(args...)
	if len(args) == 1 {
		if e, ok := args[0].(error); ok {
			err = e
		}
	} else if len(args) >= 2 {
		if e, ok := args[len(args)-1].(error); ok {
			if s, ok := args[len(args)-2].(string); ok {
				if m := errorSuffix.FindStringIndex(s); m != nil {
					err = e
					args = append(args[:len(args)-2], s[:m[0]])
				}
			}
		}
	}
	lastMsg = s.errPrefix + fmt.Sprint(args...)
	return fullMsg, lastMsg, err
}

// errorfSuffix matches the well-known error message suffix for formatErrorf.
var errorfSuffix = regexp.MustCompile(`\s*:?\s*%v$`)

// formatErrorf formats an error message using fmt.Sprintf.
// If the format is the following well-known one:
//
//	formatErrorf("Failed something: %v", err)
//
// then this function extracts an error object and returns parsed error
// messages in the following way:
//
//	lastMsg = "Failed something"
//	fullMsg = "Failed something: <error message>"
func (s *globalMixin) formatErrorf(format string, args ...interface{}) (fullMsg, lastMsg string, err error) {
	fullMsg = s.errPrefix + fmt.Sprintf(format, args...)
	if len(args) >= 1 {
		if e, ok := args[len(args)-1].(error); ok {
			if m := errorfSuffix.FindStringIndex(format); m != nil {
				err = e
				args = args[:len(args)-1]
				format = format[:m[0]]
			}
		}
	}
	lastMsg = s.errPrefix + fmt.Sprintf(format, args...)
	return fullMsg, lastMsg, err
}

// recordError records that the entity has reported an error.
func (s *globalMixin) recordError() {
	s.entityRoot.recordError()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasError = true
}

// entityMixin implements common methods for State types allowing to access
// values the entity declares, e.g. runtime variables.
// An entityMixin object must not be shared among multiple State objects.
type entityMixin struct {
	entityRoot *EntityRoot
}

// Var returns the value for the named variable, which must have been
// registered via Vars. If a value was not supplied at runtime via the -var
// flag to "ward run", ok will be false.
func (s *entityMixin) Var(name string) (val string, ok bool) {
	seen := false
	for _, n := range s.entityRoot.cst.allVars {
		if n == name {
			seen = true
			break
		}
	}
	if !seen {
		panic(fmt.Sprintf("Variable %q was not registered in testing.Test.Vars. Try adding the line 'Vars: []string{%q},' to your testing.Test{}", name, name))
	}

	val, ok = s.entityRoot.cfg.Vars[name]
	return val, ok
}

// RequiredVar is similar to Var but aborts the entity if the named variable
// was not supplied.
func (s *entityMixin) RequiredVar(name string) string {
	val, ok := s.Var(name)
	if !ok {
		panic(fmt.Sprintf("Required variable %q not supplied via -var or -varsfile", name))
	}
	return val
}

// annotationMixin implements the annotation API for State types associated
// with a running test. An annotationMixin object must not be shared among
// multiple State objects.
type annotationMixin struct {
	entityRoot *EntityRoot
}

// Feature attaches a feature tag to the result record of the currently
// running test. Attaching the same tag twice within one test invocation is a
// no-op, so a fixture retried by the framework cannot double-annotate.
// It panics if name is empty.
func (s *annotationMixin) Feature(name string) {
	if name == "" {
		panic("Feature called with an empty name")
	}
	s.annotate(Annotation{Key: FeatureKey, Value: name})
}

// Label attaches a key-value annotation to the result record of the currently
// running test. Attaching the same pair twice within one test invocation is a
// no-op. It panics if key or value is empty, or if key is the reserved
// feature key.
func (s *annotationMixin) Label(key, value string) {
	if key == "" || value == "" {
		panic("Label called with an empty key or value")
	}
	if key == FeatureKey {
		panic(fmt.Sprintf("Label called with reserved key %q; use Feature instead", FeatureKey))
	}
	s.annotate(Annotation{Key: key, Value: value})
}

func (s *annotationMixin) annotate(a Annotation) {
	if !s.entityRoot.condition.recordAnnotation(a) {
		return
	}
	s.entityRoot.out.Annotation(&jsonprotocol.Annotation{Key: a.Key, Value: a.Value})
}

// testMixin implements common methods for State types associated with a test.
// A testMixin object must not be shared among multiple State objects.
type testMixin struct {
	testRoot *TestEntityRoot
}

// OutDir returns a directory into which the entity may place arbitrary files
// that should be included with the entity results.
func (s *testMixin) OutDir() string { return s.testRoot.entityRoot.cfg.OutDir }

// TestName returns the name of the currently running test.
func (s *testMixin) TestName() string {
	return s.testRoot.test.Name
}

// Features returns the feature tags declared by the currently running test on
// registration. Tags attached at runtime via Feature are not included.
func (s *testMixin) Features() []string {
	return append([]string(nil), s.testRoot.test.Features...)
}

// State holds state relevant to the execution of a single test.
//
// Parts of its interface are patterned after Go's testing.T type.
//
// State contains many pieces of data, and it's unclear which are actually
// being used when it's passed to a function. You should minimize the number
// of functions taking State as an argument. Instead you can pass State's
// derived values or ctx (to use with ContextLog etc.).
//
// It is intended to be safe when called concurrently by multiple goroutines
// while a test is running.
type State struct {
	*globalMixin
	*entityMixin
	*annotationMixin
	*testMixin
	testRoot *TestEntityRoot
	subtests []string // subtest names
}

// Param returns Val specified at the Param struct for the current test case.
func (s *State) Param() interface{} {
	return s.testRoot.test.Val
}

// FixtValue returns the fixture value if the test depends on a fixture in the
// same process. FixtValue returns nil otherwise.
func (s *State) FixtValue() interface{} {
	return s.testRoot.entityRoot.cfg.FixtValue
}

// Run starts a new subtest with a unique name. Error messages are prepended
// with the subtest name during its execution. If Fatal/Fatalf is called from
// inside a subtest, only that subtest is stopped; its parent continues.
// Returns true if the subtest passed.
func (s *State) Run(ctx context.Context, name string, run func(context.Context, *State)) bool {
	subtests := append([]string(nil), s.subtests...)
	subtests = append(subtests, name)
	ns := &State{
		// Set hasError to false; State for a subtest always starts with no error.
		globalMixin:     s.testRoot.entityRoot.newGlobalMixin(strings.Join(subtests, "/")+": ", false),
		entityMixin:     s.testRoot.entityRoot.newEntityMixin(),
		annotationMixin: s.testRoot.entityRoot.newAnnotationMixin(),
		testMixin:       s.testRoot.newTestMixin(),
		testRoot:        s.testRoot,
		subtests:        subtests,
	}

	finished := make(chan struct{})

	go func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ctx, st := timing.Start(ctx, name)
		defer func() {
			st.End()
			close(finished)
		}()

		s.Logf("Starting subtest %s", strings.Join(subtests, "/"))
		run(ctx, ns)
	}()

	<-finished

	ns.mu.Lock()
	defer ns.mu.Unlock()
	// Bubble up errors to the parent State. Note that errors are already
	// reported to TestEntityRoot, so it is sufficient to set hasError directly.
	if ns.hasError {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.hasError = true
	}

	return !ns.hasError
}

// TestHookState holds state relevant to the execution of a test hook.
//
// This is a State for test hooks. See State's documentation for general
// guidance on how to treat TestHookState in test hooks.
type TestHookState struct {
	*globalMixin
	*entityMixin
	*testMixin
}

// FixtState is the state the framework passes to Fixture.SetUp and
// Fixture.TearDown.
type FixtState struct {
	*globalMixin
	*entityMixin

	entityRoot *EntityRoot
}

// FixtContext returns a fixture-scoped context, i.e. the context is alive
// until TearDown returns. The context is also associated with the fixture
// metadata.
func (s *FixtState) FixtContext() context.Context {
	return s.entityRoot.cfg.FixtCtx
}

// ParentValue returns the parent fixture value if the fixture has a parent in
// the same process. ParentValue returns nil otherwise.
func (s *FixtState) ParentValue() interface{} {
	return s.entityRoot.cfg.FixtValue
}

// OutDir returns a directory into which the entity may place arbitrary files
// that should be included with the entity results.
func (s *FixtState) OutDir() string {
	return s.entityRoot.cfg.OutDir
}

// FixtTestState is the state the framework passes to PreTest and PostTest.
// Annotations attached via Feature and Label become part of the result record
// of the test being run.
type FixtTestState struct {
	*globalMixin
	*annotationMixin
	testCtx context.Context
}

// OutDir returns a directory into which the entity may place arbitrary files
// that should be included with the entity results.
func (s *FixtTestState) OutDir() string {
	return s.globalMixin.entityRoot.cfg.OutDir
}

// TestContext returns the context associated with the test.
// It has the same lifetime as the test (including PreTest and PostTest), and
// the same metadata as the ctx passed to PreTest and PostTest.
func (s *FixtTestState) TestContext() context.Context {
	return s.testCtx
}
