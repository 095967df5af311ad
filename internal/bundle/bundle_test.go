// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	gotesting "testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/control"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/testing"
)

// installRegistry replaces the global registry for the duration of the test.
func installRegistry(t *gotesting.T) *testing.Registry {
	t.Helper()
	reg := testing.NewRegistry("bundle")
	restore := testing.SetGlobalRegistryForTesting(reg)
	t.Cleanup(restore)
	return reg
}

// runBundle runs Run with args and returns the status code and the decoded
// control messages.
func runBundle(t *gotesting.T, args *Args, d Delegate) (int, []control.Msg) {
	t.Helper()
	if args.OutDir == "" {
		args.OutDir = t.TempDir()
	}
	var b bytes.Buffer
	status := Run(context.Background(), args, &b, d)

	var msgs []control.Msg
	mr := control.NewMessageReader(&b)
	for mr.More() {
		msg, err := mr.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		msgs = append(msgs, msg)
	}
	return status, msgs
}

// msgSummary renders a control message as a short string for comparisons.
func msgSummary(msg control.Msg) string {
	switch v := msg.(type) {
	case *control.RunStart:
		return "RunStart"
	case *control.RunLog:
		return "RunLog: " + v.Text
	case *control.RunError:
		return "RunError: " + v.Error.Reason
	case *control.RunEnd:
		return "RunEnd"
	case *control.EntityStart:
		return "EntityStart: " + v.Info.Name
	case *control.EntityLog:
		return "EntityLog: " + v.Name + ": " + v.Text
	case *control.EntityAnnotation:
		return "EntityAnnotation: " + v.Name + ": " + v.Annotation.Key + "=" + v.Annotation.Value
	case *control.EntityError:
		return "EntityError: " + v.Name + ": " + v.Error.Reason
	case *control.EntityEnd:
		return "EntityEnd: " + v.Name
	case *control.Heartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

func msgSummaries(msgs []control.Msg) []string {
	var ss []string
	for _, msg := range msgs {
		ss = append(ss, msgSummary(msg))
	}
	return ss
}

func TestRun(t *gotesting.T) {
	reg := installRegistry(t)
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.ResultRecord",
		Timeout: time.Minute,
		Func: func(ctx context.Context, s *testing.State) {
			s.Feature("Atomicity")
			s.Label("permission", "no_permission_required")
		},
	})

	status, msgs := runBundle(t, &Args{}, Delegate{})
	if status != statusSuccess {
		t.Errorf("Run() = %d; want %d", status, statusSuccess)
	}

	want := []string{
		"RunStart",
		"EntityStart: atomicity.ResultRecord",
		"EntityAnnotation: atomicity.ResultRecord: feature=Atomicity",
		"EntityAnnotation: atomicity.ResultRecord: permission=no_permission_required",
		"EntityEnd: atomicity.ResultRecord",
		"RunEnd",
	}
	if diff := cmp.Diff(msgSummaries(msgs), want); diff != "" {
		t.Errorf("Message mismatch (-got +want):\n%s", diff)
	}
}

func TestRunFixtureAnnotations(t *gotesting.T) {
	reg := installRegistry(t)
	if err := reg.AddFixtureInstance(&testing.FixtureInstance{
		Name:            "atomicityMeta",
		Impl:            &annotatingFixture{},
		SetUpTimeout:    time.Minute,
		ResetTimeout:    time.Minute,
		PreTestTimeout:  time.Minute,
		PostTestTimeout: time.Minute,
		TearDownTimeout: time.Minute,
	}); err != nil {
		t.Fatal("AddFixtureInstance failed: ", err)
	}
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.ResultRecord",
		Fixture: "atomicityMeta",
		Timeout: time.Minute,
		Func:    func(ctx context.Context, s *testing.State) {},
	})

	status, msgs := runBundle(t, &Args{}, Delegate{})
	if status != statusSuccess {
		t.Errorf("Run() = %d; want %d", status, statusSuccess)
	}

	want := []string{
		"RunStart",
		"EntityStart: atomicityMeta",
		"EntityStart: atomicity.ResultRecord",
		"EntityAnnotation: atomicity.ResultRecord: feature=Atomicity",
		"EntityAnnotation: atomicity.ResultRecord: permission=no_permission_required",
		"EntityEnd: atomicity.ResultRecord",
		"EntityEnd: atomicityMeta",
		"RunEnd",
	}
	if diff := cmp.Diff(msgSummaries(msgs), want); diff != "" {
		t.Errorf("Message mismatch (-got +want):\n%s", diff)
	}
}

// annotatingFixture attaches result record metadata to every test.
type annotatingFixture struct{}

func (*annotatingFixture) SetUp(ctx context.Context, s *testing.FixtState) interface{} { return nil }
func (*annotatingFixture) Reset(ctx context.Context) error                             { return nil }
func (*annotatingFixture) PreTest(ctx context.Context, s *testing.FixtTestState) {
	s.Feature("Atomicity")
	s.Label("permission", "no_permission_required")
}
func (*annotatingFixture) PostTest(ctx context.Context, s *testing.FixtTestState) {}
func (*annotatingFixture) TearDown(ctx context.Context, s *testing.FixtState)     {}

func TestRunPatterns(t *gotesting.T) {
	reg := installRegistry(t)
	var ran []string
	mkTest := func(name string, attr []string) *testing.TestInstance {
		return &testing.TestInstance{
			Name:    name,
			Attr:    attr,
			Timeout: time.Minute,
			Func: func(ctx context.Context, s *testing.State) {
				ran = append(ran, s.TestName())
			},
		}
	}
	reg.AddTestInstance(mkTest("atomicity.First", []string{"feature:Atomicity"}))
	reg.AddTestInstance(mkTest("query.Second", nil))

	status, _ := runBundle(t, &Args{Patterns: []string{`("feature:Atomicity")`}}, Delegate{})
	if status != statusSuccess {
		t.Errorf("Run() = %d; want %d", status, statusSuccess)
	}
	if diff := cmp.Diff(ran, []string{"atomicity.First"}); diff != "" {
		t.Errorf("Ran test mismatch (-got +want):\n%s", diff)
	}
}

func TestRunNoTests(t *gotesting.T) {
	installRegistry(t)

	status, msgs := runBundle(t, &Args{}, Delegate{})
	if status != statusNoTests {
		t.Errorf("Run() = %d; want %d", status, statusNoTests)
	}
	want := []string{"RunStart", "RunEnd"}
	if diff := cmp.Diff(msgSummaries(msgs), want); diff != "" {
		t.Errorf("Message mismatch (-got +want):\n%s", diff)
	}
}

func TestRunBadPatterns(t *gotesting.T) {
	reg := installRegistry(t)
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.Test",
		Timeout: time.Minute,
		Func:    func(ctx context.Context, s *testing.State) {},
	})

	status, msgs := runBundle(t, &Args{Patterns: []string{"(foo"}}, Delegate{})
	if status != statusBadPatterns {
		t.Errorf("Run() = %d; want %d", status, statusBadPatterns)
	}
	if len(msgs) != 1 {
		t.Fatalf("Got %d message(s); want 1", len(msgs))
	}
	if _, ok := msgs[0].(*control.RunError); !ok {
		t.Errorf("Got message %T; want *control.RunError", msgs[0])
	}
}

func TestRunRegistrationError(t *gotesting.T) {
	installRegistry(t)
	// A test without Func fails to register.
	testing.AddTest(&testing.Test{})

	status, msgs := runBundle(t, &Args{}, Delegate{})
	if status != statusError {
		t.Errorf("Run() = %d; want %d", status, statusError)
	}
	if len(msgs) != 1 {
		t.Fatalf("Got %d message(s); want 1", len(msgs))
	}
	if _, ok := msgs[0].(*control.RunError); !ok {
		t.Errorf("Got message %T; want *control.RunError", msgs[0])
	}
}

func TestRunHooks(t *gotesting.T) {
	reg := installRegistry(t)
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.Test",
		Timeout: time.Minute,
		Func:    func(ctx context.Context, s *testing.State) {},
	})

	var calls []string
	d := Delegate{
		RunHook: func(ctx context.Context) (func(context.Context) error, error) {
			calls = append(calls, "runPre")
			return func(ctx context.Context) error {
				calls = append(calls, "runPost")
				return nil
			}, nil
		},
		TestHook: func(ctx context.Context, s *testing.TestHookState) func(ctx context.Context, s *testing.TestHookState) {
			calls = append(calls, "testPre")
			return func(ctx context.Context, s *testing.TestHookState) {
				calls = append(calls, "testPost")
			}
		},
	}

	if status, _ := runBundle(t, &Args{}, d); status != statusSuccess {
		t.Errorf("Run() = %d; want %d", status, statusSuccess)
	}
	want := []string{"runPre", "testPre", "testPost", "runPost"}
	if diff := cmp.Diff(calls, want); diff != "" {
		t.Errorf("Call mismatch (-got +want):\n%s", diff)
	}
}

func TestRunHookFailure(t *gotesting.T) {
	reg := installRegistry(t)
	var ran bool
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.Test",
		Timeout: time.Minute,
		Func:    func(ctx context.Context, s *testing.State) { ran = true },
	})

	d := Delegate{
		RunHook: func(ctx context.Context) (func(context.Context) error, error) {
			return nil, errors.New("hook failed")
		},
	}

	status, _ := runBundle(t, &Args{}, d)
	if status != statusError {
		t.Errorf("Run() = %d; want %d", status, statusError)
	}
	if ran {
		t.Error("Test ran despite run hook failure")
	}
}

func TestList(t *gotesting.T) {
	reg := installRegistry(t)
	reg.AddTestInstance(&testing.TestInstance{
		Name:    "atomicity.Test",
		Attr:    []string{"feature:Atomicity"},
		Timeout: time.Minute,
		Func:    func(ctx context.Context, s *testing.State) {},
	})

	var b bytes.Buffer
	if err := List(&Args{}, &b); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var infos []*jsonprotocol.EntityInfo
	if err := json.Unmarshal(b.Bytes(), &infos); err != nil {
		t.Fatalf("Failed to unmarshal output: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "atomicity.Test" {
		t.Errorf("List returned %+v; want one entry named atomicity.Test", infos)
	}
}
