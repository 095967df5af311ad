// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"context"
	"fmt"
	"strings"
	gotesting "testing"
	"time"
)

type errorRecorder struct {
	errs []string
}

func (r *errorRecorder) Error(args ...interface{}) {
	r.errs = append(r.errs, fmt.Sprint(args...))
}

func TestSafeCall(t *gotesting.T) {
	var called bool
	r := &errorRecorder{}
	err := safeCall(context.Background(), "stage", time.Minute, time.Minute, errorOnPanic(r), func(ctx context.Context) {
		called = true
	})
	if err != nil {
		t.Errorf("safeCall failed: %v", err)
	}
	if !called {
		t.Error("Function was not called")
	}
	if len(r.errs) > 0 {
		t.Errorf("Unexpected error(s) reported: %v", r.errs)
	}
}

func TestSafeCallPanic(t *gotesting.T) {
	r := &errorRecorder{}
	err := safeCall(context.Background(), "stage", time.Minute, time.Minute, errorOnPanic(r), func(ctx context.Context) {
		panic("ouch")
	})
	if err != nil {
		t.Errorf("safeCall failed: %v", err)
	}
	if len(r.errs) != 1 || r.errs[0] != "Panic: ouch" {
		t.Errorf("Reported errors %v; want [Panic: ouch]", r.errs)
	}
}

func TestSafeCallIgnoredTimeout(t *gotesting.T) {
	block := make(chan struct{})
	defer close(block)

	r := &errorRecorder{}
	err := safeCall(context.Background(), "stage", time.Millisecond, time.Millisecond, errorOnPanic(r), func(ctx context.Context) {
		<-block
	})
	if err == nil {
		t.Fatal("safeCall unexpectedly succeeded for a function ignoring its timeout")
	}
	if !strings.Contains(err.Error(), "did not return on timeout") {
		t.Errorf("safeCall returned %q; want timeout abandonment", err)
	}
}

func TestSafeCallGracePeriod(t *gotesting.T) {
	// The function misses its deadline but returns within the grace period.
	err := safeCall(context.Background(), "stage", time.Millisecond, time.Minute, errorOnPanic(&errorRecorder{}), func(ctx context.Context) {
		<-ctx.Done()
	})
	if err != nil {
		t.Errorf("safeCall failed: %v", err)
	}
}

func TestSafeCallCanceledContext(t *gotesting.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)

	err := safeCall(ctx, "stage", time.Minute, time.Minute, errorOnPanic(&errorRecorder{}), func(ctx context.Context) {
		<-block
	})
	if err == nil {
		t.Error("safeCall unexpectedly succeeded with a canceled context")
	}
}
