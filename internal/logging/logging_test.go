// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wardsuite/ward/internal/logging"
)

// recorder is a Logger that records messages it consumes.
type recorder struct {
	msgs []string
}

func (r *recorder) Log(level logging.Level, ts time.Time, msg string) {
	r.msgs = append(r.msgs, msg)
}

func TestSinkLoggerLevel(t *testing.T) {
	var got []string
	sink := logging.NewFuncSink(func(msg string) { got = append(got, msg) })
	logger := logging.NewSinkLogger(logging.LevelInfo, false, sink)

	logger.Log(logging.LevelDebug, time.Now(), "debug")
	logger.Log(logging.LevelInfo, time.Now(), "info")

	want := []string{"info"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Messages mismatch (-got +want):\n%s", diff)
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b recorder
	ml := logging.NewMultiLogger(&a)
	ml.AddLogger(&b)

	ml.Log(logging.LevelInfo, time.Now(), "first")
	ml.RemoveLogger(&b)
	ml.Log(logging.LevelInfo, time.Now(), "second")

	if diff := cmp.Diff(a.msgs, []string{"first", "second"}); diff != "" {
		t.Errorf("First logger mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(b.msgs, []string{"first"}); diff != "" {
		t.Errorf("Second logger mismatch (-got +want):\n%s", diff)
	}
}

func TestAttachLoggerPropagation(t *testing.T) {
	var outer, inner recorder
	ctx := logging.AttachLogger(context.Background(), &outer)
	ctx = logging.AttachLogger(ctx, &inner)

	logging.Info(ctx, "hello")

	if diff := cmp.Diff(outer.msgs, []string{"hello"}); diff != "" {
		t.Errorf("Outer logger mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(inner.msgs, []string{"hello"}); diff != "" {
		t.Errorf("Inner logger mismatch (-got +want):\n%s", diff)
	}
}

func TestAttachLoggerNoPropagation(t *testing.T) {
	var outer, inner recorder
	ctx := logging.AttachLogger(context.Background(), &outer)
	ctx = logging.AttachLoggerNoPropagation(ctx, &inner)

	logging.Infof(ctx, "%s", "hello")

	if len(outer.msgs) > 0 {
		t.Errorf("Outer logger unexpectedly got %v", outer.msgs)
	}
	if diff := cmp.Diff(inner.msgs, []string{"hello"}); diff != "" {
		t.Errorf("Inner logger mismatch (-got +want):\n%s", diff)
	}
}

func TestLogWithoutLogger(t *testing.T) {
	// Logging to a context without a logger should do nothing.
	logging.Info(context.Background(), "dropped")
	if logging.HasLogger(context.Background()) {
		t.Error("HasLogger = true for a fresh context")
	}
}
