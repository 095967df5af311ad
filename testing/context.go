// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"context"

	"github.com/wardsuite/ward/internal/logging"
	"github.com/wardsuite/ward/internal/testcontext"
)

// ContextLog formats its arguments using default formatting and logs them via
// ctx. It is intended to be used for informational logging by packages
// providing support for tests. If testing.State is available, just call
// State.Log or State.Logf instead.
func ContextLog(ctx context.Context, args ...interface{}) {
	logging.Info(ctx, args...)
}

// ContextLogf is similar to ContextLog but formats its arguments using fmt.Sprintf.
func ContextLogf(ctx context.Context, format string, args ...interface{}) {
	logging.Infof(ctx, format, args...)
}

// ContextOutDir is similar to OutDir but takes context instead. It is intended
// to be used by packages providing support for tests that need to write files.
func ContextOutDir(ctx context.Context) (dir string, ok bool) {
	return testcontext.OutDir(ctx)
}

// ContextFeatures is similar to Features but takes context instead. It is
// intended to be used by packages providing support for tests that want to
// check what behavior the current test is declared to exercise.
func ContextFeatures(ctx context.Context) ([]string, bool) {
	return testcontext.Features(ctx)
}

// ContextLabels returns the "key:value" labels declared in the current entity.
func ContextLabels(ctx context.Context) ([]string, bool) {
	return testcontext.Labels(ctx)
}
