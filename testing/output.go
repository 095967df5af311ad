// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"github.com/wardsuite/ward/internal/jsonprotocol"
)

// OutputStream is an interface to report streamed outputs of an entity.
// Note that planner.OutputStream is for multiple entities in contrast.
type OutputStream interface {
	// Log reports an informational log message from an entity.
	Log(msg string) error

	// Annotation reports a report metadata pair attached by an entity.
	// The pair becomes part of the result record of the test the entity
	// is running on behalf of.
	Annotation(a *jsonprotocol.Annotation) error

	// Error reports an error from an entity. An entity that reported one
	// or more errors should be considered failure.
	Error(e *jsonprotocol.Error) error
}
