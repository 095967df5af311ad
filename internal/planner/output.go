// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package planner

import (
	"sync"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/timing"
	"github.com/wardsuite/ward/testing"
)

// OutputStream is an interface to report streamed outputs of multiple entity
// runs. Note that testing.OutputStream is for a single entity in contrast.
type OutputStream interface {
	// EntityStart reports that an entity has started.
	EntityStart(ei *jsonprotocol.EntityInfo, outDir string) error
	// EntityLog reports an informational log message.
	EntityLog(ei *jsonprotocol.EntityInfo, msg string) error
	// EntityAnnotation reports a report metadata pair attached to the test
	// the entity is running on behalf of.
	EntityAnnotation(ei *jsonprotocol.EntityInfo, a *jsonprotocol.Annotation) error
	// EntityError reports an error from an entity. An entity that reported
	// one or more errors should be considered failure.
	EntityError(ei *jsonprotocol.EntityInfo, e *jsonprotocol.Error) error
	// EntityEnd reports that an entity has ended. If skipReasons is not
	// empty it is considered skipped.
	EntityEnd(ei *jsonprotocol.EntityInfo, skipReasons []string, timingLog *timing.Log) error
}

// entityOutputStream wraps planner.OutputStream for a single entity.
//
// entityOutputStream implements testing.OutputStream. entityOutputStream is
// goroutine-safe; it is safe to call its methods concurrently from multiple
// goroutines.
type entityOutputStream struct {
	out OutputStream
	ei  *jsonprotocol.EntityInfo

	mu    sync.Mutex
	errs  []*jsonprotocol.Error
	ended bool
}

var _ testing.OutputStream = &entityOutputStream{}

// newEntityOutputStream creates entityOutputStream for out and ei.
func newEntityOutputStream(out OutputStream, ei *jsonprotocol.EntityInfo) *entityOutputStream {
	return &entityOutputStream{out: out, ei: ei}
}

var errAlreadyEnded = errors.New("entity has already ended")

// Start reports that the entity has started. It should be called exactly once.
func (w *entityOutputStream) Start(outDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	if w.ei.Name == "" {
		return nil
	}
	return w.out.EntityStart(w.ei, outDir)
}

// Log reports an informational log from the entity.
func (w *entityOutputStream) Log(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	if w.ei.Name == "" {
		return nil
	}
	return w.out.EntityLog(w.ei, msg)
}

// Annotation reports a report metadata pair from the entity.
func (w *entityOutputStream) Annotation(a *jsonprotocol.Annotation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	if w.ei.Name == "" {
		return nil
	}
	return w.out.EntityAnnotation(w.ei, a)
}

// Error reports an error from the entity.
func (w *entityOutputStream) Error(e *jsonprotocol.Error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	w.errs = append(w.errs, e)
	if w.ei.Name == "" {
		return nil
	}
	return w.out.EntityError(w.ei, e)
}

// End reports that the entity has ended. After End is called, all methods will
// fail with an error.
func (w *entityOutputStream) End(skipReasons []string, timingLog *timing.Log) error {
	if timingLog == nil {
		panic("BUG: entityOutputStream.End: nil timing log")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return errAlreadyEnded
	}
	if w.ei.Name == "" {
		return nil
	}
	w.ended = true
	return w.out.EntityEnd(w.ei, skipReasons, timingLog)
}

// Errors returns errors reported so far.
func (w *entityOutputStream) Errors() []*jsonprotocol.Error {
	w.mu.Lock()
	defer w.mu.Unlock()
	// We always append to errs, so it is safe to return without copy.
	return w.errs
}
