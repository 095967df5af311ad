// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package jsonprotocol defines the schema of the JSON-based protocol between
// the ward CLI and test bundles.
package jsonprotocol

import (
	"time"
)

// EntityType represents a type of an entity.
type EntityType int

const (
	// EntityTest represents a test.
	EntityTest EntityType = iota
	// EntityFixture represents a fixture.
	EntityFixture
)

// String converts t to a human-readable string.
func (t EntityType) String() string {
	switch t {
	case EntityTest:
		return "test"
	case EntityFixture:
		return "fixture"
	default:
		return "unknown"
	}
}

// EntityInfo is a JSON-serializable description of an entity.
type EntityInfo struct {
	// See TestInstance for details of the fields.
	Name     string        `json:"name"`
	Pkg      string        `json:"pkg"`
	Desc     string        `json:"desc"`
	Contacts []string      `json:"contacts"`
	Attr     []string      `json:"attr"`
	Vars     []string      `json:"vars,omitempty"`
	VarDeps  []string      `json:"varDeps,omitempty"`
	Fixture  string        `json:"fixture,omitempty"`
	Timeout  time.Duration `json:"timeout"`
	Type     EntityType    `json:"entityType,omitempty"`

	// Bundle is the name of the bundle containing the entity.
	Bundle string `json:"bundle,omitempty"`
}

// Error is a JSON-serializable description of an error encountered while
// running an entity.
type Error struct {
	// Reason is a human-readable explanation of the error.
	Reason string `json:"reason"`
	// File is the path to the file where the error was reported.
	File string `json:"file"`
	// Line is the line number in File where the error was reported.
	Line int `json:"line"`
	// Stack is a stack trace at the point where the error was reported.
	Stack string `json:"stack"`
}

// Annotation is a key-value report metadata pair attached to a test while it
// runs. The key "feature" groups tests under a named behavior; other keys
// carry free-form labels such as required permissions.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EntityResult contains the results from a single entity.
// Fields are exported so they can be marshaled by the json package.
type EntityResult struct {
	// EntityInfo contains basic information about the entity.
	EntityInfo
	// Annotations contains report metadata attached to the entity while it
	// ran, in the order the pairs were first attached.
	Annotations []Annotation `json:"annotations"`
	// Errors contains errors encountered while running the entity.
	// If it is empty, the entity passed.
	Errors []EntityError `json:"errors"`
	// Start is the time at which the entity started.
	Start time.Time `json:"start"`
	// End is the time at which the entity completed.
	// It may hold the zero value (0001-01-01T00:00:00Z) to indicate that
	// the entity did not complete, in which case at least one error is
	// also present.
	End time.Time `json:"end"`
	// OutDir is the directory into which entity output is stored.
	OutDir string `json:"outDir"`
	// SkipReason contains a human-readable explanation of why the test was
	// skipped. It is empty if the test actually ran.
	SkipReason string `json:"skipReason"`
}

// EntityError describes an error that occurred while running an entity.
// It adds the time of occurrence to the embedded Error.
type EntityError struct {
	// Time contains the time at which the error occurred.
	Time time.Time `json:"time"`
	// Error is an embedded struct describing the error.
	Error
}
