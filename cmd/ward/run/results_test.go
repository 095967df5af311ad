// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package run

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wardsuite/ward/internal/control"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/timing"
)

// writeMessages serializes control messages the way a bundle would.
func writeMessages(t *testing.T, msgs []control.Msg) *bytes.Buffer {
	t.Helper()
	var b bytes.Buffer
	mw := control.NewMessageWriter(&b)
	for _, msg := range msgs {
		if err := mw.WriteMessage(msg); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}
	return &b
}

func TestProcessResults(t *testing.T) {
	resultsDir := t.TempDir()
	epoch := time.Unix(1724000000, 0)
	testInfo := jsonprotocol.EntityInfo{
		Name: "atomicity.ResultRecord",
		Type: jsonprotocol.EntityTest,
	}

	b := writeMessages(t, []control.Msg{
		&control.RunStart{Time: epoch, TestNames: []string{"atomicity.ResultRecord"}},
		&control.EntityStart{Time: epoch, Info: testInfo},
		&control.EntityAnnotation{Time: epoch, Name: "atomicity.ResultRecord", Annotation: jsonprotocol.Annotation{Key: "feature", Value: "Atomicity"}},
		&control.EntityAnnotation{Time: epoch, Name: "atomicity.ResultRecord", Annotation: jsonprotocol.Annotation{Key: "permission", Value: "no_permission_required"}},
		&control.EntityLog{Time: epoch, Name: "atomicity.ResultRecord", Text: "Submitting batch"},
		&control.EntityEnd{Time: epoch.Add(time.Second), Name: "atomicity.ResultRecord", TimingLog: timing.NewLog()},
		&control.RunEnd{Time: epoch.Add(time.Second)},
	})

	results, err := processResults(context.Background(), b, resultsDir)
	if err != nil {
		t.Fatalf("processResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Got %d result(s); want 1", len(results))
	}

	res := results[0]
	if res.Name != "atomicity.ResultRecord" {
		t.Errorf("Result name = %q; want %q", res.Name, "atomicity.ResultRecord")
	}
	wantAnnotations := []jsonprotocol.Annotation{
		{Key: "feature", Value: "Atomicity"},
		{Key: "permission", Value: "no_permission_required"},
	}
	if diff := cmp.Diff(res.Annotations, wantAnnotations); diff != "" {
		t.Errorf("Annotation mismatch (-got +want):\n%s", diff)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Got %d error(s); want 0", len(res.Errors))
	}
	if !res.End.Equal(epoch.Add(time.Second)) {
		t.Errorf("End = %v; want %v", res.End, epoch.Add(time.Second))
	}

	// results.json round-trips the same records.
	rb, err := os.ReadFile(filepath.Join(resultsDir, resultsFilename))
	if err != nil {
		t.Fatal(err)
	}
	var saved []*TestResult
	if err := json.Unmarshal(rb, &saved); err != nil {
		t.Fatalf("Failed to unmarshal results.json: %v", err)
	}
	if len(saved) != 1 || len(saved[0].Annotations) != 2 {
		t.Errorf("results.json contains %+v; want one result with two annotations", saved)
	}

	// The per-test log contains the streamed messages.
	lb, err := os.ReadFile(filepath.Join(resultsDir, testOutputDirname, "atomicity.ResultRecord", testLogFilename))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Attached annotation feature=Atomicity",
		"Attached annotation permission=no_permission_required",
		"Submitting batch",
	} {
		if !strings.Contains(string(lb), want) {
			t.Errorf("log.txt does not contain %q", want)
		}
	}

	if _, err := os.Stat(filepath.Join(resultsDir, timingFilename)); err != nil {
		t.Errorf("timing.json not written: %v", err)
	}
}

func TestProcessResultsTestError(t *testing.T) {
	epoch := time.Unix(1724000000, 0)
	testInfo := jsonprotocol.EntityInfo{Name: "atomicity.Fails", Type: jsonprotocol.EntityTest}

	b := writeMessages(t, []control.Msg{
		&control.RunStart{Time: epoch, TestNames: []string{"atomicity.Fails"}},
		&control.EntityStart{Time: epoch, Info: testInfo},
		&control.EntityError{Time: epoch, Name: "atomicity.Fails", Error: jsonprotocol.Error{Reason: "Mismatched balance"}},
		&control.EntityEnd{Time: epoch, Name: "atomicity.Fails", TimingLog: timing.NewLog()},
		&control.RunEnd{Time: epoch},
	})

	results, err := processResults(context.Background(), b, t.TempDir())
	if err != nil {
		t.Fatalf("processResults failed: %v", err)
	}
	if len(results) != 1 || len(results[0].Errors) != 1 {
		t.Fatalf("Got results %+v; want one result with one error", results)
	}
	if reason := results[0].Errors[0].Reason; reason != "Mismatched balance" {
		t.Errorf("Error reason = %q; want %q", reason, "Mismatched balance")
	}
}

func TestProcessResultsRunError(t *testing.T) {
	epoch := time.Unix(1724000000, 0)
	b := writeMessages(t, []control.Msg{
		&control.RunError{Time: epoch, Error: jsonprotocol.Error{Reason: "Bundle exploded"}},
	})

	if _, err := processResults(context.Background(), b, t.TempDir()); err == nil {
		t.Error("processResults unexpectedly succeeded for an aborted run")
	}
}

func TestProcessResultsOutOfOrder(t *testing.T) {
	epoch := time.Unix(1724000000, 0)
	for name, msgs := range map[string][]control.Msg{
		"test before run": {
			&control.EntityStart{Time: epoch, Info: jsonprotocol.EntityInfo{Name: "a.A", Type: jsonprotocol.EntityTest}},
		},
		"annotation without test": {
			&control.RunStart{Time: epoch},
			&control.EntityAnnotation{Time: epoch, Name: "a.A", Annotation: jsonprotocol.Annotation{Key: "feature", Value: "Atomicity"}},
		},
		"overlapping tests": {
			&control.RunStart{Time: epoch},
			&control.EntityStart{Time: epoch, Info: jsonprotocol.EntityInfo{Name: "a.A", Type: jsonprotocol.EntityTest}},
			&control.EntityStart{Time: epoch, Info: jsonprotocol.EntityInfo{Name: "a.B", Type: jsonprotocol.EntityTest}},
		},
		"truncated stream": {
			&control.RunStart{Time: epoch},
			&control.EntityStart{Time: epoch, Info: jsonprotocol.EntityInfo{Name: "a.A", Type: jsonprotocol.EntityTest}},
		},
	} {
		b := writeMessages(t, msgs)
		if _, err := processResults(context.Background(), b, t.TempDir()); err == nil {
			t.Errorf("processResults unexpectedly succeeded for %s", name)
		}
	}
}
