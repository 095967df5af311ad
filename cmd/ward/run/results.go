// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package run

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/control"
	"github.com/wardsuite/ward/internal/jsonprotocol"
	"github.com/wardsuite/ward/internal/logging"
	"github.com/wardsuite/ward/internal/timing"
)

const (
	resultsFilename    = "results.json"     // file in Config.ResultsDir containing test results
	timingFilename     = "timing.json"      // file in Config.ResultsDir containing timing information
	systemInfoFilename = "system_info.json" // file in Config.ResultsDir describing the machine
	testLogFilename    = "log.txt"          // file in a test's output dir containing its logs

	testOutputDirname = "tests" // directory in Config.ResultsDir containing per-test output
)

// TestResult contains the results from a single test.
type TestResult struct {
	// EntityInfo contains basic information about the test.
	jsonprotocol.EntityInfo

	// Annotations contains report metadata attached to the test, in the
	// order in which it was attached.
	Annotations []jsonprotocol.Annotation `json:"annotations"`

	// Errors contains errors encountered while running the test. If it is
	// empty, the test passed.
	Errors []TestError `json:"errors"`

	// Start is the time at which the test started.
	Start time.Time `json:"start"`
	// End is the time at which the test completed.
	End time.Time `json:"end"`

	// OutDir is the directory into which the test wrote output files.
	OutDir string `json:"outDir"`

	// SkipReason describes why the test was skipped. It is empty if the test
	// actually ran.
	SkipReason string `json:"skipReason"`

	logFile *os.File
}

// TestError describes an error that occurred while running a test.
type TestError struct {
	// Time is the time at which the error occurred.
	Time time.Time `json:"time"`
	// Error describes the error that occurred.
	jsonprotocol.Error
}

// resultsHandler consumes a stream of control messages and assembles test
// results.
type resultsHandler struct {
	resultsDir string

	runStarted bool
	results    []*TestResult
	current    *TestResult // test currently running, or nil
	timingLog  *timing.Log
	stage      *timing.Stage // timing stage for current
}

// processResults reads control messages from r and returns the assembled test
// results. Results files (results.json, timing.json and per-test logs) are
// written under resultsDir as the stream is consumed.
//
// An error is returned if the stream reports a run-level failure or arrives
// out of order; results of tests processed so far are returned alongside it.
func processResults(ctx context.Context, r io.Reader, resultsDir string) ([]*TestResult, error) {
	h := &resultsHandler{resultsDir: resultsDir, timingLog: timing.NewLog()}
	defer h.closeCurrent()

	mr := control.NewMessageReader(r)
	for mr.More() {
		msg, err := mr.ReadMessage()
		if err != nil {
			return h.results, err
		}
		if err := h.handleMessage(ctx, msg); err != nil {
			return h.results, err
		}
	}
	if h.current != nil {
		return h.results, errors.Errorf("no end message for test %s", h.current.Name)
	}

	if err := h.writeResults(); err != nil {
		return h.results, err
	}
	return h.results, nil
}

func (h *resultsHandler) handleMessage(ctx context.Context, msg control.Msg) error {
	switch v := msg.(type) {
	case *control.RunStart:
		if h.runStarted {
			return errors.New("multiple RunStart messages received")
		}
		h.runStarted = true
		logging.Infof(ctx, "Started run with %d test(s)", len(v.TestNames))
		return nil
	case *control.RunLog:
		logging.Info(ctx, v.Text)
		return nil
	case *control.RunError:
		return errors.Errorf("run aborted: %s", v.Error.Reason)
	case *control.RunEnd:
		return nil
	case *control.EntityStart:
		return h.handleEntityStart(ctx, v)
	case *control.EntityLog:
		return h.handleEntityLog(ctx, v)
	case *control.EntityAnnotation:
		return h.handleEntityAnnotation(ctx, v)
	case *control.EntityError:
		return h.handleEntityError(ctx, v)
	case *control.EntityEnd:
		return h.handleEntityEnd(ctx, v)
	case *control.Heartbeat:
		return nil
	default:
		return errors.Errorf("unknown message type %T", msg)
	}
}

func (h *resultsHandler) handleEntityStart(ctx context.Context, msg *control.EntityStart) error {
	if !h.runStarted {
		return errors.Errorf("entity %s started before the run", msg.Info.Name)
	}
	if msg.Info.Type != jsonprotocol.EntityTest {
		// Fixture lifecycles overlap tests; report their progress as run logs.
		logging.Info(ctx, "Started fixture ", msg.Info.Name)
		return nil
	}
	if h.current != nil {
		return errors.Errorf("test %s started while %s is still running", msg.Info.Name, h.current.Name)
	}

	logging.Info(ctx, "Started test ", msg.Info.Name)
	outDir := filepath.Join(h.resultsDir, testOutputDirname, msg.Info.Name)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(outDir, testLogFilename))
	if err != nil {
		return err
	}
	h.current = &TestResult{
		EntityInfo: msg.Info,
		Start:      msg.Time,
		OutDir:     outDir,
		logFile:    f,
	}
	h.stage = h.timingLog.StartTop(msg.Info.Name)
	return nil
}

func (h *resultsHandler) handleEntityLog(ctx context.Context, msg *control.EntityLog) error {
	if h.current == nil || msg.Name != h.current.Name {
		// Logs from fixtures and other entities go to the run log.
		logging.Infof(ctx, "[%s] %s", msg.Name, msg.Text)
		return nil
	}
	return h.writeTestLog(msg.Time, msg.Text)
}

func (h *resultsHandler) handleEntityAnnotation(ctx context.Context, msg *control.EntityAnnotation) error {
	if h.current == nil || msg.Name != h.current.Name {
		return errors.Errorf("got annotation for %s, which is not running", msg.Name)
	}
	h.current.Annotations = append(h.current.Annotations, msg.Annotation)
	return h.writeTestLog(msg.Time, "Attached annotation "+msg.Annotation.Key+"="+msg.Annotation.Value)
}

func (h *resultsHandler) handleEntityError(ctx context.Context, msg *control.EntityError) error {
	if h.current == nil || msg.Name != h.current.Name {
		logging.Infof(ctx, "Error reported by %s: %s", msg.Name, msg.Error.Reason)
		return nil
	}
	h.current.Errors = append(h.current.Errors, TestError{Time: msg.Time, Error: msg.Error})
	return h.writeTestLog(msg.Time, "Error: "+msg.Error.Reason)
}

func (h *resultsHandler) handleEntityEnd(ctx context.Context, msg *control.EntityEnd) error {
	if h.current == nil || msg.Name != h.current.Name {
		if h.current == nil {
			logging.Info(ctx, "Finished fixture ", msg.Name)
			return nil
		}
		return errors.Errorf("got end message for %s while %s is running", msg.Name, h.current.Name)
	}

	h.current.End = msg.Time
	if len(msg.SkipReasons) > 0 {
		h.current.SkipReason = strings.Join(msg.SkipReasons, ", ")
	}
	if msg.TimingLog != nil {
		if err := h.stage.Import(msg.TimingLog); err != nil {
			logging.Infof(ctx, "Failed to import timing log for %s: %v", msg.Name, err)
		}
	}
	h.stage.End()

	switch {
	case h.current.SkipReason != "":
		logging.Infof(ctx, "Skipped test %s: %s", msg.Name, h.current.SkipReason)
	case len(h.current.Errors) > 0:
		logging.Infof(ctx, "Failed test %s", msg.Name)
	default:
		logging.Infof(ctx, "Finished test %s", msg.Name)
	}

	h.results = append(h.results, h.current)
	h.closeCurrent()
	return nil
}

// writeTestLog appends a line to the current test's log file.
func (h *resultsHandler) writeTestLog(ts time.Time, msg string) error {
	_, err := h.current.logFile.WriteString(ts.Format("2006-01-02T15:04:05.000000Z07:00") + " " + msg + "\n")
	return err
}

// closeCurrent closes the current test's log file, if any.
func (h *resultsHandler) closeCurrent() {
	if h.current == nil {
		return
	}
	h.current.logFile.Close()
	h.current.logFile = nil
	h.current = nil
	h.stage = nil
}

// writeResults writes results.json and timing.json under the results dir.
func (h *resultsHandler) writeResults() error {
	f, err := os.Create(filepath.Join(h.resultsDir, resultsFilename))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h.results); err != nil {
		return err
	}

	tf, err := os.Create(filepath.Join(h.resultsDir, timingFilename))
	if err != nil {
		return err
	}
	defer tf.Close()
	return h.timingLog.WritePretty(tf)
}
