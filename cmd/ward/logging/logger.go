// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logging implements the logger used by the ward command.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	ilogging "github.com/wardsuite/ward/internal/logging"
)

// Logger writes messages from the ward command and the entities it runs to a
// console. It implements the internal logging.Logger interface so that it can
// be attached to a context and receive framework logs. It is safe to call its
// methods concurrently from multiple goroutines.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	logTime bool
}

// NewLogger returns a Logger writing to w. If verbose is true, debug messages
// are written in addition to info messages. If logTime is true, messages are
// prefixed with timestamps.
func NewLogger(w io.Writer, verbose, logTime bool) *Logger {
	return &Logger{w: w, verbose: verbose, logTime: logTime}
}

// Log implements the internal logging.Logger interface.
func (l *Logger) Log(level ilogging.Level, ts time.Time, msg string) {
	if level < ilogging.LevelInfo && !l.verbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logTime {
		fmt.Fprintf(l.w, "%s %s\n", ts.Format("2006-01-02T15:04:05.000000Z07:00"), msg)
	} else {
		fmt.Fprintln(l.w, msg)
	}
}

// Print formats args with fmt.Sprint and logs them unconditionally.
func (l *Logger) Print(args ...interface{}) {
	l.Log(ilogging.LevelInfo, time.Now(), fmt.Sprint(args...))
}

// Printf formats args with fmt.Sprintf and logs them unconditionally.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Log(ilogging.LevelInfo, time.Now(), fmt.Sprintf(format, args...))
}

// Debug formats args with fmt.Sprint and logs them if verbose logging is
// enabled.
func (l *Logger) Debug(args ...interface{}) {
	l.Log(ilogging.LevelDebug, time.Now(), fmt.Sprint(args...))
}

// Debugf formats args with fmt.Sprintf and logs them if verbose logging is
// enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Log(ilogging.LevelDebug, time.Now(), fmt.Sprintf(format, args...))
}

// Status reports a short high-level status message describing what the
// command is currently doing. Status messages are only written when verbose
// logging is enabled.
func (l *Logger) Status(msg string) {
	l.Debug(msg)
}
