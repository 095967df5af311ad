// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// The ward command runs ledger conformance test suites and writes annotated
// result records.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/wardsuite/ward/cmd/ward/logging"
	ilogging "github.com/wardsuite/ward/internal/logging"
)

// Version is the version info of this command. It is filled in during the
// build via -ldflags.
var Version = "<unknown>"

// repeatedFlag collects the values of a string flag that may be given
// multiple times.
type repeatedFlag []string

func (f *repeatedFlag) String() string { return strings.Join(*f, ",") }

func (f *repeatedFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	os.Exit(doMain())
}

func doMain() int {
	version := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "use verbose logging")
	logTime := flag.Bool("logtime", true, "prefix logging messages with timestamps")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&listCmd{}, "")
	subcommands.Register(&runCmd{}, "")

	flag.Parse()

	if *version {
		fmt.Printf("ward version %s\n", Version)
		return 0
	}

	logger := logging.NewLogger(os.Stdout, *verbose, *logTime)
	ctx := ilogging.AttachLogger(context.Background(), logger)

	return int(subcommands.Execute(ctx, logger))
}
