// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package run

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wardsuite/ward/testutil"
)

func TestReadVars(t *testing.T) {
	defaultsDir := t.TempDir()
	filesDir := t.TempDir()
	if err := testutil.WriteFiles(defaultsDir, map[string]string{
		"a.yaml": "ledger.endpoint: localhost:26657\nledger.chain: testchain\n",
		"b.yaml": "ledger.account: alice\n",
	}); err != nil {
		t.Fatal(err)
	}
	if err := testutil.WriteFiles(filesDir, map[string]string{
		"override.yaml": "ledger.account: bob\n",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		DefaultVarsDirs: []string{defaultsDir},
		VarsFiles:       []string{filepath.Join(filesDir, "override.yaml")},
		Vars:            []string{"ledger.chain=mainchain"},
	}
	vars, err := readVars(cfg)
	if err != nil {
		t.Fatalf("readVars failed: %v", err)
	}

	want := map[string]string{
		"ledger.endpoint": "localhost:26657",
		"ledger.chain":    "mainchain", // -var wins over default files
		"ledger.account":  "bob",       // -varsfile wins over default files
	}
	if diff := cmp.Diff(vars, want); diff != "" {
		t.Errorf("Vars mismatch (-got +want):\n%s", diff)
	}
}

func TestReadVarsDuplicateInDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := testutil.WriteFiles(dir, map[string]string{
		"a.yaml": "ledger.endpoint: localhost:26657\n",
		"b.yaml": "ledger.endpoint: localhost:36657\n",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := readVars(&Config{DefaultVarsDirs: []string{dir}}); err == nil {
		t.Error("readVars unexpectedly succeeded with a duplicate var in default files")
	}
}

func TestReadVarsDuplicateFlag(t *testing.T) {
	cfg := &Config{Vars: []string{"a=1", "a=2"}}
	if _, err := readVars(cfg); err == nil {
		t.Error("readVars unexpectedly succeeded with duplicate -var flags")
	}
}

func TestReadVarsBadFlag(t *testing.T) {
	cfg := &Config{Vars: []string{"novalue"}}
	if _, err := readVars(cfg); err == nil {
		t.Error("readVars unexpectedly succeeded with a malformed -var flag")
	}
}

func TestReadVarsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := testutil.WriteFiles(dir, map[string]string{
		"bad.yaml": "not yaml: [",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{VarsFiles: []string{filepath.Join(dir, "bad.yaml")}}
	if _, err := readVars(cfg); err == nil {
		t.Error("readVars unexpectedly succeeded with a malformed vars file")
	}
}
