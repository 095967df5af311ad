// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package atomicity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/wardsuite/ward/testing"
)

func init() {
	testing.AddTest(&testing.Test{
		Func:     ResultRecord,
		Desc:     "Checks that a valid operation batch is applied in full",
		Contacts: []string{"conformance@wardsuite.dev"},
		Features: []string{"Atomicity"},
		Fixture:  "atomicityMeta",
		Vars:     []string{"ledger.endpoint"},
		Timeout:  2 * time.Minute,
	})
}

func ResultRecord(ctx context.Context, s *testing.State) {
	if endpoint, ok := s.Var("ledger.endpoint"); ok {
		s.Log("Checking against reference model for endpoint ", endpoint)
	}

	l := newLedgerModel(map[string]int64{"alice": 100, "bob": 50})
	batch := []operation{
		{From: "alice", To: "bob", Amount: 30},
		{From: "bob", To: "alice", Amount: 10},
	}

	s.Log("Submitting batch of ", len(batch), " operation(s)")
	if err := l.ApplyBatch(batch); err != nil {
		s.Fatal("Failed to apply valid batch: ", err)
	}

	for account, want := range map[string]int64{"alice": 80, "bob": 70} {
		if got := l.Balance(account); got != want {
			s.Errorf("Balance of %q = %d; want %d", account, got, want)
		}
	}

	// Save the submitted batch alongside the result record for later
	// inspection.
	b, err := json.Marshal(batch)
	if err != nil {
		s.Fatal("Failed to marshal batch: ", err)
	}
	if err := os.WriteFile(filepath.Join(s.OutDir(), "batch.json"), b, 0644); err != nil {
		s.Error("Failed to save batch: ", err)
	}
}
