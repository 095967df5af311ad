// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package atomicity

import (
	"context"
	"time"

	"github.com/wardsuite/ward/testing"
)

func init() {
	testing.AddTest(&testing.Test{
		Func:     Rollback,
		Desc:     "Checks that a batch with an invalid operation leaves no partial state",
		Contacts: []string{"conformance@wardsuite.dev"},
		Features: []string{"Atomicity"},
		Fixture:  "atomicityMeta",
		Timeout:  2 * time.Minute,
		Params: []testing.Param{{
			Name: "overdraw",
			Val: []operation{
				{From: "alice", To: "bob", Amount: 30},
				{From: "bob", To: "alice", Amount: 1000},
			},
		}, {
			Name: "unknown_account",
			Val: []operation{
				{From: "alice", To: "bob", Amount: 30},
				{From: "mallory", To: "alice", Amount: 10},
			},
		}, {
			Name: "bad_amount",
			Val: []operation{
				{From: "alice", To: "bob", Amount: 30},
				{From: "bob", To: "alice", Amount: -10},
			},
		}},
	})
}

func Rollback(ctx context.Context, s *testing.State) {
	initial := map[string]int64{"alice": 100, "bob": 50}
	l := newLedgerModel(initial)

	batch := s.Param().([]operation)
	if err := l.ApplyBatch(batch); err == nil {
		s.Fatal("Invalid batch was unexpectedly applied")
	} else {
		s.Log("Batch rejected: ", err)
	}

	// The failed batch must leave no trace, including from its valid prefix.
	for account, want := range initial {
		if got := l.Balance(account); got != want {
			s.Errorf("Balance of %q = %d after rollback; want %d", account, got, want)
		}
	}
}
