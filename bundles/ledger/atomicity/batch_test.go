// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package atomicity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyBatch(t *testing.T) {
	l := newLedgerModel(map[string]int64{"alice": 100, "bob": 50})
	if err := l.ApplyBatch([]operation{
		{From: "alice", To: "bob", Amount: 60},
		{From: "bob", To: "alice", Amount: 5},
	}); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	want := map[string]int64{"alice": 45, "bob": 105}
	if diff := cmp.Diff(l.balances, want); diff != "" {
		t.Errorf("Balance mismatch (-got +want):\n%s", diff)
	}
}

func TestApplyBatchRollsBack(t *testing.T) {
	initial := map[string]int64{"alice": 100, "bob": 50}
	for _, tc := range []struct {
		name  string
		batch []operation
	}{
		{"overdraw", []operation{{From: "alice", To: "bob", Amount: 30}, {From: "bob", To: "alice", Amount: 1000}}},
		{"unknown from", []operation{{From: "mallory", To: "bob", Amount: 1}}},
		{"unknown to", []operation{{From: "alice", To: "mallory", Amount: 1}}},
		{"zero amount", []operation{{From: "alice", To: "bob", Amount: 0}}},
	} {
		l := newLedgerModel(initial)
		if err := l.ApplyBatch(tc.batch); err == nil {
			t.Errorf("%s: ApplyBatch unexpectedly succeeded", tc.name)
		}
		if diff := cmp.Diff(l.balances, initial); diff != "" {
			t.Errorf("%s: balance mismatch after failed batch (-got +want):\n%s", tc.name, diff)
		}
	}
}

func TestApplyBatchUsesIntermediateBalances(t *testing.T) {
	// bob can forward funds received earlier in the same batch.
	l := newLedgerModel(map[string]int64{"alice": 100, "bob": 0})
	if err := l.ApplyBatch([]operation{
		{From: "alice", To: "bob", Amount: 100},
		{From: "bob", To: "alice", Amount: 40},
	}); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if got := l.Balance("bob"); got != 60 {
		t.Errorf("Balance of bob = %d; want 60", got)
	}
}
