// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package atomicity

import (
	"github.com/wardsuite/ward/errors"
)

// operation is a single transfer between two accounts.
type operation struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// ledgerModel is the reference model the suite checks client behavior
// against: account balances with all-or-nothing batch application.
type ledgerModel struct {
	balances map[string]int64
}

func newLedgerModel(balances map[string]int64) *ledgerModel {
	b := make(map[string]int64, len(balances))
	for a, v := range balances {
		b[a] = v
	}
	return &ledgerModel{balances: b}
}

// ApplyBatch applies ops as one atomic transaction. If any op is invalid
// (unknown account, non-positive amount, or insufficient funds considering
// earlier ops in the batch), no op is applied and an error is returned.
func (l *ledgerModel) ApplyBatch(ops []operation) error {
	next := make(map[string]int64, len(l.balances))
	for a, v := range l.balances {
		next[a] = v
	}
	for i, op := range ops {
		if op.Amount <= 0 {
			return errors.Errorf("op %d: non-positive amount %d", i, op.Amount)
		}
		if _, ok := next[op.From]; !ok {
			return errors.Errorf("op %d: unknown account %q", i, op.From)
		}
		if _, ok := next[op.To]; !ok {
			return errors.Errorf("op %d: unknown account %q", i, op.To)
		}
		if next[op.From] < op.Amount {
			return errors.Errorf("op %d: insufficient funds in %q", i, op.From)
		}
		next[op.From] -= op.Amount
		next[op.To] += op.Amount
	}
	l.balances = next
	return nil
}

// Balance returns the balance of account, or 0 if it is unknown.
func (l *ledgerModel) Balance(account string) int64 {
	return l.balances[account]
}
