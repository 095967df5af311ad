// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package atomicity verifies that multi-operation transactions are applied
// atomically, and tags every result record in the suite for downstream
// reporting.
package atomicity

import (
	"context"
	"time"

	"github.com/wardsuite/ward/testing"
)

func init() {
	testing.AddFixture(&testing.Fixture{
		Name:            "atomicityMeta",
		Desc:            "Tags result records of the atomicity suite for downstream reporting",
		Contacts:        []string{"conformance@wardsuite.dev"},
		Impl:            metaFixture{},
		PreTestTimeout:  15 * time.Second,
		PostTestTimeout: 15 * time.Second,
		SetUpTimeout:    15 * time.Second,
		ResetTimeout:    15 * time.Second,
		TearDownTimeout: 15 * time.Second,
	})
}

// metaFixture attaches the reporting metadata shared by every test in the
// atomicity suite: the Atomicity feature tag and the permission label telling
// reporting tools that these tests need no special ledger permissions. It
// holds no state of its own.
type metaFixture struct{}

func (metaFixture) SetUp(ctx context.Context, s *testing.FixtState) interface{} { return nil }

func (metaFixture) Reset(ctx context.Context) error { return nil }

func (metaFixture) PreTest(ctx context.Context, s *testing.FixtTestState) {
	s.Feature("Atomicity")
	s.Label("permission", "no_permission_required")
}

func (metaFixture) PostTest(ctx context.Context, s *testing.FixtTestState) {}

func (metaFixture) TearDown(ctx context.Context, s *testing.FixtState) {}
