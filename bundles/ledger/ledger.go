// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ledger contains the ledger-client conformance test bundle.
//
// Importing this package registers all test categories in the bundle.
package ledger

import (
	// Test categories register their entities from init functions.
	_ "github.com/wardsuite/ward/bundles/ledger/atomicity"
)
