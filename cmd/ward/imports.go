// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	// Link in test bundles so their entities register themselves.
	_ "github.com/wardsuite/ward/bundles/ledger"
)
