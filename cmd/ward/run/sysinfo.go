// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package run

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wardsuite/ward/internal/logging"
)

// systemInfo describes the machine a suite ran on. It is written to
// system_info.json so that reports can correlate results with the
// environment.
type systemInfo struct {
	Host   *host.InfoStat         `json:"host"`
	CPUs   []cpu.InfoStat         `json:"cpus"`
	Memory *mem.VirtualMemoryStat `json:"memory"`
}

// writeSystemInfo writes system_info.json to resultsDir. Partial failures to
// collect individual stats are logged and leave the corresponding field
// empty.
func writeSystemInfo(ctx context.Context, resultsDir string) error {
	var info systemInfo
	var err error
	if info.Host, err = host.InfoWithContext(ctx); err != nil {
		logging.Infof(ctx, "Failed to collect host info: %v", err)
	}
	if info.CPUs, err = cpu.InfoWithContext(ctx); err != nil {
		logging.Infof(ctx, "Failed to collect CPU info: %v", err)
	}
	if info.Memory, err = mem.VirtualMemoryWithContext(ctx); err != nil {
		logging.Infof(ctx, "Failed to collect memory info: %v", err)
	}

	b, err := json.MarshalIndent(&info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(resultsDir, systemInfoFilename), b, 0644)
}
