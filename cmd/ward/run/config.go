// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package run starts test runs and collects their results.
package run

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"

	"github.com/wardsuite/ward/errors"
)

// Config describes a run requested via the ward command line.
type Config struct {
	// ResultsDir is the directory under which results are written.
	ResultsDir string

	// Patterns specifies which tests to run. See testing.NewMatcher.
	Patterns []string

	// Vars contains variables given via -var flags as "name=value" strings.
	Vars []string

	// VarsFiles contains paths to YAML files given via -varsfile flags.
	VarsFiles []string

	// DefaultVarsDirs contains directories given via -defaultvarsdir flags.
	// All *.yaml files in them supply default variable values.
	DefaultVarsDirs []string

	// CollectSysInfo indicates whether to write system_info.json describing
	// the machine the suite ran on.
	CollectSysInfo bool
}

// readVars merges runtime variables from cfg.
//
// Variables are merged in increasing order of precedence: files under
// DefaultVarsDirs, then VarsFiles, then Vars. Defining the same variable
// twice at the same level is an error; a higher level silently overrides a
// lower one.
func readVars(cfg *Config) (map[string]string, error) {
	var defaultFiles []string
	for _, dir := range cfg.DefaultVarsDirs {
		fs, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, err
		}
		defaultFiles = append(defaultFiles, fs...)
	}
	slices.Sort(defaultFiles)

	vars := make(map[string]string)
	for _, level := range [][]string{defaultFiles, cfg.VarsFiles} {
		seen := make(map[string]string) // var name to defining file
		for _, path := range level {
			vs, err := readVarsFile(path)
			if err != nil {
				return nil, err
			}
			for name, value := range vs {
				if prev, ok := seen[name]; ok {
					return nil, errors.Errorf("var %q is defined in both %s and %s", name, prev, path)
				}
				seen[name] = path
				vars[name] = value
			}
		}
	}

	seen := make(map[string]struct{})
	for _, kv := range cfg.Vars {
		i := strings.Index(kv, "=")
		if i < 0 {
			return nil, errors.Errorf("-var %q is not in name=value format", kv)
		}
		name, value := kv[:i], kv[i+1:]
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("var %q is given by multiple -var flags", name)
		}
		seen[name] = struct{}{}
		vars[name] = value
	}
	return vars, nil
}

// readVarsFile reads a YAML file of string keys and values.
func readVarsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	if err := yaml.UnmarshalStrict(b, &vars); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return vars, nil
}
