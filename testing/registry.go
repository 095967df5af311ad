// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"golang.org/x/exp/maps"

	"github.com/wardsuite/ward/errors"
)

// Registry holds tests and fixtures.
type Registry struct {
	name        string
	allTests    []*TestInstance
	testNames   map[string]struct{} // names of registered tests
	allFixtures map[string]*FixtureInstance
}

// NewRegistry returns a new registry. name is the name of the test bundle the
// registry belongs to; it is recorded on registered entities.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:        name,
		testNames:   make(map[string]struct{}),
		allFixtures: make(map[string]*FixtureInstance),
	}
}

// Name returns the name of the test bundle the registry belongs to.
func (r *Registry) Name() string {
	return r.name
}

// AddTest adds t to the registry.
func (r *Registry) AddTest(t *Test) error {
	tis, err := instantiate(t)
	if err != nil {
		return err
	}
	for _, ti := range tis {
		if err := r.AddTestInstance(ti); err != nil {
			return err
		}
	}
	return nil
}

// AddTestInstance adds t to the registry.
func (r *Registry) AddTestInstance(t *TestInstance) error {
	t = t.clone()
	if _, ok := r.testNames[t.Name]; ok {
		return errors.Errorf("test %q already registered", t.Name)
	}
	t.Bundle = r.name
	r.allTests = append(r.allTests, t)
	r.testNames[t.Name] = struct{}{}
	return nil
}

// AddFixture adds f to the registry. pkg is the package from which the
// fixture is registered.
func (r *Registry) AddFixture(f *Fixture, pkg string) error {
	fi, err := f.instantiate(pkg)
	if err != nil {
		return err
	}
	return r.AddFixtureInstance(fi)
}

// AddFixtureInstance adds f to the registry.
func (r *Registry) AddFixtureInstance(f *FixtureInstance) error {
	if _, ok := r.allFixtures[f.Name]; ok {
		return errors.Errorf("fixture %q already registered", f.Name)
	}
	f.Bundle = r.name
	r.allFixtures[f.Name] = f
	return nil
}

// AllTests returns copies of all registered tests.
func (r *Registry) AllTests() []*TestInstance {
	ts := make([]*TestInstance, len(r.allTests))
	for i, t := range r.allTests {
		ts[i] = t.clone()
	}
	return ts
}

// AllFixtures returns copies of all registered fixtures.
func (r *Registry) AllFixtures() map[string]*FixtureInstance {
	return maps.Clone(r.allFixtures)
}
