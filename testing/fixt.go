// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"context"
	"regexp"
	"time"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/jsonprotocol"
)

// Fixture represents fixtures to register to the framework.
type Fixture struct {
	// Name is the name of the fixture.
	// Tests and fixtures use the name to specify the fixture.
	// The name must be camelCase starting with a lowercase letter and
	// containing only digits and letters.
	Name string

	// Desc is the description of the fixture.
	Desc string

	// Contacts is a list of email addresses of persons and groups who are
	// familiar with the fixture.
	Contacts []string

	// Impl is the implementation of the fixture.
	Impl FixtureImpl

	// Parent specifies the parent fixture name, or empty if it has no
	// parent.
	Parent string

	// SetUpTimeout is the timeout applied to SetUp.
	// Even if fixtures are nested, the timeout is applied only to this
	// stage. This timeout is by default 0.
	SetUpTimeout time.Duration

	// ResetTimeout is the timeout applied to Reset.
	ResetTimeout time.Duration

	// PreTestTimeout is the timeout applied to PreTest.
	PreTestTimeout time.Duration

	// PostTestTimeout is the timeout applied to PostTest.
	PostTestTimeout time.Duration

	// TearDownTimeout is the timeout applied to TearDown.
	TearDownTimeout time.Duration

	// Vars contains the names of runtime variables used to pass
	// out-of-band data to the fixture.
	Vars []string
}

func (f *Fixture) instantiate(pkg string) (*FixtureInstance, error) {
	if err := validateFixture(f); err != nil {
		return nil, err
	}
	return &FixtureInstance{
		Pkg:             pkg,
		Name:            f.Name,
		Desc:            f.Desc,
		Contacts:        append([]string(nil), f.Contacts...),
		Impl:            f.Impl,
		Parent:          f.Parent,
		SetUpTimeout:    f.SetUpTimeout,
		ResetTimeout:    f.ResetTimeout,
		PreTestTimeout:  f.PreTestTimeout,
		PostTestTimeout: f.PostTestTimeout,
		TearDownTimeout: f.TearDownTimeout,
		Vars:            append([]string(nil), f.Vars...),
	}, nil
}

// FixtureInstance represents a fixture instance registered to the framework.
//
// FixtureInstance is to Fixture what TestInstance is to Test.
type FixtureInstance struct {
	// Pkg is the package from which the fixture is registered.
	Pkg string

	// Following fields are copied from Fixture.
	Name            string
	Desc            string
	Contacts        []string
	Impl            FixtureImpl
	Parent          string
	SetUpTimeout    time.Duration
	ResetTimeout    time.Duration
	PreTestTimeout  time.Duration
	PostTestTimeout time.Duration
	TearDownTimeout time.Duration
	Vars            []string

	// Bundle is the name of the test bundle this fixture belongs to.
	// This field is empty initially, and later set when the fixture is
	// added to testing.Registry.
	Bundle string
}

// Constraints returns EntityConstraints for this fixture.
func (f *FixtureInstance) Constraints() *EntityConstraints {
	return &EntityConstraints{
		allVars: append([]string(nil), f.Vars...),
	}
}

// EntityInfo returns an EntityInfo describing this fixture for the JSON
// protocol.
func (f *FixtureInstance) EntityInfo() *jsonprotocol.EntityInfo {
	return &jsonprotocol.EntityInfo{
		Name:     f.Name,
		Pkg:      f.Pkg,
		Desc:     f.Desc,
		Contacts: append([]string(nil), f.Contacts...),
		Vars:     append([]string(nil), f.Vars...),
		Fixture:  f.Parent,
		Type:     jsonprotocol.EntityFixture,
		Bundle:   f.Bundle,
	}
}

// fixtureNameRegexp defines the valid fixture name pattern.
var fixtureNameRegexp = regexp.MustCompile(`^[a-z][A-Za-z0-9]*$`)

// validateFixture validates a user-supplied Fixture metadata.
func validateFixture(f *Fixture) error {
	if !fixtureNameRegexp.MatchString(f.Name) {
		return errors.Errorf("invalid fixture name: %q", f.Name)
	}
	if f.Impl == nil {
		return errors.Errorf("fixture %s: Impl is nil", f.Name)
	}
	return nil
}

// FixtureImpl provides implementation of the fixture registered to the
// framework.
type FixtureImpl interface {
	// SetUp is called by the framework to set up the environment with
	// possibly heavy-weight operations.
	//
	// The context and state passed to SetUp are associated with the
	// fixture metadata.
	//
	// The return value is made available to the direct children of this
	// fixture in the entity graph.
	//
	// SetUp is called in descending order (parents to children) when
	// fixtures are nested.
	//
	// Errors in this method are reported as errors of the fixture itself,
	// rather than tests depending on it. If one or more errors are
	// reported in SetUp by s.Error or s.Fatal, all remaining tests
	// depending on this fixture are marked failed without actually
	// running. TearDown is not called in this case.
	//
	// Note that SetUpTimeout is by default 0. Change it to have a valid
	// context.
	SetUp(ctx context.Context, s *FixtState) interface{}

	// Reset is called by the framework after each test (except for the
	// last one) to do a light-weight reset of the environment to the
	// original state.
	//
	// If Reset returns a non-nil error, the framework tears down and
	// re-sets up the fixture to recover.
	//
	// Reset is called in descending order (parents to children) when
	// fixtures are nested.
	//
	// Note that ResetTimeout is by default 0. Change it to have a valid
	// context.
	Reset(ctx context.Context) error

	// PreTest is called by the framework before each test to do a
	// light-weight set up for the test.
	//
	// The context and state passed to PreTest are associated with the test
	// metadata; annotations attached via s.Feature and s.Label become part
	// of the test's result record.
	//
	// PreTest is called in descending order (parents to children) when
	// fixtures are nested.
	//
	// If errors are reported in PreTest, they are reported as the test's
	// failure, and the test body and PostTest are not run.
	//
	// Note that PreTestTimeout is by default 0. Change it to have a valid
	// context.
	PreTest(ctx context.Context, s *FixtTestState)

	// PostTest is called by the framework after each test to tear down
	// changes PreTest made.
	//
	// PostTest is called in ascending order (children to parents) when
	// fixtures are nested. PostTest is always called in a pair with a
	// successful PreTest call.
	//
	// If errors are reported in PostTest, they are reported as the test's
	// failure.
	//
	// Note that PostTestTimeout is by default 0. Change it to have a valid
	// context.
	PostTest(ctx context.Context, s *FixtTestState)

	// TearDown is called by the framework to tear down the environment
	// SetUp set up.
	//
	// TearDown is called in ascending order (children to parents) when
	// fixtures are nested. TearDown is always called in a pair with a
	// successful SetUp call.
	//
	// Errors in this method are reported as errors of the fixture itself,
	// rather than tests depending on it.
	//
	// Note that TearDownTimeout is by default 0. Change it to have a valid
	// context.
	TearDown(ctx context.Context, s *FixtState)
}
