// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// TestFunc is the code associated with a test.
type TestFunc func(context.Context, *State)

// Annotation is a key-value report metadata pair attached to a test's result
// record. The well-known key "feature" groups tests under a named behavior of
// the system under test; other keys carry free-form labels, e.g. the
// permission a test requires.
type Annotation struct {
	Key   string
	Value string
}

// FeatureKey is the annotation key reserved for feature tags.
const FeatureKey = "feature"

// Test describes a registration of one or more test instances.
//
// Test can be passed to testing.AddTest to actually register test instances
// to the framework.
//
// In the most basic form where Params field is empty, Test describes exactly
// one test instance. If Params is not empty, multiple test instances are
// generated on registration by merging each testing.Param to the base Test.
type Test struct {
	// Func is the function to be executed to perform the test.
	Func TestFunc

	// Desc is a short one-line description of the test.
	Desc string

	// Contacts is a list of email addresses of persons and groups who are
	// familiar with the test.
	Contacts []string

	// Attr contains freeform text attributes describing the test.
	// Attributes can be matched with attribute expressions in the CLI.
	Attr []string

	// Features lists feature tags to be attached to the test's result
	// record when the test runs. Each tag also derives a matchable
	// "feature:" attribute. Fixtures may attach further feature tags at
	// runtime via State.Feature.
	Features []string

	// Labels lists key-value annotations to be attached to the test's
	// result record when the test runs. Fixtures may attach further labels
	// at runtime via State.Label.
	Labels []Annotation

	// Vars contains the names of runtime variables used to pass
	// out-of-band data to tests. Values are supplied using
	// "ward run -var=name=value", and tests can access values via
	// State.Var.
	Vars []string

	// VarDeps serves a similar purpose as Vars but lists runtime variables
	// that are required to run the test. Tests should access runtime
	// variables in VarDeps via State.RequiredVar.
	VarDeps []string

	// Fixture is the name of the fixture the test depends on.
	Fixture string

	// Timeout contains the maximum duration for which Func may run before
	// the test is aborted. This should almost always be set. If not
	// specified, a reasonable default will be used, but tests should not
	// depend on it.
	Timeout time.Duration

	// Params lists the Param structs for parameterized tests.
	Params []Param
}

// Param defines parameters for a parameterized test case.
type Param struct {
	// Name is the name of this parameterized test.
	// Full name of the test case will be category.TestFuncName.param_name,
	// or category.TestFuncName if Name is empty.
	// Name should match with [a-z0-9_]*.
	Name string

	// ExtraAttr contains freeform text attributes describing the test,
	// in addition to Attr declared in the enclosing Test.
	ExtraAttr []string

	// ExtraFeatures lists feature tags attached to the test, in addition
	// to Features declared in the enclosing Test.
	ExtraFeatures []string

	// ExtraLabels lists key-value annotations attached to the test, in
	// addition to Labels declared in the enclosing Test.
	ExtraLabels []Annotation

	// Fixture is the name of the fixture the test depends on.
	// Can only be set if the enclosing test doesn't have one already set.
	Fixture string

	// Timeout contains the maximum duration for which Func may run before
	// the test is aborted. Can only be set if the enclosing test doesn't
	// have one already set.
	Timeout time.Duration

	// Val is the value which can be retrieved from testing.State.Param()
	// method.
	Val interface{}
}

// validate performs initial validations of Test.
// Most validations are done while constructing TestInstance from a combination
// of Test and Param in newTestInstance, not in this method, so that we can
// validate fields of the final products. However some validations can be done
// only in this method, e.g. checking consistencies among multiple parameters.
func (t *Test) validate() error {
	if err := validateParams(t.Params); err != nil {
		return err
	}
	return nil
}

func validateParams(params []Param) error {
	if len(params) == 0 {
		return nil
	}

	// Ensure unique param name.
	seen := make(map[string]struct{})
	for _, p := range params {
		name := p.Name
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate param name is found: %s", name)
		}
		seen[name] = struct{}{}
	}

	// Ensure all values assigned to Val have the same type.
	typ0 := reflect.TypeOf(params[0].Val)
	for _, p := range params {
		typ := reflect.TypeOf(p.Val)
		if typ != typ0 {
			return fmt.Errorf("unmatched Val type: got %v; want %v", typ, typ0)
		}
	}

	return nil
}
