// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/wardsuite/ward/errors"
	"github.com/wardsuite/ward/internal/jsonprotocol"
)

const (
	testNameAttrPrefix    = "name:"    // prefix for auto-added attribute containing test name
	testBundleAttrPrefix  = "bundle:"  // prefix for auto-added attribute containing bundle name
	testFeatureAttrPrefix = "feature:" // prefix for auto-added attribute containing a feature tag
)

// TestInstance represents a test instance registered to the framework.
//
// A test instance is the unit of "tests" exposed to outside of the framework.
// For example, in the command line of the "ward" command, users specify
// which tests to run by names of test instances. A single testing.AddTest call
// may register multiple test instances at once if testing.Test passed to the
// function has a non-empty Params field.
type TestInstance struct {
	// Name specifies the test's name as "category.TestName".
	// The name is derived from Func's package and function name.
	// The category is the final component of the package.
	Name string

	// Pkg contains the Go package in which Func is located.
	Pkg string

	// ExitTimeout contains the maximum duration to wait for Func to exit
	// after a timeout. The context passed to Func has a deadline based on
	// Timeout, but ward waits for an additional ExitTimeout to elapse
	// before reporting that the test has timed out. This is exposed for
	// unit tests and should almost always be omitted when defining tests.
	ExitTimeout time.Duration

	// Val contains the value inherited from the expanded Param struct for
	// a parameterized test case. This can be retrieved from
	// testing.State.Param().
	Val interface{}

	// Following fields are copied from testing.Test struct.
	// See the documents of the struct.

	Func     TestFunc
	Desc     string
	Contacts []string
	Attr     []string
	Features []string
	Labels   []Annotation
	Vars     []string
	VarDeps  []string
	Fixture  string
	Timeout  time.Duration

	// Bundle is the name of the test bundle this test belongs to.
	// This field is empty initially, and later set when the test is added
	// to testing.Registry.
	Bundle string
}

// instantiate creates one or more TestInstance from t.
func instantiate(t *Test) ([]*TestInstance, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	// Empty Params is equivalent to one Param with all default values.
	ps := t.Params
	if len(ps) == 0 {
		ps = []Param{{}}
	}

	tis := make([]*TestInstance, 0, len(ps))
	for _, p := range ps {
		ti, err := newTestInstance(t, &p)
		if err != nil {
			return nil, err
		}
		tis = append(tis, ti)
	}

	return tis, nil
}

func newTestInstance(t *Test, p *Param) (*TestInstance, error) {
	info, err := getTestFuncInfo(t.Func)
	if err != nil {
		return nil, err
	}

	if err := validateFileName(info.name, filepath.Base(info.file)); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s.%s", info.category, info.name)
	if p.Name != "" {
		name += "." + p.Name
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	manualAttrs := append(append([]string(nil), t.Attr...), p.ExtraAttr...)
	if err := validateManualAttr(manualAttrs); err != nil {
		return nil, err
	}

	if err := validateVars(info.category, info.name, append(append([]string(nil), t.Vars...), t.VarDeps...)); err != nil {
		return nil, err
	}

	features := append(append([]string(nil), t.Features...), p.ExtraFeatures...)
	labels := append(append([]Annotation(nil), t.Labels...), p.ExtraLabels...)
	if err := validateAnnotations(features, labels); err != nil {
		return nil, err
	}

	attrs := append(manualAttrs, autoAttrs(name, info.pkg, features)...)

	fixt := t.Fixture
	if p.Fixture != "" {
		if t.Fixture != "" {
			return nil, errors.New("Param has Fixture specified and its enclosing Test also has Fixture specified, but only one can be specified")
		}
		fixt = p.Fixture
	}

	timeout := t.Timeout
	if p.Timeout != 0 {
		if t.Timeout != 0 {
			return nil, errors.New("Param has Timeout specified and its enclosing Test also has Timeout specified, but only one can be specified")
		}
		timeout = p.Timeout
	}
	if timeout < 0 {
		return nil, errors.Errorf("timeout is negative (%v)", timeout)
	}

	return &TestInstance{
		Name:     name,
		Pkg:      info.pkg,
		Val:      p.Val,
		Func:     t.Func,
		Desc:     t.Desc,
		Contacts: append([]string(nil), t.Contacts...),
		Attr:     attrs,
		Features: features,
		Labels:   labels,
		Vars:     append([]string(nil), t.Vars...),
		VarDeps:  append([]string(nil), t.VarDeps...),
		Fixture:  fixt,
		Timeout:  timeout,
	}, nil
}

// autoAttrs returns automatically-generated attributes.
func autoAttrs(name, pkg string, features []string) []string {
	attrs := []string{testNameAttrPrefix + name}
	if comps := strings.Split(pkg, "/"); len(comps) >= 2 {
		attrs = append(attrs, testBundleAttrPrefix+comps[len(comps)-2])
	}
	for _, f := range features {
		attrs = append(attrs, testFeatureAttrPrefix+f)
	}
	return attrs
}

// testFuncInfo contains information about a TestFunc.
type testFuncInfo struct {
	pkg      string // package name, e.g. "github.com/wardsuite/ward/bundles/ledger/atomicity"
	category string // category name, e.g. "atomicity". The last component of pkg
	name     string // function name, e.g. "ResultRecord"
	file     string // full source path of the file defining the function
}

// getTestFuncInfo returns info about f.
func getTestFuncInfo(f TestFunc) (*testFuncInfo, error) {
	if f == nil {
		return nil, errors.New("Func is nil")
	}
	pc := reflect.ValueOf(f).Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return nil, errors.New("failed to get function from PC")
	}
	p, name := splitFuncName(rf.Name())

	cs := strings.Split(p, "/")
	if len(cs) < 2 {
		return nil, errors.Errorf("failed to split package %q into at least two components", p)
	}

	info := &testFuncInfo{
		pkg:      p,
		category: cs[len(cs)-1],
		name:     name,
	}
	info.file, _ = rf.FileLine(pc)
	return info, nil
}

// splitFuncName splits a fully-qualified function name as returned by
// runtime.Func.Name into a package path and a function name.
func splitFuncName(fn string) (pkg, name string) {
	// The last slash-separated component contains the package's base name
	// and the function name joined by a period.
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return "", fn
	}
	pos := slash + 1 + dot
	return fn[:pos], fn[pos+1:]
}

// testNameRegexp validates test names, which should consist of a package name,
// a period, the name of the exported test function, followed optionally by
// a period and the name of the parameter.
var testNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9]*\.[A-Z][A-Za-z0-9]*(?:\.[a-z0-9_]+)?$`)

func validateName(name string) error {
	if !testNameRegexp.MatchString(name) {
		return errors.Errorf("invalid test name %q", name)
	}
	return nil
}

// testWordRegexp validates an individual word in a test function name.
// See validateFileName for details.
var testWordRegexp = regexp.MustCompile("^[A-Z0-9]+[a-z0-9]*[A-Z0-9]*$")

func validateFileName(funcName, filename string) error {
	if strings.ToLower(filename) != filename {
		return errors.Errorf("filename %q isn't lowercase", filename)
	}
	const goExt = ".go"
	if filepath.Ext(filename) != goExt {
		return errors.Errorf("filename %q doesn't have extension %q", filename, goExt)
	}

	// First, split the name into words based on underscores in the filename.
	funcIdx := 0
	fileWords := strings.Split(filename[:len(filename)-len(goExt)], "_")
	for _, fileWord := range fileWords {
		// Disallow repeated underscores.
		if len(fileWord) == 0 {
			return errors.Errorf("empty word in filename %q", filename)
		}

		// Extract the characters from the function name corresponding to the word from the filename.
		if funcIdx+len(fileWord) > len(funcName) {
			return errors.Errorf("name %q doesn't include all of filename %q", funcName, filename)
		}
		funcWord := funcName[funcIdx : funcIdx+len(fileWord)]
		if !strings.EqualFold(funcWord, fileWord) {
			return errors.Errorf("word %q at %q[%d] doesn't match %q in filename %q", funcWord, funcName, funcIdx, fileWord, filename)
		}

		// Test names are taken from Go function names, so they should follow
		// Go's naming conventions. Every word should begin with either an
		// uppercase letter or a digit. Multiple leading or trailing uppercase
		// letters are allowed to permit filename -> func-name pairings like
		// dbus.go -> "DBus" and crosvm.go -> "CrosVM".
		if !testWordRegexp.MatchString(funcWord) {
			return errors.Errorf("word %q at %q[%d] should probably be %q (acronyms also allowed at beginning and end)",
				funcWord, funcName, funcIdx, strings.Title(strings.ToLower(funcWord)))
		}

		funcIdx += len(funcWord)
	}

	if funcIdx < len(funcName) {
		return errors.Errorf("name %q has extra suffix %q not in filename %q", funcName, funcName[funcIdx:], filename)
	}

	return nil
}

func isAutoAttr(attr string) bool {
	for _, pre := range []string{testNameAttrPrefix, testBundleAttrPrefix, testFeatureAttrPrefix} {
		if strings.HasPrefix(attr, pre) {
			return true
		}
	}
	return false
}

func validateManualAttr(attr []string) error {
	for _, a := range attr {
		if isAutoAttr(a) {
			return errors.Errorf("attribute %q has reserved prefix", a)
		}
		if a == "" {
			return errors.New("empty attribute is invalid")
		}
	}
	return nil
}

// annotationKeyRegexp validates annotation keys and feature tags. Values are
// free-form but must be non-empty.
var annotationKeyRegexp = regexp.MustCompile(`^[a-zA-Z][0-9A-Za-z_]*$`)

func validateAnnotations(features []string, labels []Annotation) error {
	for _, f := range features {
		if f == "" {
			return errors.New("empty feature tag is invalid")
		}
	}
	for _, l := range labels {
		if !annotationKeyRegexp.MatchString(l.Key) {
			return errors.Errorf("invalid annotation key %q", l.Key)
		}
		if l.Key == FeatureKey {
			return errors.Errorf("annotation key %q is reserved; use Features instead", FeatureKey)
		}
		if l.Value == "" {
			return errors.Errorf("annotation %q has an empty value", l.Key)
		}
	}
	return nil
}

var validVarLastPartRE = regexp.MustCompile("[a-zA-Z][0-9A-Za-z_]*")

func validateVars(category, name string, vars []string) error {
	for _, v := range vars {
		parts := strings.Split(v, ".")
		// Allow global variables e.g. "ledger".
		if len(parts) == 1 {
			continue
		}
		if len(parts) == 2 && validVarLastPartRE.MatchString(parts[1]) {
			continue
		}
		if len(parts) == 3 && parts[0] == category && parts[1] == name && validVarLastPartRE.MatchString(parts[2]) {
			continue
		}
		return errors.Errorf("variable name %s violates the naming convention", v)
	}

	seen := make(map[string]struct{})
	for _, v := range vars {
		if _, ok := seen[v]; ok {
			return errors.Errorf("Vars and VarDeps should not contain the same variable %q twice", v)
		}
		seen[v] = struct{}{}
	}

	return nil
}

func (t *TestInstance) clone() *TestInstance {
	ret := &TestInstance{}
	*ret = *t
	ret.Contacts = append([]string(nil), ret.Contacts...)
	ret.Attr = append([]string(nil), ret.Attr...)
	ret.Features = append([]string(nil), ret.Features...)
	ret.Labels = append([]Annotation(nil), ret.Labels...)
	ret.Vars = append([]string(nil), ret.Vars...)
	ret.VarDeps = append([]string(nil), ret.VarDeps...)
	return ret
}

func (t *TestInstance) String() string {
	return t.Name
}

// Constraints returns EntityConstraints for this test.
func (t *TestInstance) Constraints() *EntityConstraints {
	return &EntityConstraints{
		allVars: append(append([]string(nil), t.Vars...), t.VarDeps...),
	}
}

// EntityInfo returns an EntityInfo describing this test for the JSON protocol.
func (t *TestInstance) EntityInfo() *jsonprotocol.EntityInfo {
	return &jsonprotocol.EntityInfo{
		Name:     t.Name,
		Pkg:      t.Pkg,
		Desc:     t.Desc,
		Contacts: append([]string(nil), t.Contacts...),
		Attr:     append([]string(nil), t.Attr...),
		Vars:     append([]string(nil), t.Vars...),
		VarDeps:  append([]string(nil), t.VarDeps...),
		Fixture:  t.Fixture,
		Timeout:  t.Timeout,
		Type:     jsonprotocol.EntityTest,
		Bundle:   t.Bundle,
	}
}

// SortTests sorts tests so that tests sharing a fixture run consecutively.
func SortTests(tests []*TestInstance) {
	sort.Slice(tests, func(i, j int) bool {
		ti := tests[i]
		tj := tests[j]

		if ti.Fixture != tj.Fixture {
			return ti.Fixture < tj.Fixture
		}
		return ti.Name < tj.Name
	})
}
