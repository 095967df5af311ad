// Copyright 2025 The Ward Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testing

import (
	"runtime"
)

var (
	globalRegistry *Registry // singleton, initialized on first use

	// registrationErrors records errors from testing.Add* calls. Entities
	// are registered from init functions, where there is no good way to
	// report errors; the bundle checks this list before running anything.
	registrationErrors []error
)

// GlobalRegistry returns a global registry containing tests registered by
// calls to AddTest.
func GlobalRegistry() *Registry {
	if globalRegistry == nil {
		globalRegistry = NewRegistry("")
	}
	return globalRegistry
}

// AddTest adds test t to the global registry.
func AddTest(t *Test) {
	if err := GlobalRegistry().AddTest(t); err != nil {
		registrationErrors = append(registrationErrors, err)
	}
}

// AddFixture adds fixture f to the global registry. The package path of the
// caller is recorded as the fixture's package.
func AddFixture(f *Fixture) {
	pkg := callerPackage(2)
	if err := GlobalRegistry().AddFixture(f, pkg); err != nil {
		registrationErrors = append(registrationErrors, err)
	}
}

// RegistrationErrors returns errors generated by testing.Add* so far.
func RegistrationErrors() []error {
	return append([]error(nil), registrationErrors...)
}

// callerPackage returns the package path of the caller skip frames up.
func callerPackage(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return ""
	}
	pkg, _ := splitFuncName(rf.Name())
	return pkg
}

// SetGlobalRegistryForTesting temporarily sets reg as the global registry and
// clears registration errors. The caller must call the returned function
// later to restore the original registry and errors. This is intended to be
// used by unit tests that need to register tests in the global registry but
// don't want to affect subsequent unit tests.
func SetGlobalRegistryForTesting(reg *Registry) (restore func()) {
	origReg := globalRegistry
	origErrs := registrationErrors
	globalRegistry = reg
	registrationErrors = nil
	return func() {
		globalRegistry = origReg
		registrationErrors = origErrs
	}
}
