// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

// TestingT is the subset of testing.TB the assertions need.
type TestingT interface {
	assert.TestingT
	Helper()
}

// AssertErrorCode reports whether err carries the given oops code anywhere
// in its chain.
func AssertErrorCode(t TestingT, err error, code string) bool {
	t.Helper()
	if !assert.Error(t, err, "expected error with code %s", code) {
		return false
	}
	if _, ok := oops.AsOops(err); !ok {
		return assert.Fail(t, "not an oops error", "%T: %v", err, err)
	}
	return assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext reports whether err carries key=value in its oops
// context. Context attached at any wrap level counts.
func AssertErrorContext(t TestingT, err error, key string, value any) bool {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return assert.Fail(t, "not an oops error", "%T: %v", err, err)
	}
	got, ok := oopsErr.Context()[key]
	if !ok {
		return assert.Fail(t, "missing context key", "key %q in %v", key, oopsErr.Context())
	}
	return assert.Equal(t, value, got, "context key %q", key)
}
