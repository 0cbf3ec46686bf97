// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/extmgr/pkg/errutil"
)

type recorder struct{ failures []string }

func (r *recorder) Helper() {}

func (r *recorder) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestAssertErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pass bool
	}{
		{"matching code", oops.Code("HASH_MISMATCH").Errorf("digest differs"), true},
		{"code below a wrap", oops.With("extension", "foo").Wrap(oops.Code("HASH_MISMATCH").Errorf("digest differs")), true},
		{"different code", oops.Code("FETCH_FAILED").Errorf("timeout"), false},
		{"plain error", errors.New("boom"), false},
		{"nil error", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			ok := errutil.AssertErrorCode(rec, tt.err, "HASH_MISMATCH")
			assert.Equal(t, tt.pass, ok)
			assert.Equal(t, tt.pass, len(rec.failures) == 0, "failures: %v", rec.failures)
		})
	}
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("extension", "foo").Errorf("lock busy")

	rec := &recorder{}
	assert.True(t, errutil.AssertErrorContext(rec, err, "extension", "foo"))
	assert.Empty(t, rec.failures)

	assert.False(t, errutil.AssertErrorContext(rec, err, "extension", "bar"))
	assert.False(t, errutil.AssertErrorContext(rec, err, "hash", "h1"))
	assert.False(t, errutil.AssertErrorContext(rec, errors.New("plain"), "extension", "foo"))
	assert.Len(t, rec.failures, 3)
}
