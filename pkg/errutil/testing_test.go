// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/keyfold/keyfold/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("principal_id", "123").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "principal_id", "123")
}

func TestAssertWraps_Sentinel(t *testing.T) {
	sentinel := errors.New("not found")
	err := oops.Code("PRINCIPAL_NOT_FOUND").Wrap(sentinel)
	errutil.AssertWraps(t, err, sentinel)
}
