// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/pkg/errutil"
)

func TestOpen_RequiresDatabaseURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpen_RejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), "not-a-connection-string")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}
