// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package mocks

import (
	context "context"
	time "time"

	ulid "github.com/oklog/ulid/v2"
	mock "github.com/stretchr/testify/mock"

	identity "github.com/keyfold/keyfold/internal/identity"
)

// MockSessionTokenRepository is an autogenerated mock type for the SessionTokenRepository type
type MockSessionTokenRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, token
func (_m *MockSessionTokenRepository) Create(ctx context.Context, token *identity.SessionToken) error {
	ret := _m.Called(ctx, token)
	return ret.Error(0)
}

// GetByToken provides a mock function with given fields: ctx, token
func (_m *MockSessionTokenRepository) GetByToken(ctx context.Context, token string) (*identity.SessionToken, error) {
	ret := _m.Called(ctx, token)

	var r0 *identity.SessionToken
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*identity.SessionToken)
	}
	return r0, ret.Error(1)
}

// GetByPrincipal provides a mock function with given fields: ctx, principalID
func (_m *MockSessionTokenRepository) GetByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*identity.SessionToken, error) {
	ret := _m.Called(ctx, principalID)

	var r0 []*identity.SessionToken
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*identity.SessionToken)
	}
	return r0, ret.Error(1)
}

// UpdateLastUsed provides a mock function with given fields: ctx, id, lastUsed
func (_m *MockSessionTokenRepository) UpdateLastUsed(ctx context.Context, id ulid.ULID, lastUsed time.Time) error {
	ret := _m.Called(ctx, id, lastUsed)
	return ret.Error(0)
}

// DeleteByToken provides a mock function with given fields: ctx, token
func (_m *MockSessionTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	ret := _m.Called(ctx, token)
	return ret.Error(0)
}

// DeleteByPrincipal provides a mock function with given fields: ctx, principalID
func (_m *MockSessionTokenRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	ret := _m.Called(ctx, principalID)
	return ret.Error(0)
}

// DeleteExpired provides a mock function with given fields: ctx, at
func (_m *MockSessionTokenRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	ret := _m.Called(ctx, at)
	return ret.Get(0).(int64), ret.Error(1)
}

// DeleteWithoutExpiry provides a mock function with given fields: ctx
func (_m *MockSessionTokenRepository) DeleteWithoutExpiry(ctx context.Context) (int64, error) {
	ret := _m.Called(ctx)
	return ret.Get(0).(int64), ret.Error(1)
}

// NewMockSessionTokenRepository creates a new instance of MockSessionTokenRepository.
// It also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMockSessionTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSessionTokenRepository {
	m := &MockSessionTokenRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
