// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package mocks

import (
	context "context"

	ulid "github.com/oklog/ulid/v2"
	mock "github.com/stretchr/testify/mock"

	identity "github.com/keyfold/keyfold/internal/identity"
)

// MockPrincipalRepository is an autogenerated mock type for the PrincipalRepository type
type MockPrincipalRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, principal
func (_m *MockPrincipalRepository) Create(ctx context.Context, principal *identity.Principal) error {
	ret := _m.Called(ctx, principal)
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, id
func (_m *MockPrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*identity.Principal, error) {
	ret := _m.Called(ctx, id)

	var r0 *identity.Principal
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*identity.Principal)
	}
	return r0, ret.Error(1)
}

// GetByEmail provides a mock function with given fields: ctx, email
func (_m *MockPrincipalRepository) GetByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	ret := _m.Called(ctx, email)

	var r0 *identity.Principal
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*identity.Principal)
	}
	return r0, ret.Error(1)
}

// GetByExternalID provides a mock function with given fields: ctx, externalID
func (_m *MockPrincipalRepository) GetByExternalID(ctx context.Context, externalID string) (*identity.Principal, error) {
	ret := _m.Called(ctx, externalID)

	var r0 *identity.Principal
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*identity.Principal)
	}
	return r0, ret.Error(1)
}

// Update provides a mock function with given fields: ctx, principal
func (_m *MockPrincipalRepository) Update(ctx context.Context, principal *identity.Principal) error {
	ret := _m.Called(ctx, principal)
	return ret.Error(0)
}

// UpdatePassword provides a mock function with given fields: ctx, id, passwordHash
func (_m *MockPrincipalRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	ret := _m.Called(ctx, id, passwordHash)
	return ret.Error(0)
}

// Delete provides a mock function with given fields: ctx, id
func (_m *MockPrincipalRepository) Delete(ctx context.Context, id ulid.ULID) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// NewMockPrincipalRepository creates a new instance of MockPrincipalRepository.
// It also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMockPrincipalRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPrincipalRepository {
	m := &MockPrincipalRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
