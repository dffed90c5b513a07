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

// MockPasswordResetRepository is an autogenerated mock type for the PasswordResetRepository type
type MockPasswordResetRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, record
func (_m *MockPasswordResetRepository) Create(ctx context.Context, record *identity.PasswordResetRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

// GetByEmail provides a mock function with given fields: ctx, email
func (_m *MockPasswordResetRepository) GetByEmail(ctx context.Context, email string) ([]*identity.PasswordResetRecord, error) {
	ret := _m.Called(ctx, email)

	var r0 []*identity.PasswordResetRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*identity.PasswordResetRecord)
	}
	return r0, ret.Error(1)
}

// Delete provides a mock function with given fields: ctx, id
func (_m *MockPasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// DeleteByEmail provides a mock function with given fields: ctx, email
func (_m *MockPasswordResetRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	ret := _m.Called(ctx, email)
	return ret.Get(0).(int64), ret.Error(1)
}

// DeleteOlderThan provides a mock function with given fields: ctx, cutoff
func (_m *MockPasswordResetRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ret := _m.Called(ctx, cutoff)
	return ret.Get(0).(int64), ret.Error(1)
}

// NewMockPasswordResetRepository creates a new instance of MockPasswordResetRepository.
// It also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMockPasswordResetRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
