// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package mocks

import (
	context "context"
	time "time"

	mock "github.com/stretchr/testify/mock"
)

// MockMailer is an autogenerated mock type for the Mailer type
type MockMailer struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, to, subject, textBody, htmlBody
func (_m *MockMailer) Send(ctx context.Context, to string, subject string, textBody string, htmlBody string) error {
	ret := _m.Called(ctx, to, subject, textBody, htmlBody)
	return ret.Error(0)
}

// NewMockMailer creates a new instance of MockMailer.
// It also registers a testing interface on the mock and a cleanup function to
// assert the mocks expectations.
func NewMockMailer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockMailer {
	m := &MockMailer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockClock is an autogenerated mock type for the Clock type
type MockClock struct {
	mock.Mock
}

// Now provides a mock function with no fields
func (_m *MockClock) Now() time.Time {
	ret := _m.Called()
	return ret.Get(0).(time.Time)
}

// NewMockClock creates a new instance of MockClock.
func NewMockClock(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClock {
	m := &MockClock{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockRandomSource is an autogenerated mock type for the RandomSource type
type MockRandomSource struct {
	mock.Mock
}

// Bytes provides a mock function with given fields: n
func (_m *MockRandomSource) Bytes(n int) ([]byte, error) {
	ret := _m.Called(n)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// NewMockRandomSource creates a new instance of MockRandomSource.
func NewMockRandomSource(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRandomSource {
	m := &MockRandomSource{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockTransactor is an autogenerated mock type for the Transactor type
type MockTransactor struct {
	mock.Mock
}

// InTransaction provides a mock function with given fields: ctx, fn
func (_m *MockTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ret := _m.Called(ctx, fn)

	if rf, ok := ret.Get(0).(func(context.Context, func(ctx context.Context) error) error); ok {
		return rf(ctx, fn)
	}
	return ret.Error(0)
}

// NewMockTransactor creates a new instance of MockTransactor.
func NewMockTransactor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTransactor {
	m := &MockTransactor{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
