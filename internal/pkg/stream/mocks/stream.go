// Package mocks contains testify mocks for the stream transport interfaces.
package mocks

import (
	"github.com/stretchr/testify/mock"
)

// Receiver is a mock of stream.Receiver.
type Receiver[T any] struct {
	mock.Mock
}

// Recv provides a mock function.
func (m *Receiver[T]) Recv() (T, error) {
	ret := m.Called()

	var r0 T
	if rf, ok := ret.Get(0).(func() T); ok {
		r0 = rf()
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(T)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func() error); ok {
		r1 = rf()
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// Sender is a mock of stream.Sender.
type Sender[T any] struct {
	mock.Mock
}

// Send provides a mock function.
func (m *Sender[T]) Send(msg T) error {
	ret := m.Called(msg)

	if rf, ok := ret.Get(0).(func(T) error); ok {
		return rf(msg)
	}
	return ret.Error(0)
}

// CloseSend provides a mock function.
func (m *Sender[T]) CloseSend() error {
	ret := m.Called()

	if rf, ok := ret.Get(0).(func() error); ok {
		return rf()
	}
	return ret.Error(0)
}
