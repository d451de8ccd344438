package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPriceProvider struct {
	mock.Mock
}

type MockPublisher struct {
	mock.Mock
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockPriceProvider) UnitPrice(ctx context.Context, productID uint64) (int64, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (uint64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uint64), args.Error(1)
}
