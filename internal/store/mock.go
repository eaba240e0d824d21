package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, collection, key string) (Document, error) {
	args := m.Called(ctx, collection, key)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, collection, key string, fields map[string]any) error {
	args := m.Called(ctx, collection, key, fields)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, collection, key string) error {
	args := m.Called(ctx, collection, key)
	return args.Error(0)
}

func (m *MockStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	args := m.Called(ctx, collection, filters)
	if docs, ok := args.Get(0).([]Document); ok {
		return docs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	args := m.Called(ctx, collection, filters)
	if sub, ok := args.Get(0).(Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Online(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
