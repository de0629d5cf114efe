package storage

import (
	"context"

	"github.com/ruteri/kvgateway/interfaces"
	"github.com/stretchr/testify/mock"
)

var _ interfaces.KVStore = (*MockKVStore)(nil)

// MockKVStore mocks the KVStore interface
type MockKVStore struct {
	mock.Mock
}

func (m *MockKVStore) Set(ctx context.Context, key, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	args := m.Called(ctx, key)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockKVStore) Delete(ctx context.Context, key []byte) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKVStore) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockKVStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockKVStore) Name() string {
	return "mock"
}

func (m *MockKVStore) LocationURI() string {
	return "mock://"
}
