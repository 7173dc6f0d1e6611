package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a testify mock of BlobStore. PutObject reads the body so
// expectations can match on the written bytes.
type MockBlobStore struct {
	mock.Mock
}

// PutObject records the call with the body read into a byte slice.
func (m *MockBlobStore) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1)
}

// StatObject records the call.
func (m *MockBlobStore) StatObject(ctx context.Context, path string) (ObjectInfo, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(ObjectInfo), args.Error(1)
}
