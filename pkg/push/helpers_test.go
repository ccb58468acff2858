package push_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

// storageMock delegates to an in-memory store unless an expectation is set.
type storageMock struct {
	mock.Mock
	*push.MemoryStorage
}

func (m *storageMock) expects(method string) bool {
	for _, c := range m.ExpectedCalls {
		if c.Method == method {
			return true
		}
	}
	return false
}

func newStorageMock() *storageMock {
	return &storageMock{MemoryStorage: push.NewMemoryStorage()}
}

func (m *storageMock) Create(ctx context.Context, n *push.Notification) error {
	if m.expects("Create") {
		return m.Called(ctx, n).Error(0)
	}
	return m.MemoryStorage.Create(ctx, n)
}

func (m *storageMock) Get(ctx context.Context, id string) (*push.Notification, error) {
	if m.expects("Get") {
		args := m.Called(ctx, id)
		return nil, args.Error(1)
	}
	return m.MemoryStorage.Get(ctx, id)
}

func (m *storageMock) Find(ctx context.Context, f push.Filter) ([]*push.Notification, error) {
	if m.expects("Find") {
		args := m.Called(ctx, f)
		return nil, args.Error(1)
	}
	return m.MemoryStorage.Find(ctx, f)
}

func (m *storageMock) Save(ctx context.Context, n *push.Notification) error {
	if m.expects("Save") {
		return m.Called(ctx, n).Error(0)
	}
	return m.MemoryStorage.Save(ctx, n)
}

// transportMock records calls and answers with a canned response.
type transportMock struct {
	mock.Mock
}

func (m *transportMock) Send(ctx context.Context, msg push.Message, to []string, opts push.SendOptions) (map[string]any, error) {
	args := m.Called(ctx, msg, to, opts)
	resp, _ := args.Get(0).(map[string]any)
	return resp, args.Error(1)
}

func newDispatcher(t *testing.T, store push.Storage, opts ...push.DispatcherOption) *push.Dispatcher {
	t.Helper()

	opts = append([]push.DispatcherOption{push.WithLogger(logger.Discard())}, opts...)
	d, err := push.NewDispatcher(store, opts...)
	require.NoError(t, err)
	return d
}

func request(to ...string) push.Request {
	return push.Request{
		To:           push.Recipients(to),
		Data:         map[string]any{"k": "v"},
		Notification: map[string]any{"title": "T"},
	}
}
