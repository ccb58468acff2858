package push_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

func seed(t *testing.T, d *push.Dispatcher, sent bool, to ...string) *push.Notification {
	t.Helper()

	n, err := d.Create(context.Background(), request(to...), nil)
	require.NoError(t, err)
	if sent {
		n, err = d.Dispatch(context.Background(), n, push.SendOptions{push.OptionFake: true})
		require.NoError(t, err)
	}
	return n
}

func ids(records []*push.Notification) []string {
	out := make([]string, len(records))
	for i, n := range records {
		out[i] = n.ID
	}
	return out
}

func TestDispatcher_UnsentAndSent(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, push.NewMemoryStorage())
	a := seed(t, d, false, "a")
	b := seed(t, d, true, "b")
	c := seed(t, d, false, "c", "a")

	ctx := context.Background()

	unsent, err := d.Unsent(ctx, push.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, ids(unsent))
	for _, n := range unsent {
		assert.Nil(t, n.SentAt)
	}

	sent, err := d.Sent(ctx, push.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(sent))

	unsent, err = d.Unsent(ctx, push.Filter{To: []string{"a"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, ids(unsent))

	unsent, err = d.Unsent(ctx, push.Filter{To: []string{"b"}})
	require.NoError(t, err)
	assert.Empty(t, unsent)

	t.Run("caller cannot override the delivery predicate", func(t *testing.T) {
		yes := true
		unsent, err := d.Unsent(ctx, push.Filter{Sent: &yes})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, c.ID}, ids(unsent))

		no := false
		sent, err := d.Sent(ctx, push.Filter{Sent: &no})
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, ids(sent))
	})

	t.Run("storage failure", func(t *testing.T) {
		store := newStorageMock()
		store.On("Find", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

		_, err := newDispatcher(t, store).Unsent(ctx, push.Filter{})
		assert.ErrorIs(t, err, push.ErrPersistence)
	})
}

func TestDispatcher_Resend(t *testing.T) {
	t.Parallel()

	t.Run("all succeed", func(t *testing.T) {
		t.Parallel()

		store := push.NewMemoryStorage()
		d := newDispatcher(t, store)
		for range 5 {
			seed(t, d, false, "abc")
		}
		seed(t, d, true, "sent")

		records, err := d.Resend(context.Background(), push.Filter{})
		require.NoError(t, err)
		require.Len(t, records, 5)
		for _, n := range records {
			assert.True(t, n.IsSent())
		}

		unsent, err := d.Unsent(context.Background(), push.Filter{})
		require.NoError(t, err)
		assert.Empty(t, unsent)
	})

	t.Run("nothing to resend", func(t *testing.T) {
		t.Parallel()

		records, err := newDispatcher(t, push.NewMemoryStorage()).Resend(context.Background(), push.Filter{})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("one failure surfaces as aggregate error", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		transport := push.TransportFunc(func(_ context.Context, _ push.Message, to []string, _ push.SendOptions) (map[string]any, error) {
			calls.Add(1)
			if to[0] == "bad" {
				return nil, &push.StatusError{Code: 401}
			}
			return map[string]any{}, nil
		})

		store := push.NewMemoryStorage()
		d := newDispatcher(t, store, push.WithMode(push.ModeLive), push.WithTransport(transport))
		good1 := seed(t, d, false, "good")
		bad := seed(t, d, false, "bad")
		good2 := seed(t, d, false, "good")

		records, err := d.Resend(context.Background(), push.Filter{})
		require.Error(t, err)
		assert.ErrorIs(t, err, push.ErrUnauthorized)
		assert.Contains(t, err.Error(), bad.ID)
		assert.Equal(t, int32(3), calls.Load())

		require.Len(t, records, 3)
		byID := map[string]*push.Notification{}
		for _, n := range records {
			byID[n.ID] = n
		}
		assert.True(t, byID[good1.ID].IsSent())
		assert.True(t, byID[good2.ID].IsSent())
		assert.False(t, byID[bad.ID].IsSent())

		unsent, err := d.Unsent(context.Background(), push.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{bad.ID}, ids(unsent))
	})
}
