package push_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/environment"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

func TestRecipients_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    push.Recipients
		wantErr bool
	}{
		{"scalar", `"abc"`, push.Recipients{"abc"}, false},
		{"array", `["a","b"]`, push.Recipients{"a", "b"}, false},
		{"null", `null`, nil, false},
		{"number", `42`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got push.Recipients
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotification_Clone(t *testing.T) {
	t.Parallel()

	sentAt := time.Now()
	n := &push.Notification{
		ID:       "id",
		To:       push.Recipients{"a"},
		Data:     map[string]any{"k": "v"},
		Results:  []map[string]any{{"to": "a"}},
		SentAt:   &sentAt,
		Response: map[string]any{"message": "success"},
	}

	c := n.Clone()
	require.Equal(t, n, c)

	c.To[0] = "b"
	c.Data["k"] = "x"
	c.Results[0]["to"] = "b"
	*c.SentAt = sentAt.Add(time.Hour)

	assert.Equal(t, "a", n.To[0])
	assert.Equal(t, "v", n.Data["k"])
	assert.Equal(t, "a", n.Results[0]["to"])
	assert.Equal(t, sentAt, *n.SentAt)

	var nilN *push.Notification
	assert.Nil(t, nilN.Clone())
}

func TestMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, push.ModeSimulated, push.ModeFor(environment.Development))
	assert.Equal(t, push.ModeSimulated, push.ModeFor(environment.Test))
	assert.Equal(t, push.ModeLive, push.ModeFor(environment.Staging))
	assert.Equal(t, push.ModeLive, push.ModeFor(environment.Production))

	assert.Equal(t, push.ModeLive, push.ParseMode("LIVE", environment.Development))
	assert.Equal(t, push.ModeSimulated, push.ParseMode("simulated", environment.Production))
	assert.Equal(t, push.ModeLive, push.ParseMode("", environment.Production))
	assert.Equal(t, push.ModeSimulated, push.ParseMode("bogus", environment.Test))
}
