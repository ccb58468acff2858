package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/validator"
)

// SuccessMessage marks a response as delivered.
const SuccessMessage = "success"

// MaxRecipients is the gateway limit for one multicast message.
const MaxRecipients = 1000

// Recipients is an ordered list of registration tokens or topics. In JSON it
// accepts either a single string or an array.
type Recipients []string

func (r *Recipients) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*r = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*r = Recipients{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings: %w", err)
	}
	*r = many
	return nil
}

// Notification is the persisted push notification record.
// SentAt is nil until a send succeeds.
type Notification struct {
	ID           string           `bson:"_id" json:"id"`
	To           Recipients       `bson:"to" json:"to"`
	Data         map[string]any   `bson:"data,omitempty" json:"data,omitempty"`
	Notification map[string]any   `bson:"notification,omitempty" json:"notification,omitempty"`
	Options      SendOptions      `bson:"options,omitempty" json:"options,omitempty"`
	Response     map[string]any   `bson:"response,omitempty" json:"response,omitempty"`
	Results      []map[string]any `bson:"results,omitempty" json:"results,omitempty"`
	SentAt       *time.Time       `bson:"sentAt" json:"sentAt,omitempty"`
	Extra        map[string]any   `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt    time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// IsSent reports whether the notification was delivered.
func (n *Notification) IsSent() bool {
	return n.SentAt != nil
}

// Clone returns a copy that shares no top-level maps or slices with n.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}

	c := *n
	c.To = slices.Clone(n.To)
	c.Data = maps.Clone(n.Data)
	c.Notification = maps.Clone(n.Notification)
	c.Options = maps.Clone(n.Options)
	c.Response = maps.Clone(n.Response)
	c.Extra = maps.Clone(n.Extra)
	if n.Results != nil {
		c.Results = make([]map[string]any, len(n.Results))
		for i, r := range n.Results {
			c.Results[i] = maps.Clone(r)
		}
	}
	if n.SentAt != nil {
		sentAt := *n.SentAt
		c.SentAt = &sentAt
	}
	return &c
}

// Request describes a notification to create.
type Request struct {
	To           Recipients     `json:"to"`
	Data         map[string]any `json:"data,omitempty"`
	Notification map[string]any `json:"notification,omitempty"`
	Options      SendOptions    `json:"options,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Validate checks the recipient list.
func (r Request) Validate() error {
	to := []string(r.To)
	return validator.Apply(
		validator.RequiredSlice("to", to),
		validator.MaxLenSlice("to", to, MaxRecipients),
		validator.Each("to", to, "recipient must not be blank", validator.NotBlank),
	)
}

// isSuccess reports whether a response carries the success marker.
func isSuccess(response map[string]any) bool {
	msg, _ := response["message"].(string)
	return strings.EqualFold(msg, SuccessMessage)
}

// zipResults pairs every recipient with the transport result at the same
// position. Recipients without a result get an entry holding only "to".
func zipResults(to []string, results []map[string]any) []map[string]any {
	out := make([]map[string]any, len(to))
	for i, recipient := range to {
		entry := map[string]any{}
		if i < len(results) {
			maps.Copy(entry, results[i])
		}
		entry["to"] = recipient
		out[i] = entry
	}
	return out
}

// transportResults extracts the per-recipient results from a decoded response.
func transportResults(response map[string]any) ([]map[string]any, bool) {
	switch v := response["results"].(type) {
	case []map[string]any:
		return v, true
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, _ := item.(map[string]any)
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}
