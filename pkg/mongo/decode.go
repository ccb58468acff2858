package mongo

import (
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// normalize turns the driver's bson.D, bson.M and bson.A values inside the
// open mappings into plain maps and slices, the shapes push reads.
func normalize(n *push.Notification) {
	n.Data = plainMap(n.Data)
	n.Notification = plainMap(n.Notification)
	n.Options = push.SendOptions(plainMap(n.Options))
	n.Response = plainMap(n.Response)
	n.Extra = plainMap(n.Extra)
	for i, r := range n.Results {
		n.Results[i] = plainMap(r)
	}
}

func plainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.M:
		return plainMap(t)
	case map[string]any:
		return plainMap(t)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
