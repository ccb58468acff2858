package push

import (
	"maps"
	"strconv"
	"strings"
	"time"
)

// Well known send option keys. Any other key is passed to the transport as is.
const (
	OptionFake                  = "fake"
	OptionRetries               = "retries"
	OptionBackoff               = "backoff"
	OptionDryRun                = "dryRun"
	OptionPriority              = "priority"
	OptionTimeToLive            = "timeToLive"
	OptionCollapseKey           = "collapseKey"
	OptionContentAvailable      = "contentAvailable"
	OptionMutableContent        = "mutableContent"
	OptionDelayWhileIdle        = "delayWhileIdle"
	OptionRestrictedPackageName = "restrictedPackageName"
)

// PriorityHigh is the gateway's high delivery priority.
const PriorityHigh = "high"

// SendOptions holds transport directives and retry hints.
type SendOptions map[string]any

// MergeOptions merges levels left to right; later levels win. Nested maps are
// merged recursively. The result never aliases an input map.
func MergeOptions(levels ...SendOptions) SendOptions {
	out := SendOptions{}
	for _, level := range levels {
		mergeInto(out, level)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if nested, ok := asMap(v); ok {
			if cur, ok := asMap(dst[k]); ok {
				merged := maps.Clone(cur)
				mergeInto(merged, nested)
				dst[k] = merged
				continue
			}
			cp := map[string]any{}
			mergeInto(cp, nested)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case SendOptions:
		return m, true
	}
	return nil, false
}

// Fake reports whether the simulated send path is requested.
func (o SendOptions) Fake() bool {
	return o.Bool(OptionFake)
}

// DryRun reports whether the gateway should validate without delivering.
func (o SendOptions) DryRun() bool {
	return o.Bool(OptionDryRun)
}

// Retries returns the retry budget, or def when unset.
func (o SendOptions) Retries(def int) int {
	if n, ok := o.Int(OptionRetries); ok && n >= 0 {
		return n
	}
	return def
}

// Backoff returns the base retry delay. Numbers are read as milliseconds,
// strings as Go durations.
func (o SendOptions) Backoff(def time.Duration) time.Duration {
	switch v := o[OptionBackoff].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if n, ok := o.Int(OptionBackoff); ok && n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

// Priority returns the delivery priority or an empty string.
func (o SendOptions) Priority() string {
	s, _ := o.String(OptionPriority)
	return s
}

// Bool reads a boolean option. "true"/"1" strings are accepted.
func (o SendOptions) Bool(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// Int reads an integer option from any numeric representation JSON or BSON
// decoding may produce.
func (o SendOptions) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// String reads a string option.
func (o SendOptions) String(key string) (string, bool) {
	s, ok := o[key].(string)
	return s, ok
}
