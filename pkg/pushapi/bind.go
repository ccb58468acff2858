package pushapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// maxBodySize caps request bodies. A full multicast of long tokens fits.
const maxBodySize = 1 << 20

// decodeJSON strictly decodes one JSON value from the request body. An empty
// body is accepted when allowEmpty is set, leaving v untouched.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	if err := r.Context().Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if r.ContentLength == 0 && allowEmpty {
		return nil
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: got %q, expected application/json", ErrUnsupportedMediaType, ct)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrInvalidJSON, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidJSON, maxBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON value", ErrInvalidJSON)
	}
	return nil
}

// listQuery is the parsed query of the listing endpoint.
type listQuery struct {
	status string
	filter push.Filter
}

// parseListQuery reads status, to, limit, createdAfter, createdBefore and
// extra.<field> parameters.
func parseListQuery(q url.Values) (listQuery, error) {
	out := listQuery{status: strings.ToLower(strings.TrimSpace(q.Get("status")))}

	switch out.status {
	case "", "all", "sent", "unsent":
	default:
		return out, fmt.Errorf("%w: status must be sent, unsent or all", ErrInvalidQuery)
	}

	for _, to := range q["to"] {
		for part := range strings.SplitSeq(to, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out.filter.To = append(out.filter.To, part)
			}
		}
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return out, fmt.Errorf("%w: limit must be a non-negative integer", ErrInvalidQuery)
		}
		out.filter.Limit = n
	}

	var err error
	if out.filter.CreatedAfter, err = parseTime(q, "createdAfter"); err != nil {
		return out, err
	}
	if out.filter.CreatedBefore, err = parseTime(q, "createdBefore"); err != nil {
		return out, err
	}

	for key, values := range q {
		field, ok := strings.CutPrefix(key, "extra.")
		if !ok || field == "" || len(values) == 0 {
			continue
		}
		if out.filter.Extra == nil {
			out.filter.Extra = make(map[string]any)
		}
		out.filter.Extra[field] = values[0]
	}

	return out, nil
}

func parseTime(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", ErrInvalidQuery, key)
	}
	return t, nil
}
