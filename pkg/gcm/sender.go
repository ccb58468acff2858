package gcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

// maxResponseSize caps how much of a gateway answer is read.
const maxResponseSize = 1 << 20

// Sender delivers messages over the legacy GCM HTTP protocol. It implements
// push.Transport. Use NewSender to create instances.
type Sender struct {
	apiKey   string
	endpoint string
	client   *http.Client
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	breaker  *CircuitBreaker
	logger   *slog.Logger
}

var _ push.Transport = (*Sender)(nil)

// NewSender creates a sender authenticated with apiKey.
func NewSender(apiKey string, opts ...Option) (*Sender, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	s := &Sender{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: 10 * time.Second,
		retries: 5,
		backoff: time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send posts msg to the gateway for the given registration tokens.
//
// Server errors and network failures are retried with exponential backoff
// while the "retries" send option allows. Any other non-200 answer is
// returned at once as *push.StatusError.
func (s *Sender) Send(ctx context.Context, msg push.Message, to []string, opts push.SendOptions) (map[string]any, error) {
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	if len(to) > push.MaxRecipients {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRecipients, len(to), push.MaxRecipients)
	}

	payload, err := json.Marshal(buildPayload(msg, to, opts))
	if err != nil {
		return nil, fmt.Errorf("gcm: marshal message: %w", err)
	}

	if s.breaker != nil && !s.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	retries := opts.Retries(s.retries)
	backoff := opts.Backoff(s.backoff)
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(max(retries, 0)), retry.NewExponential(backoff))

	attempt := 0
	var response map[string]any
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		resp, err := s.attempt(ctx, payload)
		if err != nil {
			s.logger.DebugContext(ctx, "gateway attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("recipients", len(to)),
				logger.Error(err))
			if temporary(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		response = resp
		return nil
	})

	if s.breaker != nil {
		if err == nil || !temporary(err) {
			s.breaker.RecordSuccess()
		} else {
			s.breaker.RecordFailure()
		}
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (s *Sender) attempt(ctx context.Context, payload []byte) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gcm: build request: %w", err)
	}
	req.Header.Set("Authorization", "key="+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrTemporaryFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Join(ErrTemporaryFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &push.StatusError{Code: resp.StatusCode}
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return out, nil
}

// temporary reports whether err is worth another attempt. A cancelled caller
// context stops the retry loop on its own.
func temporary(err error) bool {
	if errors.Is(err, ErrTemporaryFailure) {
		return true
	}
	var se *push.StatusError
	return errors.As(err, &se) && se.Code >= http.StatusInternalServerError
}
