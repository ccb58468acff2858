package gcm

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Sender.
type Option func(*Sender)

// WithEndpoint overrides the gateway URL. Empty values are ignored.
func WithEndpoint(endpoint string) Option {
	return func(s *Sender) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout sets the per attempt request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sender) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRetries sets the retry count used when the send options carry none.
func WithRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the base delay used when the send options carry none.
func WithBackoff(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithCircuitBreaker protects the gateway with cb.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(s *Sender) {
		s.breaker = cb
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfig applies cfg on top of the defaults.
func WithConfig(cfg Config) Option {
	return func(s *Sender) {
		WithEndpoint(cfg.Endpoint)(s)
		WithTimeout(cfg.Timeout)(s)
		WithRetries(cfg.Retries)(s)
		WithBackoff(cfg.Backoff)(s)
		if cfg.BreakerFailures > 0 {
			s.breaker = NewCircuitBreaker(cfg.BreakerFailures, 0, cfg.BreakerRecovery)
		}
	}
}
