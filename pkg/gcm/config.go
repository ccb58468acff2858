package gcm

import "time"

// DefaultEndpoint is the legacy HTTP send endpoint.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// Config holds the gateway client settings.
type Config struct {
	APIKey   string        `env:"PUSH_GCM_API_KEY"`
	Endpoint string        `env:"PUSH_GCM_ENDPOINT" envDefault:"https://fcm.googleapis.com/fcm/send"`
	Timeout  time.Duration `env:"PUSH_GCM_TIMEOUT" envDefault:"10s"`
	Retries  int           `env:"PUSH_SEND_RETRIES" envDefault:"5"`
	Backoff  time.Duration `env:"PUSH_SEND_BACKOFF" envDefault:"1s"`

	// Breaker opens after this many consecutive failed sends. Zero disables it.
	BreakerFailures int           `env:"PUSH_GCM_BREAKER_FAILURES" envDefault:"0"`
	BreakerRecovery time.Duration `env:"PUSH_GCM_BREAKER_RECOVERY" envDefault:"30s"`
}
