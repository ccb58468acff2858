package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // ConnectionURL is the URL of the database. It should be in the format "redis://:password@localhost:6379/0"
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`   // RetryInterval is the pause between connection attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // ConnectTimeout bounds the whole connect sequence.

	KeyPrefix          string        `env:"REDIS_QUEUE_PREFIX" envDefault:"pushkit:queue"`    // KeyPrefix namespaces the work queue keys.
	RetryBackoff       time.Duration `env:"REDIS_QUEUE_RETRY_BACKOFF" envDefault:"30s"`       // RetryBackoff is multiplied by the retry count to delay a failed task.
	CompletedRetention time.Duration `env:"REDIS_QUEUE_COMPLETED_RETENTION" envDefault:"24h"` // CompletedRetention is how long completed tasks stay readable.
	LockCheckInterval  time.Duration `env:"REDIS_QUEUE_LOCK_CHECK_INTERVAL" envDefault:"1m"`  // LockCheckInterval is how often expired locks are released.
}
