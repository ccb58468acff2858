package queue

import "time"

// Config holds the configuration for the task queue
type Config struct {
	Name               string        `env:"QUEUE_NAME" envDefault:"push:queued"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	MaxRetries         int8          `env:"QUEUE_MAX_RETRIES" envDefault:"0"`
}
