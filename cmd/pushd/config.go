package main

import (
	"github.com/dmitrymomot/pushkit/pkg/gcm"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/mongo"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/redis"
)

type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"SERVICE_NAME" envDefault:"pushd"`

	// Mode forces live or simulated delivery; empty follows APP_ENV.
	Mode   string `env:"PUSH_MODE"`
	Debug  bool   `env:"PUSH_DEBUG"`
	DryRun bool   `env:"PUSH_SEND_DRY_RUN"`

	// ModelFields are default extra fields, as key:value pairs.
	ModelFields map[string]string `env:"PUSH_MODEL_FIELDS"`

	Log   logger.Config
	HTTP  httpserver.Config
	Mongo mongo.Config
	Redis redis.Config
	Queue queue.Config
	GCM   gcm.Config
}

func (c appConfig) extraFields() map[string]any {
	if len(c.ModelFields) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.ModelFields))
	for k, v := range c.ModelFields {
		out[k] = v
	}
	return out
}
