package push

import (
	"strings"

	"github.com/dmitrymomot/pushkit/pkg/environment"
)

// Mode selects between simulated and live dispatch.
type Mode string

const (
	// ModeLive sends through the transport.
	ModeLive Mode = "live"
	// ModeSimulated marks notifications sent without contacting the gateway.
	ModeSimulated Mode = "simulated"
)

// ModeFor returns the default mode of a deployment profile: local profiles
// simulate, everything else is live.
func ModeFor(env environment.Environment) Mode {
	if env.IsLocal() {
		return ModeSimulated
	}
	return ModeLive
}

// ParseMode returns the explicit mode named by s, falling back to the
// profile default for an empty or unknown value.
func ParseMode(s string, env environment.Environment) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive
	case ModeSimulated, "fake":
		return ModeSimulated
	}
	return ModeFor(env)
}

func (m Mode) String() string {
	return string(m)
}
