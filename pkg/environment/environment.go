package environment

import "strings"

// Environment represents a deployment profile.
type Environment string

const (
	// Development for local development.
	Development Environment = "development"
	// Test for automated test runs.
	Test Environment = "test"
	// Staging for pre-production deployments.
	Staging Environment = "staging"
	// Production for production deployments.
	Production Environment = "production"
)

// Parse maps a raw profile name, including the short aliases, onto an
// Environment. Unknown and empty names resolve to Development.
func Parse(name string) Environment {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "test", "testing":
		return Test
	default:
		return Development
	}
}

// IsLocal reports whether the profile never talks to real external services.
func (e Environment) IsLocal() bool {
	return e == Development || e == Test || e == "dev"
}

// IsProduction reports whether the profile is production.
func (e Environment) IsProduction() bool {
	return e == Production || e == "prod"
}

func (e Environment) String() string {
	return string(e)
}
