// Package environment names the deployment profiles a service can run under
// (development, test, staging, production).
//
// Profiles are plain values threaded through configuration rather than read
// from ambient global state. Components that behave differently per profile
// receive the Environment explicitly and ask it questions such as IsLocal.
//
// # Usage
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	if env.IsLocal() {
//	    // never contact real gateways
//	}
package environment
