// Package errors provides the structured error type shared by the provider
// registry and everything built on it.
//
// Every failure the registry raises is an *AppError carrying a machine-readable
// code. Configuration-time problems (name conflicts, unknown factories,
// missing or circular dependencies, invalid configuration) and lifecycle
// failures each have their own code so callers can branch with HasCode
// instead of matching on message text:
//
//	if errors.HasCode(err, errors.ErrCodeCircularDependency) {
//	    path := err.(*errors.AppError).Details["path"]
//	}
//
// ToResponse renders an AppError as an RFC 7807 style body for the admin API.
package errors
