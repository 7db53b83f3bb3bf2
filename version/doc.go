// Package version carries build metadata for the backendkit binary.
//
// Values are injected at link time:
//
//	go build -ldflags "-X github.com/kbukum/backendkit/version.Version=1.2.0" ./cmd/backendkit
//
// Anything left unset is filled from the module build info when available.
package version
