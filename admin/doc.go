// Package admin serves the registry over HTTP.
//
// The API is a Gin engine behind an h2c handler. Read endpoints return the
// unified provider views of an enhanced.Bridge; mutating endpoints are rate
// limited per client. Registry events are streamed to subscribers as
// Server-Sent Events on /events/stream, optionally filtered by a provider
// glob and a list of event types:
//
//	GET /events/stream?provider=db*&type=provider_failed,provider_started
//
// Success bodies use the {"data": ...} envelope; errors use the
// errors.ErrorResponse body with the status taken from the AppError.
package admin
