// Package events records provider lifecycle events in a bounded history and
// delivers them to typed subscribers.
//
// Subscribers are kept in registration order per event type and are called
// synchronously by Emit, after the event is stored. A subscriber that panics
// is logged and skipped; delivery to the remaining subscribers continues.
//
// Subscribers must not call back into registry lifecycle operations from
// the delivering goroutine; hand the event to another goroutine instead.
package events
