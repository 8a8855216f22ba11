// Package inbound exposes webhook processors over net/http.
//
// Deliveries are routed by provider ID and admitted through a per-provider
// token bucket before any verification or database work happens. Errors are
// rendered as go-errors envelopes so providers see a stable text code.
package inbound
