// Package router maps canonical feed events into typed storage records.
//
// When the feed's native shape matches the configured target the event passes
// through with envelope completion only. For any other target a deterministic
// approximation is synthesized from the trade event and marked Approximate so
// it can never masquerade as venue-sourced data downstream.
package router
