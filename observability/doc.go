// Package observability provides an OpenTelemetry metrics port for aegis.
// Metrics implements notify.Port and turns the notification stream into
// system-wide counters: step transitions, approval requests, completed
// onboardings and errors.
//
// Register it next to the other ports with notify.Fanout, or let
// engine.New add it automatically. For per-step tracing and metrics, see
// the middleware package: middleware.Tracing() and middleware.Metrics().
package observability
