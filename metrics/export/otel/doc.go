// Package otel binds portalAuth store metrics to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per store counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads the source's
// MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate store state.
package otel
