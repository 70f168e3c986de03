// Package telemetry wraps OpenTelemetry SDK initialization, providing the
// dispatch service with a centrally configured TracerProvider and
// MeterProvider. When telemetry is disabled the globals stay noop and no
// external connection is made.
package telemetry
