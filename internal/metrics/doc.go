/*
Package metrics provides Prometheus instrumentation for the dispatch
pipeline: HTTP surface, end-to-end request outcomes, per-agent call
outcomes, and catalog refresh activity.

The Collector registers its instruments against an injectable
prometheus.Registerer, so tests can use isolated registries and the process
wires the default one exactly once at startup. It satisfies the
orchestrator's MetricsRecorder contract directly.
*/
package metrics
