/*
Package main is the executable entry point for the dispatch service.

It exposes the message API (POST /v1/messages), conversation history
lookup, health and version endpoints, and a separate Prometheus metrics
port. Configuration loads from defaults, an optional YAML file, and
DISPATCH_* environment variables; logging is structured zap; shutdown is
graceful on SIGINT/SIGTERM.
*/
package main
