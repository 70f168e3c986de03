/*
Package server manages HTTP server lifecycle: non-blocking startup,
graceful shutdown, and system signal handling.

The Manager wraps net/http.Server with an explicit listener so startup
failures (port in use, bad address) surface synchronously, while serve-time
errors propagate through an asynchronous error channel. WaitForShutdown
blocks until SIGINT/SIGTERM or a server error, then drains in-flight
requests within the configured shutdown timeout.
*/
package server
