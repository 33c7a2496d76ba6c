// Package observability provides structured logging and Prometheus metrics
// for the profile gateway.
//
// This package implements:
//   - zap logger construction (json for production, console for development)
//   - Request ID propagation into log fields
//   - HTTP request and upstream call metrics exposed on /metrics
package observability
