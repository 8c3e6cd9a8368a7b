// Package api exposes the REST surface of InsightAgent: the health probe,
// the synchronous run endpoint (multipart task + optional CSV upload), the
// run-history listing, and the Prometheus metrics endpoint, all wrapped in
// CORS and instrumentation middleware.
package api
