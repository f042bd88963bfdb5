// Package observability provides logging, metrics, and tracing for the
// car-marketplace backend.
package observability
