// Package observability provides structured logging and Prometheus metrics
// for microkit.
//
// Authentication outcomes and JWKS refreshes are recorded here; the auth
// package only sees the narrow recorder interfaces it declares.
package observability
