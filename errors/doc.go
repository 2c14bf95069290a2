// Package errors provides standardized error handling patterns for the
// graphql-router gateway.
//
// # Error Classification
//
// Errors are classified into three classes that drive handling strategy:
//
//   - Transient: registry or subgraph unavailability, timeouts (retry or keep serving)
//   - Invalid: malformed queries, composition diagnostics, bad configuration input
//   - Fatal: missing configuration, no supergraph to serve (stop or 503)
//
// The classification integrates with Go's standard error handling, supporting
// errors.Is(), errors.As(), and wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Manager", "buildSupergraph", "registry fetch")
//	errors.WrapInvalid(err, "Composer", "Compose", "sdl merge")
//	errors.WrapFatal(err, "Config", "Validate", "missing private key")
//
// # HTTP Mapping
//
// HTTPStatus maps pipeline errors to response codes: ErrUnauthenticated to
// 401, ErrForbidden to 403, ErrNoSupergraph to 503, invalid input to 400,
// everything else to 500. The gateway's response formatter is the only
// consumer; components never write status codes themselves.
package errors
