// Package funchost hosts user-written function handlers behind an HTTP
// invocation endpoint. It resolves the handler shape once at boot (a
// constructor, a stateful instance with a Handle method, or one of three
// plain-function signatures), normalizes every inbound request into a
// transport-agnostic Scope, and drives the function's lifecycle from start
// hook to shutdown deadline.
//
// CloudEvents v1.0 is supported in both HTTP wire modes: binary requests
// carry attributes as ce- prefixed headers, structured requests carry a
// single application/cloudevents+json envelope. Sniffing is automatic on the
// way in and the response mode is negotiated from the Accept header, binary
// by default. Malformed events are rejected per request with a 400; they
// never take the host down.
//
// A minimal stateless function:
//
//	svc := funchost.NewService(&funchost.Config{}, logger, func(s *funchost.Scope) any {
//		return map[string]any{"echo": string(s.Body)}
//	}, funchost.ServiceDependencies{})
//	svc.Start(ctx)
//
// Stateful functions implement Handler and may add Start, Stop, Alive, and
// Ready hooks; the host wires them into boot, shutdown, and the
// /health/liveness and /health/readiness probe routes. The default
// middleware chain adds correlation IDs, structured request logging,
// OpenTelemetry spans, Prometheus metrics, and panic recovery; see
// DefaultMiddlewares to reorder or replace it.
package funchost
