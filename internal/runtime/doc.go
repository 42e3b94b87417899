// Package runtime implements the function host: handler shape resolution,
// request normalization, the invocation middleware chain, lifecycle
// management with health probes, and the drain-then-stop shutdown sequence.
// The root funchost package re-exports the public surface.
package runtime
