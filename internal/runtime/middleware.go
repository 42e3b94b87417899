package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/funchost/internal/runtime/errors"
	idspkg "github.com/drblury/funchost/internal/runtime/ids"
	loggingpkg "github.com/drblury/funchost/internal/runtime/logging"
)

// Middleware wraps the per-request invoke function.
type Middleware func(next InvokeFunc) InvokeFunc

// MiddlewareBuilder constructs an invoke middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (Middleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by the Service constructor.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogRequestsMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// CorrelationIDMiddleware ensures each invocation carries a correlation
// identifier, taken from the x-correlation-id request header when present.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(next InvokeFunc) InvokeFunc {
			return func(ctx context.Context, scope *Scope) (*Response, error) {
				if scope.CorrelationID == "" {
					if v := scope.Header("x-correlation-id"); v != "" {
						scope.CorrelationID = v
					} else {
						scope.CorrelationID = idspkg.CreateULID()
					}
				}
				resp, err := next(ctx, scope)
				if resp != nil {
					resp.SetHeader("X-Correlation-Id", scope.CorrelationID)
				}
				return resp, err
			}
		},
	}
}

// LogRequestsMiddleware logs every invocation with its outcome and duration.
func LogRequestsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_requests",
		Builder: func(s *Service) (Middleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log requests middleware requires a logger")
			}
			return func(next InvokeFunc) InvokeFunc {
				return func(ctx context.Context, scope *Scope) (*Response, error) {
					start := time.Now()
					resp, err := next(ctx, scope)

					fields := loggingpkg.LogFields{
						"method":         scope.Method,
						"path":           scope.Path,
						"correlation_id": scope.CorrelationID,
						"duration":       time.Since(start).String(),
					}
					if scope.Event != nil {
						fields["event_id"] = scope.Event.ID
						fields["event_type"] = scope.Event.Type
					}
					if err != nil {
						l.Error("Invocation failed", err, fields)
						return resp, err
					}
					fields["status"] = responseStatus(resp)
					l.Info("Invocation handled", fields)
					return resp, nil
				}
			}, nil
		},
	}
}

// TracerMiddleware wraps each invocation in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(next InvokeFunc) InvokeFunc {
			return func(ctx context.Context, scope *Scope) (*Response, error) {
				tracer := otel.Tracer("funchost-tracer")
				ctx, span := tracer.Start(ctx, "HandleInvocation")
				defer span.End()

				span.SetAttributes(
					attribute.String("http.method", scope.Method),
					attribute.String("http.target", scope.Path),
					attribute.String("correlation.id", scope.CorrelationID),
				)
				if scope.Event != nil {
					span.SetAttributes(
						attribute.String("cloudevents.event_id", scope.Event.ID),
						attribute.String("cloudevents.event_type", scope.Event.Type),
					)
				}

				resp, err := next(ctx, scope)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return resp, err
			}
		},
	}
}

// MetricsMiddleware records Prometheus metrics for each invocation.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (Middleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			if err := s.metrics.Register(); err != nil {
				return nil, err
			}

			return func(next InvokeFunc) InvokeFunc {
				return func(ctx context.Context, scope *Scope) (*Response, error) {
					s.metrics.IncInFlight()
					defer s.metrics.DecInFlight()

					start := time.Now()
					resp, err := next(ctx, scope)
					duration := time.Since(start)

					mode := "none"
					if scope.Event != nil {
						mode = "event"
					}
					if err != nil {
						s.metrics.RecordFailure("error")
						s.metrics.RecordRequest(500, mode, duration)
						return resp, err
					}
					s.metrics.RecordRequest(responseStatus(resp), mode, duration)
					return resp, nil
				}
			}, nil
		},
	}
}

// RecovererMiddleware converts handler panics into invocation errors so they
// surface as a 500 instead of crashing the host.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Middleware: func(next InvokeFunc) InvokeFunc {
			return func(ctx context.Context, scope *Scope) (resp *Response, err error) {
				defer func() {
					if r := recover(); r != nil {
						resp = nil
						err = fmt.Errorf("funchost: handler panic: %v", r)
					}
				}()
				return next(ctx, scope)
			}
		},
	}
}

// RegisterMiddleware attaches the supplied middleware to the service's invoke chain.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errspkg.ErrMiddlewareNilBuilder
	}

	if mw == nil {
		return nil
	}

	s.middlewares = append(s.middlewares, mw)
	return nil
}

// chainMiddlewares composes the registered middlewares around the dispatch
// function so the first registration runs outermost.
func chainMiddlewares(base InvokeFunc, middlewares []Middleware) InvokeFunc {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func responseStatus(resp *Response) int {
	if resp == nil || resp.Status == 0 {
		return 200
	}
	return resp.Status
}
