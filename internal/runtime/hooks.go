package runtime

import (
	"context"
	"time"
)

// InvocationContext provides information about one invocation to hooks.
type InvocationContext struct {
	// Method and Path identify the inbound request.
	Method string
	Path   string
	// CorrelationID is the request's correlation identifier.
	CorrelationID string
	// EventID and EventType are set when the request carried a CloudEvent.
	EventID   string
	EventType string
	// Context is the request context.
	Context context.Context
	// StartedAt is when the invocation started.
	StartedAt time.Time
	// Duration is how long the invocation took (only set in OnInvokeDone and OnInvokeError).
	Duration time.Duration
	// Status is the response status code (only set in OnInvokeDone).
	Status int
}

// InvocationHooks defines callbacks for invocation lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type InvocationHooks struct {
	// OnInvokeStart is called before the handler runs.
	OnInvokeStart func(ctx InvocationContext)

	// OnInvokeDone is called when the handler completed successfully.
	// Duration and Status will be set.
	OnInvokeDone func(ctx InvocationContext)

	// OnInvokeError is called when the handler returned an error.
	// Duration will be set to how long the handler took before failing.
	OnInvokeError func(ctx InvocationContext, err error)
}

// Merge combines two InvocationHooks, creating a new InvocationHooks that
// calls both. The hooks from 'other' are called after the hooks from 'h'.
func (h InvocationHooks) Merge(other InvocationHooks) InvocationHooks {
	return InvocationHooks{
		OnInvokeStart: chainStartHooks(h.OnInvokeStart, other.OnInvokeStart),
		OnInvokeDone:  chainDoneHooks(h.OnInvokeDone, other.OnInvokeDone),
		OnInvokeError: chainErrorHooks(h.OnInvokeError, other.OnInvokeError),
	}
}

func chainStartHooks(a, b func(InvocationContext)) func(InvocationContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx InvocationContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(InvocationContext)) func(InvocationContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx InvocationContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(InvocationContext, error)) func(InvocationContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx InvocationContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// InvocationHooksMiddleware creates a middleware that invokes the provided
// hooks at the appropriate points in the invocation lifecycle.
func InvocationHooksMiddleware(hooks InvocationHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "invocation_hooks",
		Middleware: invocationHooksMiddleware(hooks),
	}
}

func invocationHooksMiddleware(hooks InvocationHooks) Middleware {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, scope *Scope) (*Response, error) {
			startTime := time.Now()

			invCtx := InvocationContext{
				Method:        scope.Method,
				Path:          scope.Path,
				CorrelationID: scope.CorrelationID,
				Context:       ctx,
				StartedAt:     startTime,
			}
			if scope.Event != nil {
				invCtx.EventID = scope.Event.ID
				invCtx.EventType = scope.Event.Type
			}

			if hooks.OnInvokeStart != nil {
				hooks.OnInvokeStart(invCtx)
			}

			resp, err := next(ctx, scope)

			invCtx.Duration = time.Since(startTime)

			if err != nil {
				if hooks.OnInvokeError != nil {
					hooks.OnInvokeError(invCtx, err)
				}
			} else {
				invCtx.Status = responseStatus(resp)
				if hooks.OnInvokeDone != nil {
					hooks.OnInvokeDone(invCtx)
				}
			}

			return resp, err
		}
	}
}

// LoggingHooks returns pre-built hooks that log invocation lifecycle events.
func LoggingHooks(logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}) InvocationHooks {
	return InvocationHooks{
		OnInvokeStart: func(ctx InvocationContext) {
			logger.Info("Invocation started", map[string]interface{}{
				"method":         ctx.Method,
				"path":           ctx.Path,
				"correlation_id": ctx.CorrelationID,
				"event_id":       ctx.EventID,
			})
		},
		OnInvokeDone: func(ctx InvocationContext) {
			logger.Info("Invocation completed", map[string]interface{}{
				"method":         ctx.Method,
				"path":           ctx.Path,
				"correlation_id": ctx.CorrelationID,
				"status":         ctx.Status,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
		OnInvokeError: func(ctx InvocationContext, err error) {
			logger.Error("Invocation failed", err, map[string]interface{}{
				"method":         ctx.Method,
				"path":           ctx.Path,
				"correlation_id": ctx.CorrelationID,
				"event_id":       ctx.EventID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that record invocation metrics into the
// supplied collector.
func MetricsHooks(metrics *RequestMetrics) InvocationHooks {
	return InvocationHooks{
		OnInvokeStart: func(ctx InvocationContext) {
			metrics.IncInFlight()
		},
		OnInvokeDone: func(ctx InvocationContext) {
			metrics.DecInFlight()
			mode := "none"
			if ctx.EventID != "" {
				mode = "event"
			}
			metrics.RecordRequest(ctx.Status, mode, ctx.Duration)
		},
		OnInvokeError: func(ctx InvocationContext, err error) {
			metrics.DecInFlight()
			metrics.RecordFailure("error")
		},
	}
}
