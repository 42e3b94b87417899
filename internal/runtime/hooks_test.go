package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationHooksMiddleware(t *testing.T) {
	var started, done []InvocationContext
	hooks := InvocationHooks{
		OnInvokeStart: func(ctx InvocationContext) { started = append(started, ctx) },
		OnInvokeDone:  func(ctx InvocationContext) { done = append(done, ctx) },
	}

	s := newTestService(t, func(sc *Scope) (any, int) { return "ok", 201 }, ServiceDependencies{
		Middlewares: []MiddlewareRegistration{InvocationHooksMiddleware(hooks)},
	})

	_, err := s.invoke(context.Background(), &Scope{Method: "POST", Path: "/orders"})
	require.NoError(t, err)

	require.Len(t, started, 1)
	assert.Equal(t, "POST", started[0].Method)
	assert.Equal(t, "/orders", started[0].Path)
	assert.Zero(t, started[0].Status)

	require.Len(t, done, 1)
	assert.Equal(t, 201, done[0].Status)
	assert.NotZero(t, done[0].Duration)
}

func TestInvocationHooksMiddlewareError(t *testing.T) {
	boom := errors.New("handler failed")
	var failures []error
	hooks := InvocationHooks{
		OnInvokeError: func(ctx InvocationContext, err error) { failures = append(failures, err) },
	}

	inv := mustInvoker(t, &scriptedHandler{script: func(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error {
		return boom
	}})
	wrapped := invocationHooksMiddleware(hooks)(inv.Dispatch)

	_, err := wrapped(context.Background(), &Scope{})
	assert.ErrorIs(t, err, boom)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], boom)
}

func TestInvocationHooksMerge(t *testing.T) {
	var order []string
	first := InvocationHooks{
		OnInvokeStart: func(ctx InvocationContext) { order = append(order, "first") },
	}
	second := InvocationHooks{
		OnInvokeStart: func(ctx InvocationContext) { order = append(order, "second") },
		OnInvokeDone:  func(ctx InvocationContext) { order = append(order, "done") },
	}

	merged := first.Merge(second)
	merged.OnInvokeStart(InvocationContext{})
	merged.OnInvokeDone(InvocationContext{})

	assert.Equal(t, []string{"first", "second", "done"}, order)
	assert.Nil(t, merged.OnInvokeError)
}

func TestMetricsHooksRecord(t *testing.T) {
	metrics := NewRequestMetrics(prometheus.NewRegistry())
	hooks := MetricsHooks(metrics)

	hooks.OnInvokeStart(InvocationContext{})
	hooks.OnInvokeDone(InvocationContext{Status: 200})

	snapshot := metrics.GetSnapshot()
	assert.Equal(t, uint64(1), snapshot.TotalRequests)
}

type recordingLogger struct {
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{}) {
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.errors = append(l.errors, msg)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingLogger{}
	hooks := LoggingHooks(logger)

	hooks.OnInvokeStart(InvocationContext{Method: "GET", Path: "/"})
	hooks.OnInvokeDone(InvocationContext{Status: 200})
	hooks.OnInvokeError(InvocationContext{}, errors.New("x"))

	assert.Equal(t, []string{"Invocation started", "Invocation completed"}, logger.infos)
	assert.Equal(t, []string{"Invocation failed"}, logger.errors)
}
