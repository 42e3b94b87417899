package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/funchost/internal/runtime/config"
	errs "github.com/drblury/funchost/internal/runtime/errors"
	"github.com/drblury/funchost/internal/runtime/logging"
)

type lifecycleHandler struct {
	startCfg   map[string]string
	startErr   error
	stopErr    error
	stopDelay  time.Duration
	stopped    bool
	aliveOK    bool
	aliveErr   error
	alivePanic bool
}

func (h *lifecycleHandler) Handle(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error {
	return nil
}

func (h *lifecycleHandler) Start(ctx context.Context, cfg map[string]string) error {
	h.startCfg = cfg
	return h.startErr
}

func (h *lifecycleHandler) Stop(ctx context.Context) error {
	if h.stopDelay > 0 {
		time.Sleep(h.stopDelay)
	}
	h.stopped = true
	return h.stopErr
}

func (h *lifecycleHandler) Alive(ctx context.Context) (bool, error) {
	if h.alivePanic {
		panic("liveness exploded")
	}
	return h.aliveOK, h.aliveErr
}

func newTestLifecycle(t *testing.T, h any, timeout time.Duration) *Lifecycle {
	t.Helper()
	inv, err := ResolveHandler(h)
	require.NoError(t, err)
	conf := configpkg.Config{ShutdownTimeout: timeout, Env: map[string]string{"DB_URL": "db://x"}}.WithDefaults()
	return NewLifecycle(inv, &conf, logging.NewNopServiceLogger())
}

func TestLifecycleBootRunsStartHookWithCopiedEnv(t *testing.T) {
	h := &lifecycleHandler{}
	lc := newTestLifecycle(t, h, time.Second)

	require.NoError(t, lc.Boot(context.Background()))
	assert.Equal(t, StateServing, lc.State())
	assert.Equal(t, map[string]string{"DB_URL": "db://x"}, h.startCfg)

	// The hook receives a copy, not the source of truth.
	h.startCfg["DB_URL"] = "mutated"
	assert.Equal(t, "db://x", lc.conf.Env["DB_URL"])
}

func TestLifecycleBootTwice(t *testing.T) {
	lc := newTestLifecycle(t, &lifecycleHandler{}, time.Second)

	require.NoError(t, lc.Boot(context.Background()))
	assert.ErrorIs(t, lc.Boot(context.Background()), errs.ErrLifecycleTransition)
}

func TestLifecycleBootStartHookFailure(t *testing.T) {
	boom := errors.New("no database")
	lc := newTestLifecycle(t, &lifecycleHandler{startErr: boom}, time.Second)

	err := lc.Boot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateCreated, lc.State())
}

func TestLifecycleBeginRequestOnlyWhileServing(t *testing.T) {
	lc := newTestLifecycle(t, &lifecycleHandler{}, time.Second)

	assert.False(t, lc.BeginRequest())

	require.NoError(t, lc.Boot(context.Background()))
	require.True(t, lc.BeginRequest())
	lc.EndRequest()

	require.NoError(t, lc.Shutdown(context.Background()))
	assert.False(t, lc.BeginRequest())
}

func TestLifecycleShutdownRunsStopHook(t *testing.T) {
	h := &lifecycleHandler{}
	lc := newTestLifecycle(t, h, time.Second)

	require.NoError(t, lc.Boot(context.Background()))
	require.NoError(t, lc.Shutdown(context.Background()))
	assert.True(t, h.stopped)
	assert.Equal(t, StateStopped, lc.State())
}

func TestLifecycleShutdownBeforeBoot(t *testing.T) {
	lc := newTestLifecycle(t, &lifecycleHandler{}, time.Second)
	assert.ErrorIs(t, lc.Shutdown(context.Background()), errs.ErrLifecycleTransition)
}

func TestLifecycleShutdownTwice(t *testing.T) {
	lc := newTestLifecycle(t, &lifecycleHandler{}, time.Second)

	require.NoError(t, lc.Boot(context.Background()))
	require.NoError(t, lc.Shutdown(context.Background()))
	assert.ErrorIs(t, lc.Shutdown(context.Background()), errs.ErrLifecycleTransition)
}

func TestLifecycleShutdownDrainsInflight(t *testing.T) {
	h := &lifecycleHandler{}
	lc := newTestLifecycle(t, h, time.Second)
	require.NoError(t, lc.Boot(context.Background()))

	require.True(t, lc.BeginRequest())
	done := make(chan error, 1)
	go func() {
		done <- lc.Shutdown(context.Background())
	}()

	// Shutdown must not finish while a request is in flight.
	select {
	case <-done:
		t.Fatal("shutdown completed before in-flight request finished")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, h.stopped)

	lc.EndRequest()
	require.NoError(t, <-done)
	assert.True(t, h.stopped)
}

func TestLifecycleShutdownStopHookOverrun(t *testing.T) {
	exitCode := -1
	orig := osExit
	osExit = func(code int) { exitCode = code }
	defer func() { osExit = orig }()

	h := &lifecycleHandler{stopDelay: 500 * time.Millisecond}
	lc := newTestLifecycle(t, h, 50*time.Millisecond)
	require.NoError(t, lc.Boot(context.Background()))

	err := lc.Shutdown(context.Background())
	assert.ErrorIs(t, err, errs.ErrStopHookTimeout)
	assert.Equal(t, 1, exitCode)
}

func TestLifecycleShutdownDrainOverrun(t *testing.T) {
	exitCode := -1
	orig := osExit
	osExit = func(code int) { exitCode = code }
	defer func() { osExit = orig }()

	lc := newTestLifecycle(t, &lifecycleHandler{}, 50*time.Millisecond)
	require.NoError(t, lc.Boot(context.Background()))
	require.True(t, lc.BeginRequest())
	defer lc.EndRequest()

	err := lc.Shutdown(context.Background())
	assert.ErrorIs(t, err, errs.ErrStopHookTimeout)
	assert.Equal(t, 1, exitCode)
}

func TestLifecycleProbeDefaultsPass(t *testing.T) {
	// lifecycleHandler has no Ready method, so the readiness probe passes.
	lc := newTestLifecycle(t, &lifecycleHandler{}, time.Second)

	ok, msg := lc.Probe(context.Background(), ProbeReady)
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestLifecycleProbeDelegates(t *testing.T) {
	h := &lifecycleHandler{aliveOK: true}
	lc := newTestLifecycle(t, h, time.Second)

	ok, msg := lc.Probe(context.Background(), ProbeAlive)
	assert.True(t, ok)
	assert.Empty(t, msg)

	h.aliveOK = false
	ok, _ = lc.Probe(context.Background(), ProbeAlive)
	assert.False(t, ok)
}

func TestLifecycleProbeErrorFails(t *testing.T) {
	h := &lifecycleHandler{aliveErr: errors.New("cache gone")}
	lc := newTestLifecycle(t, h, time.Second)

	ok, msg := lc.Probe(context.Background(), ProbeAlive)
	assert.False(t, ok)
	assert.Equal(t, "cache gone", msg)
}

func TestLifecycleProbePanicFails(t *testing.T) {
	h := &lifecycleHandler{alivePanic: true}
	lc := newTestLifecycle(t, h, time.Second)

	ok, msg := lc.Probe(context.Background(), ProbeAlive)
	assert.False(t, ok)
	assert.Contains(t, msg, "liveness exploded")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "serving", StateServing.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
