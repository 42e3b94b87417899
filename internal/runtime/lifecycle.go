package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	configpkg "github.com/drblury/funchost/internal/runtime/config"
	errs "github.com/drblury/funchost/internal/runtime/errors"
	"github.com/drblury/funchost/internal/runtime/logging"
)

// State enumerates the lifecycle phases of a function host. Transitions only
// move forward: Created, Started, Serving, Stopping, Stopped.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateServing
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateServing:
		return "serving"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// ProbeKind selects which health probe to evaluate.
type ProbeKind int

const (
	ProbeAlive ProbeKind = iota
	ProbeReady
)

func (k ProbeKind) String() string {
	if k == ProbeReady {
		return "readiness"
	}
	return "liveness"
}

// osExit is swapped in tests that exercise forced termination.
var osExit = os.Exit

// Lifecycle owns the host state machine. All transitions funnel through it
// under a single mutex so boot and shutdown each happen at most once.
type Lifecycle struct {
	mu       sync.Mutex
	state    State
	booted   bool
	stopping bool

	invoker *Invoker
	conf    *configpkg.Config
	logger  logging.ServiceLogger

	inflight sync.WaitGroup
}

// NewLifecycle creates a lifecycle controller in the Created state.
func NewLifecycle(inv *Invoker, conf *configpkg.Config, logger logging.ServiceLogger) *Lifecycle {
	return &Lifecycle{
		state:   StateCreated,
		invoker: inv,
		conf:    conf,
		logger:  logger,
	}
}

// State reports the current lifecycle phase.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) setState(next State) {
	l.mu.Lock()
	prev := l.state
	l.state = next
	l.mu.Unlock()

	l.logger.Debug("Lifecycle transition", logging.LogFields{
		"from": prev.String(),
		"to":   next.String(),
	})
}

// Boot runs the function's optional start hook and moves the host into the
// serving state. It can succeed at most once; a second call reports an
// invalid transition.
func (l *Lifecycle) Boot(ctx context.Context) error {
	l.mu.Lock()
	if l.booted {
		l.mu.Unlock()
		return errs.ErrLifecycleTransition
	}
	l.booted = true
	l.mu.Unlock()

	if l.invoker.descriptor.HasStart {
		cfg := l.conf.CloneEnv()
		starter := l.invoker.instance.(Starter)
		if err := safeStart(ctx, starter, cfg); err != nil {
			return fmt.Errorf("funchost: start hook failed: %w", err)
		}
		l.logger.Info("Start hook completed", logging.LogFields{"config_keys": len(cfg)})
	}

	l.setState(StateStarted)
	l.setState(StateServing)
	return nil
}

// BeginRequest admits a request into the in-flight set. It reports false when
// the host is not serving, in which case the caller must reject the request.
func (l *Lifecycle) BeginRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateServing {
		return false
	}
	l.inflight.Add(1)
	return true
}

// EndRequest removes a request admitted by BeginRequest from the in-flight set.
func (l *Lifecycle) EndRequest() {
	l.inflight.Done()
}

// Probe evaluates a health probe. Hosts without the matching reporter pass by
// default; a reporter error or panic is converted into a failing probe with
// the failure text as the message. Probes never crash the host.
func (l *Lifecycle) Probe(ctx context.Context, kind ProbeKind) (ok bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			message = fmt.Sprintf("%s probe panic: %v", kind, r)
			l.logger.Error("Probe panicked", fmt.Errorf("%v", r), logging.LogFields{"probe": kind.String()})
		}
	}()

	switch kind {
	case ProbeReady:
		if !l.invoker.descriptor.HasReady {
			return true, ""
		}
		ready, err := l.invoker.instance.(ReadinessReporter).Ready(ctx)
		if err != nil {
			return false, err.Error()
		}
		return ready, ""
	default:
		if !l.invoker.descriptor.HasAlive {
			return true, ""
		}
		alive, err := l.invoker.instance.(LivenessReporter).Alive(ctx)
		if err != nil {
			return false, err.Error()
		}
		return alive, ""
	}
}

// Shutdown drains in-flight requests and runs the optional stop hook, both
// against one shared deadline from the configured shutdown timeout. Once the
// deadline elapses the process is terminated; a stop hook must not outlive it.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if !l.booted || l.stopping {
		l.mu.Unlock()
		return errs.ErrLifecycleTransition
	}
	l.stopping = true
	l.mu.Unlock()

	l.setState(StateStopping)
	deadlineAt := time.Now().Add(l.conf.ShutdownTimeout)

	drained := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Until(deadlineAt)):
		l.logger.Error("In-flight requests did not drain before the shutdown deadline, terminating", errs.ErrStopHookTimeout, logging.LogFields{
			"timeout": l.conf.ShutdownTimeout.String(),
		})
		osExit(1)
		return errs.ErrStopHookTimeout
	}

	if l.invoker.descriptor.HasStop {
		stopper := l.invoker.instance.(Stopper)
		stopDone := make(chan error, 1)
		go func() {
			stopDone <- safeStop(ctx, stopper)
		}()

		select {
		case err := <-stopDone:
			if err != nil {
				l.logger.Error("Stop hook failed", err, nil)
			}
		case <-time.After(time.Until(deadlineAt)):
			l.logger.Error("Stop hook exceeded the shutdown deadline, terminating", errs.ErrStopHookTimeout, logging.LogFields{
				"timeout": l.conf.ShutdownTimeout.String(),
			})
			osExit(1)
			return errs.ErrStopHookTimeout
		}
	}

	l.setState(StateStopped)
	return nil
}

func safeStart(ctx context.Context, starter Starter, cfg map[string]string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start hook panic: %v", r)
		}
	}()
	return starter.Start(ctx, cfg)
}

func safeStop(ctx context.Context, stopper Stopper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop hook panic: %v", r)
		}
	}()
	return stopper.Stop(ctx)
}
