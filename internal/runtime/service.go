package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
	configpkg "github.com/drblury/funchost/internal/runtime/config"
	errspkg "github.com/drblury/funchost/internal/runtime/errors"
	loggingpkg "github.com/drblury/funchost/internal/runtime/logging"
)

var serverListenAndServe = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields at their zero value to accept the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	Metrics                   *RequestMetrics          // Custom metrics collector; one is created when nil.
	Registerer                prometheus.Registerer    // Registerer for the created collector; DefaultRegisterer when nil.
}

// Service hosts one resolved function handler behind an HTTP invocation
// endpoint, with health probes, a middleware chain, and lifecycle management.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	invoker   *Invoker
	lifecycle *Lifecycle
	metrics   *RequestMetrics

	middlewares []Middleware
	invoke      InvokeFunc
}

// NewService constructs a Service for the supplied handler target. It panics
// on invalid input; use TryNewService to handle construction errors.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, target any, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, target, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService constructs a Service for the supplied handler target. The
// target is resolved exactly once here; an unrecognized shape or a failing
// constructor is a fatal boot error.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, target any, deps ServiceDependencies) (*Service, error) {
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	normalized := conf.WithDefaults()

	invoker, err := ResolveHandler(target)
	if err != nil {
		return nil, err
	}

	s := &Service{
		Conf:    &normalized,
		Logger:  log,
		invoker: invoker,
	}

	s.metrics = deps.Metrics
	if s.metrics == nil {
		s.metrics = NewRequestMetrics(deps.Registerer)
	}
	s.lifecycle = NewLifecycle(invoker, s.Conf, log)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	s.invoke = chainMiddlewares(invoker.Dispatch, s.middlewares)

	log.Info("Created function host", loggingpkg.LogFields{
		"handler_kind":   invoker.Descriptor().Kind.String(),
		"listen_address": normalized.ListenAddress,
		"config":         normalized,
	})

	return s, nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("funchost: failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Descriptor returns the shape resolved from the handler target.
func (s *Service) Descriptor() HandlerDescriptor {
	return s.invoker.Descriptor()
}

// State reports the current lifecycle phase.
func (s *Service) State() State {
	return s.lifecycle.State()
}

// Metrics returns the request metrics collector.
func (s *Service) Metrics() *RequestMetrics {
	return s.metrics
}

// Boot runs the function's start hook and moves the host into the serving state.
func (s *Service) Boot(ctx context.Context) error {
	return s.lifecycle.Boot(ctx)
}

// Shutdown drains in-flight requests and runs the stop hook against the
// configured shutdown deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.lifecycle.Shutdown(ctx)
}

// Probe evaluates a health probe against the handler's optional reporters.
func (s *Service) Probe(ctx context.Context, kind ProbeKind) (bool, string) {
	return s.lifecycle.Probe(ctx, kind)
}

// ServeHTTP routes probe paths to the lifecycle probes and everything else to
// the invocation pipeline. Probe paths never reach the user handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case s.Conf.LivenessPath:
		s.serveProbe(w, r, ProbeAlive)
	case s.Conf.ReadinessPath:
		s.serveProbe(w, r, ProbeReady)
	default:
		s.serveInvocation(w, r)
	}
}

func (s *Service) serveProbe(w http.ResponseWriter, r *http.Request, kind ProbeKind) {
	ok, message := s.lifecycle.Probe(r.Context(), kind)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		if message == "" {
			message = kind.String() + " probe failed"
		}
		fmt.Fprintln(w, message)
		return
	}
	w.WriteHeader(http.StatusOK)
	if message == "" {
		message = "OK"
	}
	fmt.Fprintln(w, message)
}

func (s *Service) serveInvocation(w http.ResponseWriter, r *http.Request) {
	if !s.lifecycle.BeginRequest() {
		http.Error(w, "service is not accepting requests", http.StatusServiceUnavailable)
		return
	}
	defer s.lifecycle.EndRequest()

	scope, err := NormalizeRequest(r)
	if err != nil {
		// 400 is reserved for undecodable events; anything else is a
		// transport failure on our side, like a broken body read.
		var malformedErr *ce.MalformedEventError
		if errors.As(err, &malformedErr) {
			s.Logger.Debug("Rejected malformed event", loggingpkg.LogFields{"error": err.Error()})
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.Logger.Error("Failed to normalize request", err, nil)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp, err := s.invoke(r.Context(), scope)
	if err != nil {
		// The failure is already logged and counted by the middleware chain.
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := WriteResponse(w, r.Header.Get("Accept"), resp); err != nil {
		s.Logger.Error("Failed to write response", err, loggingpkg.LogFields{
			"correlation_id": scope.CorrelationID,
		})
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Start boots the lifecycle and serves the invocation endpoint until the
// provided context is cancelled, then runs the shutdown sequence.
func (s *Service) Start(ctx context.Context) error {
	if err := s.lifecycle.Boot(ctx); err != nil {
		return err
	}

	s.startMetricsServer()

	srv := &http.Server{
		Addr:    s.Conf.ListenAddress,
		Handler: s,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serverListenAndServe(srv)
	}()

	s.Logger.Info("Serving invocation endpoint", loggingpkg.LogFields{
		"address":        s.Conf.ListenAddress,
		"liveness_path":  s.Conf.LivenessPath,
		"readiness_path": s.Conf.ReadinessPath,
	})

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Flip to stopping first so new requests are rejected while draining,
	// then close the listener.
	if err := s.lifecycle.Shutdown(context.Background()); err != nil {
		return err
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), s.Conf.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(closeCtx); err != nil {
		return fmt.Errorf("funchost: server close failed: %w", err)
	}
	return nil
}

func (s *Service) startMetricsServer() {
	if !s.Conf.MetricsEnabled || s.Conf.MetricsPort <= 0 {
		return
	}
	if err := s.metrics.Register(); err != nil {
		s.Logger.Error("Failed to register metrics collectors", err, nil)
		return
	}

	addr := fmt.Sprintf(":%d", s.Conf.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.Logger.Info("Starting metrics server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			s.Logger.Error("Failed to start metrics server", err, loggingpkg.LogFields{"address": addr})
		}
	}()
}
