package funchost

import (
	runtimepkg "github.com/drblury/funchost/internal/runtime"
	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
	configpkg "github.com/drblury/funchost/internal/runtime/config"
	errspkg "github.com/drblury/funchost/internal/runtime/errors"
	jsoncodec "github.com/drblury/funchost/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/funchost/internal/runtime/logging"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	// Request and response models
	Scope    = runtimepkg.Scope
	Response = runtimepkg.Response
	Header   = ce.Header

	// Streaming protocol
	RequestMessage    = runtimepkg.RequestMessage
	RequestBody       = runtimepkg.RequestBody
	RequestDisconnect = runtimepkg.RequestDisconnect
	ResponseMessage   = runtimepkg.ResponseMessage
	ResponseStart     = runtimepkg.ResponseStart
	ResponseBody      = runtimepkg.ResponseBody
	ResponseEvent     = runtimepkg.ResponseEvent
	ReceiveFunc       = runtimepkg.ReceiveFunc
	SendFunc          = runtimepkg.SendFunc

	// Handler contracts
	Handler           = runtimepkg.Handler
	Starter           = runtimepkg.Starter
	Stopper           = runtimepkg.Stopper
	LivenessReporter  = runtimepkg.LivenessReporter
	ReadinessReporter = runtimepkg.ReadinessReporter
	HandlerKind       = runtimepkg.HandlerKind
	HandlerDescriptor = runtimepkg.HandlerDescriptor
	Invoker           = runtimepkg.Invoker

	// Stateless function shapes
	StatelessFunc       = runtimepkg.StatelessFunc
	StatelessStatusFunc = runtimepkg.StatelessStatusFunc
	StatelessFullFunc   = runtimepkg.StatelessFullFunc

	// Lifecycle
	State     = runtimepkg.State
	ProbeKind = runtimepkg.ProbeKind

	// Middleware
	InvokeFunc             = runtimepkg.InvokeFunc
	Middleware             = runtimepkg.Middleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Invocation lifecycle hooks
	InvocationContext = runtimepkg.InvocationContext
	InvocationHooks   = runtimepkg.InvocationHooks

	// Request metrics
	RequestMetrics         = runtimepkg.RequestMetrics
	RequestStatusMetrics   = runtimepkg.RequestStatusMetrics
	RequestMetricsSnapshot = runtimepkg.RequestMetricsSnapshot

	// CloudEvents types
	Event               = ce.Event
	EventMode           = ce.Mode
	MalformedEventError = ce.MalformedEventError

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	HandlerInitError      = errspkg.HandlerInitError
	ConfigValidationError = errspkg.ConfigValidationError
)

const (
	KindStatelessFunction = runtimepkg.KindStatelessFunction
	KindStatefulObject    = runtimepkg.KindStatefulObject

	StateCreated  = runtimepkg.StateCreated
	StateStarted  = runtimepkg.StateStarted
	StateServing  = runtimepkg.StateServing
	StateStopping = runtimepkg.StateStopping
	StateStopped  = runtimepkg.StateStopped

	ProbeAlive = runtimepkg.ProbeAlive
	ProbeReady = runtimepkg.ProbeReady

	EventModeNone       = ce.ModeNone
	EventModeBinary     = ce.ModeBinary
	EventModeStructured = ce.ModeStructured

	ContentTypeCloudEvents = ce.ContentTypeStructured
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig
	ResolveHandler = runtimepkg.ResolveHandler

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogRequestsMiddleware   = runtimepkg.LogRequestsMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Invocation lifecycle hooks
	InvocationHooksMiddleware = runtimepkg.InvocationHooksMiddleware
	LoggingHooks              = runtimepkg.LoggingHooks
	MetricsHooks              = runtimepkg.MetricsHooks

	// Request metrics
	NewRequestMetrics = runtimepkg.NewRequestMetrics

	// CloudEvents constructors and codec
	NewCloudEvent       = ce.New
	NewCloudEventWithID = ce.NewWithID
	SniffEventMode      = ce.SniffMode
	NegotiateEventMode  = ce.NegotiateMode
	DecodeBinaryEvent   = ce.DecodeBinary
	DecodeStructured    = ce.DecodeStructured
	EncodeBinaryEvent   = ce.EncodeBinary
	EncodeStructured    = ce.EncodeStructured

	// Request normalization
	NormalizeRequest = runtimepkg.NormalizeRequest
	WriteResponse    = runtimepkg.WriteResponse

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrNoHandlerFound       = errspkg.ErrNoHandlerFound
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrLifecycleTransition  = errspkg.ErrLifecycleTransition
	ErrStopHookTimeout      = errspkg.ErrStopHookTimeout
	ErrResponseAlreadySent  = errspkg.ErrResponseAlreadySent
	ErrMiddlewareNilBuilder = errspkg.ErrMiddlewareNilBuilder
)

// NewEntryServiceLogger adapts an entry-style logger (logrus, zap sugar, and
// friends) to the ServiceLogger interface.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
