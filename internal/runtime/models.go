package runtime

import (
	"context"
	"net/http"
	"strings"

	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
)

// Scope is the normalized, immutable view of one inbound exchange. It is
// created once per request and handed to the resolved handler; the header
// sequence preserves duplicates and order so the original wire form can be
// reconstructed.
type Scope struct {
	Method   string
	Path     string
	RawQuery string
	Headers  []ce.Header
	Body     []byte

	// Event is set when content-type sniffing identified a CloudEvent in
	// either wire mode. It is always consistent with Headers and Body.
	Event *ce.Event

	// CorrelationID is assigned by the correlation middleware before the
	// handler runs.
	CorrelationID string
}

// Header returns the first value of the named header, case-insensitively.
func (s *Scope) Header(name string) string {
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns every value of the named header in wire order.
func (s *Scope) HeaderValues(name string) []string {
	var values []string
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Response is the internal response representation flowing back to the
// transport. A zero Status means 200. When Event is set, the wire codec fills
// headers and body during denormalization; they are never left for the
// transport to guess.
type Response struct {
	Status  int
	Headers []ce.Header
	Body    []byte
	Event   *ce.Event
}

// SetHeader appends a header pair to the response.
func (r *Response) SetHeader(name, value string) {
	r.Headers = append(r.Headers, ce.Header{Name: name, Value: value})
}

// RequestMessage is the closed variant type delivered by the receive
// capability on the streaming path.
type RequestMessage interface {
	requestMessage()
}

// RequestBody carries (a chunk of) the request payload. More is false on the
// final chunk.
type RequestBody struct {
	Body []byte
	More bool
}

// RequestDisconnect signals that the client is gone and no further request
// messages will be delivered.
type RequestDisconnect struct{}

func (RequestBody) requestMessage()       {}
func (RequestDisconnect) requestMessage() {}

// ResponseMessage is the closed variant type accepted by the send capability:
// one ResponseStart carrying status and headers, then ResponseBody chunks, or
// a single ResponseEvent that the runtime encodes on the wire.
type ResponseMessage interface {
	responseMessage()
}

// ResponseStart opens the response with a status code and headers.
type ResponseStart struct {
	Status  int
	Headers []ce.Header
}

// ResponseBody appends payload bytes. More is false on the final chunk.
type ResponseBody struct {
	Body []byte
	More bool
}

// ResponseEvent responds with a CloudEvent; the wire mode is negotiated from
// the request's Accept header, defaulting to binary.
type ResponseEvent struct {
	Event ce.Event
}

func (ResponseStart) responseMessage() {}
func (ResponseBody) responseMessage()  {}
func (ResponseEvent) responseMessage() {}

// ReceiveFunc delivers request messages to a streaming handler.
type ReceiveFunc func(ctx context.Context) (RequestMessage, error)

// SendFunc accepts response messages from a streaming handler.
type SendFunc func(ctx context.Context, msg ResponseMessage) error

// Handler is the streaming request contract for stateful functions. Handle is
// called concurrently for concurrent requests; implementations must be safe
// under concurrent invocation.
type Handler interface {
	Handle(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error
}

// Starter is the optional boot hook. The cfg mapping is a copy of the host's
// flat configuration; mutating it has no effect on the source of truth.
type Starter interface {
	Start(ctx context.Context, cfg map[string]string) error
}

// Stopper is the optional shutdown hook. It may block for cleanup, but the
// process is terminated if it runs past the shutdown deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// LivenessReporter is the optional deep liveness probe.
type LivenessReporter interface {
	Alive(ctx context.Context) (bool, error)
}

// ReadinessReporter is the optional deep readiness probe.
type ReadinessReporter interface {
	Ready(ctx context.Context) (bool, error)
}

// Stateless function shapes. A plain function may return just a body, a body
// and status, or a body, status and headers; omitted statuses default to 200.
type (
	StatelessFunc       func(*Scope) any
	StatelessStatusFunc func(*Scope) (any, int)
	StatelessFullFunc   func(*Scope) (any, int, http.Header)
)
