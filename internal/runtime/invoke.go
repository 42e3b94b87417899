package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
	errs "github.com/drblury/funchost/internal/runtime/errors"
)

// InvokeFunc is the per-request dispatch signature middlewares wrap.
type InvokeFunc func(ctx context.Context, scope *Scope) (*Response, error)

// Dispatch runs one normalized request against the resolved handler and
// returns the internal response. Stateless functions get their return tuple
// mapped directly; stateful handlers run the streaming protocol against a
// body-replaying receiver and a collecting sender.
func (i *Invoker) Dispatch(ctx context.Context, scope *Scope) (*Response, error) {
	if i.descriptor.Kind == KindStatelessFunction {
		body, status, hdrs := i.stateless(scope)
		if status == 0 {
			status = http.StatusOK
		}
		return buildStatelessResponse(body, status, hdrs)
	}

	collector := &responseCollector{}
	if err := i.stateful.Handle(ctx, scope, newScopeReceiver(scope), collector.send); err != nil {
		return nil, err
	}
	return collector.response(), nil
}

// newScopeReceiver replays the already-read request body as a single final
// chunk, then reports disconnect on every further call.
func newScopeReceiver(scope *Scope) ReceiveFunc {
	var mu sync.Mutex
	delivered := false

	return func(ctx context.Context) (RequestMessage, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mu.Lock()
		defer mu.Unlock()
		if !delivered {
			delivered = true
			return RequestBody{Body: scope.Body, More: false}, nil
		}
		return RequestDisconnect{}, nil
	}
}

// responseCollector accumulates the handler's response messages into one
// internal response. A body or event before an explicit start implies an
// empty 200 start; a second start is rejected.
type responseCollector struct {
	mu      sync.Mutex
	started bool
	status  int
	headers []ce.Header
	body    []byte
	event   *ce.Event
}

func (c *responseCollector) send(ctx context.Context, msg ResponseMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case ResponseStart:
		if c.started {
			return errs.ErrResponseAlreadySent
		}
		c.started = true
		c.status = m.Status
		c.headers = append(c.headers, m.Headers...)
	case ResponseBody:
		c.implicitStart()
		c.body = append(c.body, m.Body...)
	case ResponseEvent:
		c.implicitStart()
		evt := m.Event
		c.event = &evt
	default:
		return fmt.Errorf("funchost: unknown response message %T", msg)
	}
	return nil
}

func (c *responseCollector) implicitStart() {
	if !c.started {
		c.started = true
		c.status = http.StatusOK
	}
}

// response returns the collected result. A handler that sent nothing gets the
// default empty 200.
func (c *responseCollector) response() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return &Response{Status: http.StatusOK}
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		Status:  status,
		Headers: c.headers,
		Body:    c.body,
		Event:   c.event,
	}
}
