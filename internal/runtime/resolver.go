package runtime

import (
	"fmt"
	"net/http"
	"reflect"

	errs "github.com/drblury/funchost/internal/runtime/errors"
)

// HandlerKind classifies the resolved handler shape.
type HandlerKind int

const (
	// KindStatelessFunction is a plain function invoked per request.
	KindStatelessFunction HandlerKind = iota
	// KindStatefulObject is an instance carrying state across requests,
	// dispatched through the streaming Handler contract.
	KindStatefulObject
)

func (k HandlerKind) String() string {
	switch k {
	case KindStatefulObject:
		return "stateful_object"
	default:
		return "stateless_function"
	}
}

// HandlerDescriptor records the shape and optional capabilities discovered
// during resolution. It never changes after boot.
type HandlerDescriptor struct {
	Kind     HandlerKind
	HasStart bool
	HasStop  bool
	HasAlive bool
	HasReady bool
}

// Invoker is the single dispatch capability resolved from the user-supplied
// target. All lifecycle hooks and request dispatch go through it.
type Invoker struct {
	descriptor HandlerDescriptor
	stateful   Handler
	stateless  StatelessFullFunc
	instance   any
}

// Descriptor returns the shape discovered during resolution.
func (i *Invoker) Descriptor() HandlerDescriptor {
	return i.descriptor
}

// Instance returns the resolved handler instance. For stateless functions it
// is the function value itself.
func (i *Invoker) Instance() any {
	return i.instance
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ResolveHandler classifies the target exactly once, at boot. Resolution
// order: a zero-argument constructor is called and its instance used, then a
// direct Handler implementation, then the supported stateless function shapes.
// Anything else fails fatally with ErrNoHandlerFound.
func ResolveHandler(target any) (*Invoker, error) {
	if target == nil {
		return nil, errs.ErrHandlerRequired
	}

	if ctor := asConstructor(target); ctor != nil {
		instance, err := callConstructor(ctor)
		if err != nil {
			return nil, errs.NewHandlerInitError(err)
		}
		h, ok := instance.(Handler)
		if !ok {
			return nil, fmt.Errorf("funchost: constructed instance %T has no Handle method: %w", instance, errs.ErrNoHandlerFound)
		}
		return newStatefulInvoker(h, instance), nil
	}

	if h, ok := target.(Handler); ok {
		return newStatefulInvoker(h, target), nil
	}

	if fn := asStatelessFunc(target); fn != nil {
		return &Invoker{
			descriptor: HandlerDescriptor{Kind: KindStatelessFunction},
			stateless:  fn,
			instance:   target,
		}, nil
	}

	return nil, fmt.Errorf("funchost: target %T matches no supported handler shape: %w", target, errs.ErrNoHandlerFound)
}

func newStatefulInvoker(h Handler, instance any) *Invoker {
	desc := HandlerDescriptor{Kind: KindStatefulObject}
	if _, ok := instance.(Starter); ok {
		desc.HasStart = true
	}
	if _, ok := instance.(Stopper); ok {
		desc.HasStop = true
	}
	if _, ok := instance.(LivenessReporter); ok {
		desc.HasAlive = true
	}
	if _, ok := instance.(ReadinessReporter); ok {
		desc.HasReady = true
	}
	return &Invoker{descriptor: desc, stateful: h, instance: instance}
}

// asConstructor recognizes zero-argument factory functions returning an
// instance, optionally paired with an error. Stateless shapes all take the
// scope argument, so the two families never overlap.
func asConstructor(target any) func() (any, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Func {
		return nil
	}
	t := v.Type()
	if t.IsVariadic() || t.NumIn() != 0 {
		return nil
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0).Implements(errorType) {
			return nil
		}
		return func() (any, error) {
			out := v.Call(nil)
			return out[0].Interface(), nil
		}
	case 2:
		if !t.Out(1).Implements(errorType) {
			return nil
		}
		return func() (any, error) {
			out := v.Call(nil)
			var err error
			if !out[1].IsNil() {
				err = out[1].Interface().(error)
			}
			return out[0].Interface(), err
		}
	default:
		return nil
	}
}

// callConstructor runs the factory with panic containment so a crashing
// constructor surfaces as a boot failure instead of killing resolution.
func callConstructor(ctor func() (any, error)) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panic: %v", r)
		}
	}()
	return ctor()
}

// asStatelessFunc normalizes the three supported plain-function shapes to the
// widest one. Named and unnamed function types both match.
func asStatelessFunc(target any) StatelessFullFunc {
	switch fn := target.(type) {
	case StatelessFullFunc:
		return fn
	case func(*Scope) (any, int, http.Header):
		return fn
	case StatelessStatusFunc:
		return wrapStatusFunc(fn)
	case func(*Scope) (any, int):
		return wrapStatusFunc(fn)
	case StatelessFunc:
		return wrapBodyFunc(fn)
	case func(*Scope) any:
		return wrapBodyFunc(fn)
	default:
		return nil
	}
}

func wrapStatusFunc(fn func(*Scope) (any, int)) StatelessFullFunc {
	return func(s *Scope) (any, int, http.Header) {
		body, status := fn(s)
		return body, status, nil
	}
}

func wrapBodyFunc(fn func(*Scope) any) StatelessFullFunc {
	return func(s *Scope) (any, int, http.Header) {
		return fn(s), http.StatusOK, nil
	}
}
