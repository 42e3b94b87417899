package funchost_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/funchost"
)

type counterFunction struct {
	calls int
}

func (f *counterFunction) Handle(ctx context.Context, scope *funchost.Scope, receive funchost.ReceiveFunc, send funchost.SendFunc) error {
	f.calls++
	return send(ctx, funchost.ResponseBody{Body: []byte("served")})
}

func newFacadeService(t *testing.T, target any) *funchost.Service {
	t.Helper()
	svc, err := funchost.TryNewService(&funchost.Config{}, funchost.NewNopServiceLogger(), target, funchost.ServiceDependencies{
		Metrics: funchost.NewRequestMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Boot(context.Background()))
	return svc
}

func TestFacadeStatelessFunction(t *testing.T) {
	svc := newFacadeService(t, func(s *funchost.Scope) any {
		return "hello from " + s.Path
	})

	w := httptest.NewRecorder()
	svc.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fn", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello from /fn", w.Body.String())
}

func TestFacadeConstructorResolution(t *testing.T) {
	instance := &counterFunction{}
	svc := newFacadeService(t, func() *counterFunction { return instance })

	w := httptest.NewRecorder()
	svc.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))

	assert.Equal(t, "served", w.Body.String())
	assert.Equal(t, 1, instance.calls)
	assert.Equal(t, funchost.KindStatefulObject, svc.Descriptor().Kind)
}

func TestFacadeEventHelpers(t *testing.T) {
	evt := funchost.NewCloudEvent("order.created", "https://svc/orders", map[string]any{"id": 1})
	require.NoError(t, evt.Validate())

	headers, body, err := funchost.EncodeBinaryEvent(evt)
	require.NoError(t, err)
	decoded, err := funchost.DecodeBinaryEvent(headers, body)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)

	assert.Equal(t, funchost.EventModeStructured, funchost.NegotiateEventMode(funchost.ContentTypeCloudEvents))
	assert.Equal(t, funchost.EventModeBinary, funchost.NegotiateEventMode("application/json"))
}

func TestFacadeJSONHelpers(t *testing.T) {
	data, err := funchost.Marshal(map[string]int{"n": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, funchost.Unmarshal(data, &out))
	assert.Equal(t, 1, out["n"])
}

func TestFacadeSentinelErrors(t *testing.T) {
	_, err := funchost.ResolveHandler("nope")
	assert.ErrorIs(t, err, funchost.ErrNoHandlerFound)
}
