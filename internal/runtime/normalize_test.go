package runtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
)

func TestNormalizeRequestPlainHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/orders?limit=5", strings.NewReader(`{"n":1}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Add("X-Tag", "a")
	r.Header.Add("X-Tag", "b")

	scope, err := NormalizeRequest(r)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, scope.Method)
	assert.Equal(t, "/orders", scope.Path)
	assert.Equal(t, "limit=5", scope.RawQuery)
	assert.Equal(t, []byte(`{"n":1}`), scope.Body)
	assert.Nil(t, scope.Event)
	assert.Equal(t, []string{"a", "b"}, scope.HeaderValues("x-tag"))
	assert.Equal(t, "application/json", scope.Header("content-type"))
}

func TestNormalizeRequestBinaryEvent(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"Hi"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Ce-Type", "dev.knative.function")
	r.Header.Set("Ce-Source", "https://x/y")
	r.Header.Set("Ce-Id", "abc")
	r.Header.Set("Ce-Specversion", "1.0")

	scope, err := NormalizeRequest(r)
	require.NoError(t, err)

	require.NotNil(t, scope.Event)
	assert.Equal(t, "dev.knative.function", scope.Event.Type)
	assert.Equal(t, "abc", scope.Event.ID)
	assert.Equal(t, map[string]any{"message": "Hi"}, scope.Event.Data)
	// The raw wire form stays available alongside the decoded event.
	assert.Equal(t, []byte(`{"message":"Hi"}`), scope.Body)
}

func TestNormalizeRequestStructuredEvent(t *testing.T) {
	body := `{"id":"1","type":"t","source":"s","specversion":"1.0","data":{"message":"Hello World!"}}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", ce.ContentTypeStructured)

	scope, err := NormalizeRequest(r)
	require.NoError(t, err)

	require.NotNil(t, scope.Event)
	assert.Equal(t, "1", scope.Event.ID)
	assert.Equal(t, "Hello World!", scope.Event.Data.(map[string]any)["message"])
}

func TestNormalizeRequestMalformedEvent(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"1"}`))
	r.Header.Set("Content-Type", ce.ContentTypeStructured)

	_, err := NormalizeRequest(r)
	require.Error(t, err)

	var malformedErr *ce.MalformedEventError
	assert.True(t, errors.As(err, &malformedErr))
}

func TestNormalizeRequestDeterministicHeaderOrder(t *testing.T) {
	build := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("B-Header", "2")
		r.Header.Set("A-Header", "1")
		r.Header.Set("C-Header", "3")
		return r
	}

	first, err := NormalizeRequest(build())
	require.NoError(t, err)
	second, err := NormalizeRequest(build())
	require.NoError(t, err)

	assert.Equal(t, first.Headers, second.Headers)
	for i := 1; i < len(first.Headers); i++ {
		assert.LessOrEqual(t, first.Headers[i-1].Name, first.Headers[i].Name)
	}
}

func TestWriteResponseDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteResponse(w, "", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestWriteResponsePlain(t *testing.T) {
	w := httptest.NewRecorder()
	resp := &Response{
		Status:  http.StatusCreated,
		Headers: []ce.Header{{Name: "X-Custom", Value: "yes"}},
		Body:    []byte("done"),
	}

	require.NoError(t, WriteResponse(w, "", resp))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "done", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Custom"))
}

func TestWriteResponseInvalidStatus(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteResponse(w, "", &Response{Status: 799})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response status")
}

func TestWriteResponseEventBinaryDefault(t *testing.T) {
	evt := ce.NewWithID("abc", "t", "s", map[string]any{"ok": true})
	w := httptest.NewRecorder()

	require.NoError(t, WriteResponse(w, "", &Response{Event: &evt}))

	assert.Equal(t, "abc", w.Header().Get("Ce-Id"))
	assert.Equal(t, "t", w.Header().Get("Ce-Type"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestWriteResponseEventStructuredWhenAccepted(t *testing.T) {
	evt := ce.NewWithID("abc", "t", "s", map[string]any{"ok": true})
	w := httptest.NewRecorder()

	require.NoError(t, WriteResponse(w, ce.ContentTypeStructured, &Response{Event: &evt}))

	assert.Equal(t, ce.ContentTypeStructured, w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Ce-Id"))

	decoded, err := ce.DecodeStructured(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded.ID)
}

func TestWriteResponseEventReplacesContentType(t *testing.T) {
	evt := ce.NewWithID("abc", "t", "s", map[string]any{"ok": true}).WithDataContentType("application/json")
	resp := &Response{
		Headers: []ce.Header{
			{Name: "Content-Type", Value: "text/plain"},
			{Name: "X-Custom", Value: "yes"},
		},
		Event: &evt,
	}

	w := httptest.NewRecorder()
	require.NoError(t, WriteResponse(w, ce.ContentTypeStructured, resp))
	assert.Equal(t, []string{ce.ContentTypeStructured}, w.Header().Values("Content-Type"))
	assert.Equal(t, "yes", w.Header().Get("X-Custom"))

	w = httptest.NewRecorder()
	require.NoError(t, WriteResponse(w, "", resp))
	assert.Equal(t, []string{"application/json"}, w.Header().Values("Content-Type"))
}

func TestBuildStatelessResponse(t *testing.T) {
	t.Run("string body", func(t *testing.T) {
		resp, err := buildStatelessResponse("hello", 200, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), resp.Body)
	})

	t.Run("byte body", func(t *testing.T) {
		resp, err := buildStatelessResponse([]byte{1, 2}, 200, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, resp.Body)
	})

	t.Run("nil body", func(t *testing.T) {
		resp, err := buildStatelessResponse(nil, 204, nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Body)
		assert.Equal(t, 204, resp.Status)
	})

	t.Run("struct body is json encoded", func(t *testing.T) {
		resp, err := buildStatelessResponse(map[string]any{"n": 1}, 200, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(resp.Body))

		var contentType string
		for _, h := range resp.Headers {
			if h.Name == "Content-Type" {
				contentType = h.Value
			}
		}
		assert.Equal(t, ce.ContentTypeJSON, contentType)
	})

	t.Run("event body passes through", func(t *testing.T) {
		evt := ce.NewWithID("1", "t", "s", nil)
		resp, err := buildStatelessResponse(evt, 200, nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Event)
		assert.Equal(t, "1", resp.Event.ID)
	})

	t.Run("headers are carried over", func(t *testing.T) {
		hdrs := http.Header{}
		hdrs.Set("X-From-Handler", "1")
		resp, err := buildStatelessResponse("ok", 200, hdrs)
		require.NoError(t, err)
		assert.Equal(t, []ce.Header{{Name: "X-From-Handler", Value: "1"}}, resp.Headers)
	})
}
