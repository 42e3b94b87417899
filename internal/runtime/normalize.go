package runtime

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	ce "github.com/drblury/funchost/internal/runtime/cloudevents"
	"github.com/drblury/funchost/internal/runtime/jsoncodec"
)

// NormalizeRequest turns a raw HTTP request into the transport-agnostic Scope
// handed to handlers. The body is read eagerly; content-type sniffing decodes
// a CloudEvent when one is present in either wire mode.
func NormalizeRequest(r *http.Request) (*Scope, error) {
	var body []byte
	if r.Body != nil {
		read, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("funchost: cannot read request body: %w", err)
		}
		body = read
	}

	headers := flattenHeaders(r.Header)
	scope := &Scope{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Headers:  headers,
		Body:     body,
	}

	switch ce.SniffMode(r.Header.Get("Content-Type"), headers) {
	case ce.ModeStructured:
		evt, err := ce.DecodeStructured(body)
		if err != nil {
			return nil, err
		}
		scope.Event = &evt
	case ce.ModeBinary:
		evt, err := ce.DecodeBinary(headers, body)
		if err != nil {
			return nil, err
		}
		scope.Event = &evt
	}

	return scope, nil
}

// flattenHeaders produces a deterministic header sequence: names sorted, each
// name's values kept in wire order, duplicates preserved.
func flattenHeaders(h http.Header) []ce.Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ce.Header, 0, len(h))
	for _, name := range names {
		for _, value := range h[name] {
			out = append(out, ce.Header{Name: name, Value: value})
		}
	}
	return out
}

// WriteResponse denormalizes the internal response onto the wire. When the
// response carries an event, the wire mode is negotiated from the request's
// Accept header, binary by default. Encoding happens before any byte is
// written so failures can still surface as a 500.
func WriteResponse(w http.ResponseWriter, accept string, resp *Response) error {
	if resp == nil {
		resp = &Response{}
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 100 || status > 599 {
		return fmt.Errorf("funchost: invalid response status %d", resp.Status)
	}

	headers := resp.Headers
	body := resp.Body

	if resp.Event != nil {
		// The codec owns the content type of an event response; a Content-Type
		// set earlier via ResponseStart would otherwise be sent twice.
		headers = stripHeader(headers, "Content-Type")
		switch ce.NegotiateMode(accept) {
		case ce.ModeStructured:
			encoded, err := ce.EncodeStructured(*resp.Event)
			if err != nil {
				return fmt.Errorf("funchost: cannot encode response event: %w", err)
			}
			body = encoded
			headers = append(headers, ce.Header{Name: "Content-Type", Value: ce.ContentTypeStructured})
		default:
			evtHeaders, evtBody, err := ce.EncodeBinary(*resp.Event)
			if err != nil {
				return fmt.Errorf("funchost: cannot encode response event: %w", err)
			}
			body = evtBody
			headers = append(headers, evtHeaders...)
		}
	}

	for _, h := range headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("funchost: cannot write response body: %w", err)
		}
	}
	return nil
}

// stripHeader returns headers without any pair matching name, case-insensitive.
func stripHeader(headers []ce.Header, name string) []ce.Header {
	out := make([]ce.Header, 0, len(headers))
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// buildStatelessResponse maps the return values of a stateless function onto
// the internal response shape. Events pass through for wire encoding, strings
// and byte slices are written verbatim, anything else is JSON-encoded.
func buildStatelessResponse(body any, status int, hdrs http.Header) (*Response, error) {
	resp := &Response{Status: status, Headers: flattenHeaders(hdrs)}

	switch b := body.(type) {
	case nil:
	case []byte:
		resp.Body = b
	case string:
		resp.Body = []byte(b)
	case ce.Event:
		evt := b
		resp.Event = &evt
	case *ce.Event:
		resp.Event = b
	default:
		encoded, err := jsoncodec.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("funchost: cannot encode handler result: %w", err)
		}
		resp.Body = encoded
		if hdrs.Get("Content-Type") == "" {
			resp.SetHeader("Content-Type", ce.ContentTypeJSON)
		}
	}
	return resp, nil
}
