package cloudevents

import (
	"encoding/base64"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	idspkg "github.com/drblury/funchost/internal/runtime/ids"
	"github.com/drblury/funchost/internal/runtime/jsoncodec"
)

const (
	// ContentTypeStructured is the media type that selects structured mode,
	// where attributes and data travel in a single JSON envelope.
	ContentTypeStructured = "application/cloudevents+json"

	// ContentTypeJSON is the default data content type assumed for event
	// payloads when none is declared.
	ContentTypeJSON = "application/json"

	// HeaderPrefix namespaces event attributes carried as HTTP headers in
	// binary mode, e.g. ce-id, ce-type, ce-source, ce-specversion.
	HeaderPrefix = "ce-"
)

// Header is a single wire header name/value pair. Order is significant and
// duplicate names are preserved when a request is normalized.
type Header struct {
	Name  string
	Value string
}

// MalformedEventError reports an inbound exchange that claimed to carry a
// CloudEvent but could not be decoded. It is recoverable per-request and
// surfaced as a 400-class response.
type MalformedEventError struct {
	Mode string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("funchost: malformed %s-mode cloudevent: %v", e.Mode, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

func malformed(mode, format string, args ...any) error {
	return &MalformedEventError{Mode: mode, Err: fmt.Errorf(format, args...)}
}

// Mode identifies how an exchange carries (or does not carry) an event.
type Mode int

const (
	// ModeNone marks a plain HTTP exchange with no event envelope.
	ModeNone Mode = iota
	// ModeBinary carries attributes as prefixed headers and data as the body.
	ModeBinary
	// ModeStructured carries attributes and data in one JSON document.
	ModeStructured
)

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeStructured:
		return "structured"
	default:
		return "none"
	}
}

// SniffMode applies the content-type rule: structured mode when the media
// type equals the structured CloudEvents type, binary mode when any prefixed
// attribute header is present, otherwise the exchange is a plain HTTP request.
func SniffMode(contentType string, headers []Header) Mode {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == ContentTypeStructured {
		return ModeStructured
	}
	for _, h := range headers {
		if strings.HasPrefix(strings.ToLower(h.Name), HeaderPrefix) {
			return ModeBinary
		}
	}
	return ModeNone
}

// NegotiateMode picks the response encoding from an Accept-style header.
// Binary is the default; structured is selected only when explicitly asked for.
func NegotiateMode(accept string) Mode {
	if strings.Contains(strings.ToLower(accept), ContentTypeStructured) {
		return ModeStructured
	}
	return ModeBinary
}

// DecodeBinary reads event attributes from prefixed headers and treats the
// body as the data payload. The exchange content-type governs how the body is
// interpreted: JSON content is decoded, other text is kept as a string, and
// binary content lands in DataBase64.
func DecodeBinary(headers []Header, body []byte) (Event, error) {
	evt := Event{Extensions: make(map[string]any)}
	var contentType string

	for _, h := range headers {
		name := strings.ToLower(h.Name)
		if name == "content-type" {
			contentType = h.Value
			continue
		}
		if !strings.HasPrefix(name, HeaderPrefix) {
			continue
		}
		attr := name[len(HeaderPrefix):]
		switch attr {
		case "specversion":
			evt.SpecVersion = h.Value
		case "type":
			evt.Type = h.Value
		case "source":
			evt.Source = h.Value
		case "id":
			evt.ID = h.Value
		case "time":
			t, err := parseEventTime(h.Value)
			if err != nil {
				return Event{}, malformed("binary", "invalid time attribute %q: %w", h.Value, err)
			}
			evt.Time = t
		case "subject":
			v := h.Value
			evt.Subject = &v
		case "dataschema":
			v := h.Value
			evt.DataSchema = &v
		case "datacontenttype":
			v := h.Value
			evt.DataContentType = &v
		default:
			evt.Extensions[attr] = h.Value
		}
	}

	if evt.Type == "" {
		return Event{}, malformed("binary", "missing required attribute %q", "type")
	}
	if evt.Source == "" {
		return Event{}, malformed("binary", "missing required attribute %q", "source")
	}
	if evt.SpecVersion == "" {
		return Event{}, malformed("binary", "missing required attribute %q", "specversion")
	}
	if evt.SpecVersion != SpecVersion {
		return Event{}, malformed("binary", "unsupported specversion %q", evt.SpecVersion)
	}
	if evt.ID == "" {
		evt.ID = idspkg.CreateULID()
	}
	if evt.DataContentType == nil && contentType != "" {
		v := contentType
		evt.DataContentType = &v
	}

	if len(body) > 0 {
		switch {
		case isJSONContent(evt.DataContentType):
			var v any
			if err := jsoncodec.Unmarshal(body, &v); err != nil {
				return Event{}, malformed("binary", "invalid JSON data: %w", err)
			}
			evt.Data = v
		case utf8.Valid(body):
			evt.Data = string(body)
		default:
			enc := base64.StdEncoding.EncodeToString(body)
			evt.DataBase64 = &enc
		}
	}

	return evt, nil
}

// DecodeStructured parses the body as a single JSON envelope whose top-level
// keys map to event attributes, with data carrying the nested payload.
func DecodeStructured(body []byte) (Event, error) {
	var evt Event
	if err := jsoncodec.Unmarshal(body, &evt); err != nil {
		return Event{}, malformed("structured", "parse failure: %w", err)
	}
	if evt.Type == "" {
		return Event{}, malformed("structured", "missing required key %q", "type")
	}
	if evt.Source == "" {
		return Event{}, malformed("structured", "missing required key %q", "source")
	}
	if evt.SpecVersion == "" {
		return Event{}, malformed("structured", "missing required key %q", "specversion")
	}
	if evt.SpecVersion != SpecVersion {
		return Event{}, malformed("structured", "unsupported specversion %q", evt.SpecVersion)
	}
	if evt.ID == "" {
		evt.ID = idspkg.CreateULID()
	}
	if evt.Extensions == nil {
		evt.Extensions = make(map[string]any)
	}
	return evt, nil
}

// EncodeBinary is the inverse of DecodeBinary. Headers are sorted by name so
// the output is reproducible for the same input.
func EncodeBinary(e Event) ([]Header, []byte, error) {
	if e.ID == "" {
		e.ID = idspkg.CreateULID()
	}
	if err := e.Validate(); err != nil {
		return nil, nil, err
	}

	headers := []Header{
		{Name: HeaderPrefix + "id", Value: e.ID},
		{Name: HeaderPrefix + "source", Value: e.Source},
		{Name: HeaderPrefix + "specversion", Value: e.SpecVersion},
		{Name: HeaderPrefix + "type", Value: e.Type},
	}
	if !e.Time.IsZero() {
		headers = append(headers, Header{Name: HeaderPrefix + "time", Value: e.Time.Format(time.RFC3339Nano)})
	}
	if e.Subject != nil {
		headers = append(headers, Header{Name: HeaderPrefix + "subject", Value: *e.Subject})
	}
	if e.DataSchema != nil {
		headers = append(headers, Header{Name: HeaderPrefix + "dataschema", Value: *e.DataSchema})
	}
	for k, v := range e.Extensions {
		headers = append(headers, Header{Name: HeaderPrefix + strings.ToLower(k), Value: formatExtensionValue(v)})
	}

	var body []byte
	switch {
	case e.DataBase64 != nil:
		decoded, err := base64.StdEncoding.DecodeString(*e.DataBase64)
		if err != nil {
			return nil, nil, fmt.Errorf("funchost: invalid data_base64: %w", err)
		}
		body = decoded
	case e.Data != nil:
		if s, ok := e.Data.(string); ok && !isJSONContent(e.DataContentType) && e.DataContentType != nil {
			body = []byte(s)
		} else {
			encoded, err := jsoncodec.Marshal(e.Data)
			if err != nil {
				return nil, nil, fmt.Errorf("funchost: cannot encode event data: %w", err)
			}
			body = encoded
		}
	}
	// An absent datacontenttype must stay absent after a round trip; the
	// decoder already treats a missing content-type as JSON.
	if e.DataContentType != nil && *e.DataContentType != "" {
		headers = append(headers, Header{Name: "content-type", Value: *e.DataContentType})
	}

	sort.Slice(headers, func(i, j int) bool {
		if headers[i].Name != headers[j].Name {
			return headers[i].Name < headers[j].Name
		}
		return headers[i].Value < headers[j].Value
	})

	return headers, body, nil
}

// EncodeStructured is the inverse of DecodeStructured.
func EncodeStructured(e Event) ([]byte, error) {
	if e.ID == "" {
		e.ID = idspkg.CreateULID()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(e)
}

func parseEventTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func isJSONContent(contentType *string) bool {
	if contentType == nil || *contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(*contentType), "json")
}

func formatExtensionValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
