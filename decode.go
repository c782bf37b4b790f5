package courier

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// BodyKind is the closed set of decoded body representations. The kind is
// decided by a normalized content-type prefix match, never by sniffing the
// payload.
type BodyKind int

const (
	// BodyBinary is the fallback for content types that are neither
	// structured nor textual; the payload stays raw bytes.
	BodyBinary BodyKind = iota
	// BodyJSON covers structured-data content types (application/json and
	// any +json suffix type).
	BodyJSON
	// BodyText covers textual content types (text/*).
	BodyText
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	default:
		return "binary"
	}
}

// kindForContentType maps a Content-Type header value onto the closed
// BodyKind set. Parameters (charset etc.) are ignored.
func kindForContentType(contentType string) BodyKind {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	switch {
	case mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json"):
		return BodyJSON
	case strings.HasPrefix(mediaType, "text/"):
		return BodyText
	default:
		return BodyBinary
	}
}

const contentTypeJSON = "application/json"

// Response is the decoded result of a successful call. Body always holds
// the raw bytes; Value holds the representation selected by Kind, so call
// sites never need to know the response shape in advance: any for JSON,
// string for text, []byte for binary.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Kind       BodyKind
	Value      any
}

// decodeValue populates Kind and Value from the raw body. A structured body
// that fails to parse degrades to its plain-text representation instead of
// surfacing a decode error.
func (r *Response) decodeValue() {
	r.Kind = kindForContentType(r.Header.Get("Content-Type"))
	switch r.Kind {
	case BodyJSON:
		if len(r.Body) == 0 {
			r.Value = nil
			return
		}
		var v any
		if err := json.Unmarshal(r.Body, &v); err != nil {
			r.Kind = BodyText
			r.Value = string(r.Body)
			return
		}
		r.Value = v
	case BodyText:
		r.Value = string(r.Body)
	default:
		r.Value = r.Body
	}
}

// Decode unmarshals the raw body into dst. It is the typed counterpart of
// Value for callers that know the expected shape.
func (r *Response) Decode(dst any) error {
	if dst == nil {
		return fmt.Errorf("decode destination must not be nil")
	}
	if len(r.Body) == 0 {
		return fmt.Errorf("response body is empty")
	}
	return json.Unmarshal(r.Body, dst)
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Bytes returns the raw body.
func (r *Response) Bytes() []byte {
	return r.Body
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// decodeErrorBody applies the three-tier fallback for failure responses:
// structured decode first, plain text second, nil when the body is empty.
// Decode trouble is swallowed here, never surfaced as its own error.
func decodeErrorBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

// errorMessageFromBody extracts the server-provided message from a decoded
// error body when it carries one, falling back to the HTTP status text.
func errorMessageFromBody(body any, statusCode int) string {
	if m, ok := body.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if text := http.StatusText(statusCode); text != "" {
		return fmt.Sprintf("request failed: %d %s", statusCode, text)
	}
	return fmt.Sprintf("request failed: status %d", statusCode)
}
