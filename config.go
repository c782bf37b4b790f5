package courier

import (
	"net/http"
	"time"
)

// Method identifies an HTTP method supported by the pipeline. The set is
// closed: requests carrying anything else fail validation before transport.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// String returns the method as sent on the wire.
func (m Method) String() string {
	return string(m)
}

func (m Method) valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}

// idempotent reports whether repeating the method cannot multiply server-side
// effects. Used by RetryIdempotentOnly.
func (m Method) idempotent() bool {
	switch m {
	case MethodGet, MethodPut, MethodDelete:
		return true
	}
	return false
}

// CredentialsMode controls whether ambient credentials (cookies) accompany a
// request. The zero value includes them.
type CredentialsMode int

const (
	CredentialsInclude CredentialsMode = iota
	CredentialsOmit
)

func (m CredentialsMode) String() string {
	if m == CredentialsOmit {
		return "omit"
	}
	return "include"
}

// CacheMode is the per-request cache directive carried in RequestConfig.
type CacheMode int

const (
	// CacheModeDefault reads and writes the cache when the pipeline cache is
	// enabled and its condition admits the request.
	CacheModeDefault CacheMode = iota
	// CacheModeNoStore bypasses the cache entirely for this call.
	CacheModeNoStore
	// CacheModeReload skips the cache read but stores the fresh response.
	CacheModeReload
	// CacheModeForce reads and writes the cache for this call even when the
	// pipeline cache condition would exclude it.
	CacheModeForce
)

func (m CacheMode) String() string {
	switch m {
	case CacheModeNoStore:
		return "no-store"
	case CacheModeReload:
		return "reload"
	case CacheModeForce:
		return "force"
	default:
		return "default"
	}
}

// RequestConfig holds everything a single call needs beyond its URL. A
// pipeline owns one as its process-wide defaults; each call deep-copies the
// defaults and applies its CallOptions on top, so per-call values win
// key-by-key and the defaults are never mutated. Once Execute begins the
// merged config is treated as immutable.
type RequestConfig struct {
	// Method defaults to GET.
	Method Method
	// Header keys are case-insensitive and unique per http.Header semantics.
	Header http.Header
	// Credentials selects whether cookies travel with the request.
	Credentials CredentialsMode
	// Body carries raw request bytes with ContentType. When Body is nil and
	// JSON is set, JSON is serialized instead and a JSON content type is
	// applied unless the caller set one explicitly.
	Body        []byte
	ContentType string
	JSON        any
	// Timeout bounds each individual attempt. Zero disables the timer.
	Timeout time.Duration
	// MaxRetries is the retry budget after the first attempt; a transport
	// failing every time is invoked MaxRetries+1 times.
	MaxRetries int
	// RetryDelay is the wait between attempts (the initial delay when a
	// non-constant delay strategy is configured).
	RetryDelay time.Duration
	// Cache is the per-call cache directive.
	Cache CacheMode
	// Progress, when set, observes upload progress for the request body.
	Progress ProgressSink
}

// CallOption mutates the per-call copy of the pipeline's default
// RequestConfig. Options are applied in order; later options win.
type CallOption func(*RequestConfig)

// WithMethod sets the HTTP method.
func WithMethod(m Method) CallOption {
	return func(c *RequestConfig) {
		c.Method = m
	}
}

// WithHeader sets a single header, replacing any default value under the
// same case-insensitive key. Other default headers are preserved.
func WithHeader(key, value string) CallOption {
	return func(c *RequestConfig) {
		c.Header.Set(key, value)
	}
}

// WithHeaders merges a header map into the config, replacing same-named
// defaults key-by-key.
func WithHeaders(h http.Header) CallOption {
	return func(c *RequestConfig) {
		for key, values := range h {
			if len(values) == 0 {
				continue
			}
			c.Header.Set(key, values[0])
			for _, v := range values[1:] {
				c.Header.Add(key, v)
			}
		}
	}
}

// WithJSON sets a structured body serialized to JSON at transport time.
func WithJSON(v any) CallOption {
	return func(c *RequestConfig) {
		c.JSON = v
		c.Body = nil
		c.ContentType = ""
	}
}

// WithBytes sets a raw byte body with an explicit content type, taking
// precedence over any structured JSON body.
func WithBytes(contentType string, body []byte) CallOption {
	return func(c *RequestConfig) {
		c.Body = body
		c.ContentType = contentType
		c.JSON = nil
	}
}

// WithTimeout sets the per-attempt timeout. Zero disables it.
func WithTimeout(d time.Duration) CallOption {
	return func(c *RequestConfig) {
		c.Timeout = d
	}
}

// WithMaxRetries sets the retry budget after the first attempt.
func WithMaxRetries(n int) CallOption {
	return func(c *RequestConfig) {
		c.MaxRetries = n
	}
}

// WithRetryDelay sets the wait between attempts.
func WithRetryDelay(d time.Duration) CallOption {
	return func(c *RequestConfig) {
		c.RetryDelay = d
	}
}

// WithCredentials selects whether cookies accompany the request.
func WithCredentials(m CredentialsMode) CallOption {
	return func(c *RequestConfig) {
		c.Credentials = m
	}
}

// WithCacheMode sets the per-call cache directive.
func WithCacheMode(m CacheMode) CallOption {
	return func(c *RequestConfig) {
		c.Cache = m
	}
}

// WithProgress attaches an upload progress sink for the request body.
func WithProgress(sink ProgressSink) CallOption {
	return func(c *RequestConfig) {
		c.Progress = sink
	}
}

func defaultRequestConfig() *RequestConfig {
	return &RequestConfig{
		Method:      MethodGet,
		Header:      make(http.Header),
		Credentials: CredentialsInclude,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		Cache:       CacheModeDefault,
	}
}

// clone deep-copies the config so per-call mutation never leaks into the
// pipeline defaults. The JSON payload is shared by reference; callers must
// not mutate it after starting a request.
func (c *RequestConfig) clone() *RequestConfig {
	out := *c
	out.Header = c.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if c.Body != nil {
		out.Body = append([]byte(nil), c.Body...)
	}
	return &out
}
