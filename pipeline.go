package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriellee58/courier/internal/backoff"
)

// Pipeline is the resilient outbound request pipeline every client-to-server
// call is funneled through. It owns the default RequestConfig, the three
// interceptor chains, the retry/timeout state machine, response decoding and
// the auth-failure broadcaster. A single Pipeline is safe for concurrent use;
// all per-call state lives on the stack of Execute.
type Pipeline struct {
	baseURL  string
	defaults *RequestConfig

	transport     Transport
	includeClient *http.Client
	omitClient    *http.Client

	interceptorMu     sync.Mutex
	nextInterceptorID int
	requestChain      []requestEntry
	responseChain     []responseEntry
	errorChain        []errorEntry

	broadcaster *Broadcaster

	retryCondition  RetryCondition
	backoffCalc     *backoff.Calculator
	maxDelay        time.Duration
	delayMultiplier float64
	delayJitter     float64

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   func(*Request) string
	cacheCondition CacheCondition

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Pipeline using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
// Execute refuses to run while the configuration is invalid.
func New(options ...Option) *Pipeline {
	include, omit := defaultTransports()
	p := &Pipeline{
		defaults:        defaultRequestConfig(),
		includeClient:   include,
		omitClient:      omit,
		broadcaster:     NewBroadcaster(),
		retryCondition:  DefaultRetryCondition,
		backoffCalc:     defaultBackoffCalculator(),
		maxDelay:        30 * time.Second,
		delayMultiplier: 2.0,
		delayJitter:     0.1,
		cacheTTL:        5 * time.Minute,
		cacheKeyFunc:    DefaultCacheKeyFunc,
		cacheCondition:  DefaultCacheCondition,
		debug:           DefaultDebugConfig(),
	}

	for _, option := range options {
		option(p)
	}

	if err := p.ValidateConfiguration(); err != nil {
		p.validationError = err
	}

	return p
}

// Execute performs one resilient call: merge config, resolve the URL, then
// attempt the request until it succeeds, is recovered by an error
// interceptor, is canceled, or exhausts the retry budget. Request
// interceptors re-run on every attempt, so they can inject fresh tokens or
// timestamps per try. The only error shape returned is *Error.
func (p *Pipeline) Execute(ctx context.Context, rawURL string, opts ...CallOption) (*Response, error) {
	if p.validationError != nil {
		return nil, p.validationError
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := p.mergeConfig(opts)
	if !cfg.Method.valid() {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   fmt.Sprintf("unsupported method %q", string(cfg.Method)),
			Method:    string(cfg.Method),
			URL:       rawURL,
			Timestamp: time.Now(),
		}
	}

	target, verr := p.resolveURL(rawURL)
	if verr != nil {
		verr.Method = cfg.Method.String()
		return nil, verr
	}

	start := time.Now()
	method := cfg.Method.String()
	endpoint := endpointForURL(target)

	var requestID string
	if p.debug != nil && p.debug.Enabled && p.debug.RequestIDGen != nil {
		requestID = p.debug.RequestIDGen()
	}

	if p.debug != nil && p.debug.Enabled && p.debug.LogRequests && p.logger != nil {
		p.logger.Debug("Starting request", "requestID", requestID, "method", method, "url", target.String(), "endpoint", endpoint)
	}

	p.metrics.RecordRequestStart(method, endpoint)
	defer p.metrics.RecordRequestEnd(method, endpoint)

	probe := newAttemptRequest(target, cfg)
	cacheKey := ""
	if p.cache != nil {
		cacheKey = p.cacheKeyFunc(probe)
	}

	if p.cacheReadAllowed(probe) {
		if entry, found := p.cache.Get(cacheKey); found {
			if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
				p.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			p.metrics.RecordCacheHit(method, endpoint)
			p.metrics.RecordRequest(method, endpoint, entry.StatusCode, time.Since(start))
			return responseFromCache(entry), nil
		}
		p.metrics.RecordCacheMiss(method, endpoint)
		if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
			p.logger.Debug("Cache miss", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	resp, err := p.executeWithRetry(ctx, target, cfg, requestID)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	p.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))

	if err != nil {
		return nil, err
	}

	if p.cacheWriteAllowed(probe) && resp.IsSuccess() {
		p.cache.Set(cacheKey, newCacheEntry(resp), p.cacheTTL)
		if mem, ok := p.cache.(*MemoryCache); ok {
			p.metrics.RecordCacheSize("default", mem.Len())
		}
		if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
			p.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey, "ttl", p.cacheTTL)
		}
	}

	return resp, nil
}

// executeWithRetry runs the attempt loop. Every failed attempt passes
// through the error interceptor chain first; a recovery resolves the call.
// Cancellation stops the loop immediately, everything else retries while
// the budget and the retry condition allow.
func (p *Pipeline) executeWithRetry(ctx context.Context, target *url.URL, cfg *RequestConfig, requestID string) (*Response, *Error) {
	method := cfg.Method.String()
	endpoint := endpointForURL(target)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if p.debug != nil && p.debug.Enabled && p.debug.LogRetries && p.logger != nil {
				p.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", cfg.MaxRetries, "endpoint", endpoint)
			}
			p.metrics.RecordRetry(method, endpoint, attempt)
		}

		resp, cerr := p.attempt(ctx, target, cfg, attempt, requestID)
		if cerr == nil {
			return resp, nil
		}

		p.metrics.RecordError(cerr.Type, method, endpoint)

		recovered, next := p.runErrorChain(ctx, cerr, endpoint)
		if recovered != nil {
			return recovered, nil
		}
		cerr = next

		if cerr.Type == ErrorTypeCanceled || cerr.Type == ErrorTypeValidation {
			return nil, cerr
		}
		if attempt >= cfg.MaxRetries || !p.retryCondition(cerr) {
			return nil, cerr
		}

		delay := p.retryDelay(cfg, attempt)
		if p.debug != nil && p.debug.Enabled && p.debug.LogRetries && p.logger != nil {
			p.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "delay", delay, "endpoint", endpoint)
		}
		if err := sleepContext(ctx, delay); err != nil {
			return nil, &Error{
				Type:       ErrorTypeCanceled,
				Message:    "request canceled while waiting to retry",
				Method:     method,
				URL:        target.String(),
				Attempt:    attempt,
				MaxRetries: cfg.MaxRetries,
				RequestID:  requestID,
				Timestamp:  time.Now(),
				Cause:      err,
			}
		}
	}
}

// attempt performs a single try: request interceptors, body serialization,
// per-attempt timeout, transport, response interceptors, status evaluation
// and success decoding. The timeout timer is released on every exit path.
func (p *Pipeline) attempt(ctx context.Context, target *url.URL, cfg *RequestConfig, attempt int, requestID string) (*Response, *Error) {
	req := newAttemptRequest(target, cfg)

	for _, interceptor := range p.requestInterceptors() {
		if err := interceptor(ctx, req); err != nil {
			return nil, p.interceptorError("request interceptor failed", err, req, attempt, cfg, requestID)
		}
	}

	body := req.Body
	contentType := req.ContentType
	if body == nil && req.JSON != nil {
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			e := p.newError(ErrorTypeValidation, "request body is not serializable", err, req, attempt, cfg, requestID)
			return nil, e
		}
		body = encoded
		if contentType == "" {
			contentType = contentTypeJSON
		}
	}

	attemptCtx := withCredentials(ctx, req.Credentials)
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(attemptCtx, req.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(attemptCtx)
	}
	defer cancel()

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
		if req.Progress != nil {
			bodyReader = newProgressReader(bodyReader, int64(len(body)), req.Progress)
		}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method.String(), req.URL.String(), bodyReader)
	if err != nil {
		return nil, p.newError(ErrorTypeValidation, "request could not be built", err, req, attempt, cfg, requestID)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if len(body) > 0 {
		httpReq.ContentLength = int64(len(body))
		raw := body
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(raw)), nil
		}
	}

	httpResp, err := p.transportFor(req.Credentials).Do(httpReq)
	if err != nil {
		return nil, p.classifyTransportError(ctx, attemptCtx, err, req, attempt, cfg, requestID)
	}

	rawBody, err := io.ReadAll(httpResp.Body)
	_ = httpResp.Body.Close()
	if err != nil {
		return nil, p.classifyTransportError(ctx, attemptCtx, err, req, attempt, cfg, requestID)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       rawBody,
	}

	for _, interceptor := range p.responseInterceptors() {
		if err := interceptor(ctx, resp); err != nil {
			return nil, p.interceptorError("response interceptor failed", err, req, attempt, cfg, requestID)
		}
	}

	if !resp.IsSuccess() {
		decoded := decodeErrorBody(resp.Body)
		return nil, &Error{
			Type:       ErrorTypeHTTP,
			Message:    errorMessageFromBody(decoded, resp.StatusCode),
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       decoded,
			Method:     req.Method.String(),
			URL:        req.URL.String(),
			Attempt:    attempt,
			MaxRetries: cfg.MaxRetries,
			RequestID:  requestID,
			Timestamp:  time.Now(),
		}
	}

	resp.decodeValue()
	return resp, nil
}

// runErrorChain applies the built-in auth broadcast and then the registered
// error interceptors in order. A non-nil response recovers the call. An
// interceptor returning a plain error replaces the failure's message and
// cause while keeping its classification, so only *Error shapes travel on.
func (p *Pipeline) runErrorChain(ctx context.Context, cerr *Error, endpoint string) (*Response, *Error) {
	if cerr.IsAuthError() {
		p.broadcaster.Publish(AuthEvent{
			Name:      AuthFailureEvent,
			Status:    cerr.StatusCode,
			Message:   cerr.Message,
			Timestamp: time.Now(),
		})
		p.metrics.RecordAuthFailure(cerr.Method, endpoint, cerr.StatusCode)
		if p.debug != nil && p.debug.Enabled && p.debug.LogBroadcasts && p.logger != nil {
			p.logger.Warn("Auth failure broadcast", "requestID", cerr.RequestID, "status", cerr.StatusCode, "endpoint", endpoint)
		}
	}

	for _, interceptor := range p.errorInterceptors() {
		resp, err := interceptor(ctx, cerr)
		if resp != nil {
			return resp, nil
		}
		if err == nil {
			continue
		}
		if e, ok := AsError(err); ok {
			cerr = e
			continue
		}
		replaced := *cerr
		replaced.Message = err.Error()
		replaced.Cause = err
		cerr = &replaced
	}

	return nil, cerr
}

// classifyTransportError maps a transport failure onto the error taxonomy:
// caller cancellation wins, then the per-attempt deadline becomes a 408
// timeout, everything else is a status-0 network failure.
func (p *Pipeline) classifyTransportError(parent, attemptCtx context.Context, cause error, req *Request, attempt int, cfg *RequestConfig, requestID string) *Error {
	switch {
	case parent.Err() != nil:
		return p.newError(ErrorTypeCanceled, "request canceled", cause, req, attempt, cfg, requestID)
	case errors.Is(cause, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded:
		e := p.newError(ErrorTypeTimeout, "request timed out", cause, req, attempt, cfg, requestID)
		e.StatusCode = http.StatusRequestTimeout
		e.StatusText = http.StatusText(http.StatusRequestTimeout)
		return e
	default:
		return p.newError(ErrorTypeNetwork, "network request failed", cause, req, attempt, cfg, requestID)
	}
}

func (p *Pipeline) interceptorError(message string, cause error, req *Request, attempt int, cfg *RequestConfig, requestID string) *Error {
	if e, ok := AsError(cause); ok {
		if e.Method == "" {
			e.Method = req.Method.String()
		}
		if e.URL == "" {
			e.URL = req.URL.String()
		}
		return e
	}
	return p.newError(ErrorTypeNetwork, message, cause, req, attempt, cfg, requestID)
}

func (p *Pipeline) newError(errorType, message string, cause error, req *Request, attempt int, cfg *RequestConfig, requestID string) *Error {
	return &Error{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		Method:     req.Method.String(),
		URL:        req.URL.String(),
		Attempt:    attempt,
		MaxRetries: cfg.MaxRetries,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}
}

// resolveURL enforces the URL contract: non-empty, absolute URLs used
// verbatim, relative ones joined onto the configured base. Failures carry
// no status code.
func (p *Pipeline) resolveURL(raw string) (*url.URL, *Error) {
	if raw == "" {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "url must not be empty",
			Timestamp: time.Now(),
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "malformed url",
			URL:       raw,
			Timestamp: time.Now(),
			Cause:     err,
		}
	}
	if u.IsAbs() {
		return u, nil
	}

	if p.baseURL == "" {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "relative url requires a configured base URL",
			URL:       raw,
			Timestamp: time.Now(),
		}
	}

	joined, err := url.Parse(joinURL(p.baseURL, raw))
	if err != nil || !joined.IsAbs() {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "malformed url",
			URL:       raw,
			Timestamp: time.Now(),
			Cause:     err,
		}
	}
	return joined, nil
}

// joinURL prepends the base, normalizing to exactly one slash at the seam
// so base path segments are preserved.
func joinURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (p *Pipeline) mergeConfig(opts []CallOption) *RequestConfig {
	cfg := p.defaults.clone()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Get performs a GET request.
func (p *Pipeline) Get(ctx context.Context, url string, opts ...CallOption) (*Response, error) {
	return p.Execute(ctx, url, prependMethod(MethodGet, opts)...)
}

// Delete performs a DELETE request.
func (p *Pipeline) Delete(ctx context.Context, url string, opts ...CallOption) (*Response, error) {
	return p.Execute(ctx, url, prependMethod(MethodDelete, opts)...)
}

// Post performs a POST request. A non-nil body is serialized as JSON;
// use WithBytes to send raw bytes instead.
func (p *Pipeline) Post(ctx context.Context, url string, body any, opts ...CallOption) (*Response, error) {
	return p.Execute(ctx, url, prependMethodAndBody(MethodPost, body, opts)...)
}

// Put performs a PUT request with an optional JSON body.
func (p *Pipeline) Put(ctx context.Context, url string, body any, opts ...CallOption) (*Response, error) {
	return p.Execute(ctx, url, prependMethodAndBody(MethodPut, body, opts)...)
}

// Patch performs a PATCH request with an optional JSON body.
func (p *Pipeline) Patch(ctx context.Context, url string, body any, opts ...CallOption) (*Response, error) {
	return p.Execute(ctx, url, prependMethodAndBody(MethodPatch, body, opts)...)
}

// GetJSON performs a GET request and decodes the response body into out.
// An empty body leaves out untouched.
func (p *Pipeline) GetJSON(ctx context.Context, url string, out any, opts ...CallOption) error {
	resp, err := p.Get(ctx, url, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// PostJSON performs a POST request with a JSON body and decodes the
// response body into out. An empty body leaves out untouched.
func (p *Pipeline) PostJSON(ctx context.Context, url string, body, out any, opts ...CallOption) error {
	resp, err := p.Post(ctx, url, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func prependMethod(m Method, opts []CallOption) []CallOption {
	return append([]CallOption{WithMethod(m)}, opts...)
}

func prependMethodAndBody(m Method, body any, opts []CallOption) []CallOption {
	head := []CallOption{WithMethod(m)}
	if body != nil {
		head = append(head, WithJSON(body))
	}
	return append(head, opts...)
}

// OnAuthFailure subscribes to authentication failure broadcasts. The
// returned channel receives one event per auth-failing attempt; the second
// return value unsubscribes and closes the channel.
func (p *Pipeline) OnAuthFailure() (<-chan AuthEvent, func()) {
	return p.broadcaster.Subscribe()
}

// Broadcaster exposes the underlying auth-failure broadcaster, for sharing
// one event bus across pipelines.
func (p *Pipeline) Broadcaster() *Broadcaster {
	return p.broadcaster
}

// IsValid reports whether configuration validation passed at construction.
func (p *Pipeline) IsValid() bool {
	return p.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (p *Pipeline) ValidationError() error {
	return p.validationError
}

func endpointForURL(u *url.URL) string {
	if u == nil {
		return "unknown"
	}

	host := u.Host
	path := u.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
