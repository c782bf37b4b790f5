package courier

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is the mutable per-attempt view handed to request interceptors.
// It is rebuilt from the merged config at the start of every attempt, so
// interceptor changes never leak across attempts or into the pipeline
// defaults. Interceptors may rewrite any field, including the URL.
type Request struct {
	Method      Method
	URL         *url.URL
	Header      http.Header
	Body        []byte
	ContentType string
	JSON        any
	Credentials CredentialsMode
	Cache       CacheMode
	Timeout     time.Duration
	Progress    ProgressSink
}

// RequestInterceptor runs before transport on every attempt, including
// retries, in registration order. Returning an error aborts the attempt and
// routes the failure through the error chain.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after transport and before status evaluation, in
// registration order, each receiving the previous interceptor's output.
// Returning an error aborts the attempt and routes the failure through the
// error chain.
type ResponseInterceptor func(ctx context.Context, resp *Response) error

// ErrorInterceptor runs whenever an attempt fails, in registration order.
// Returning a non-nil *Response recovers: the chain stops and the call
// resolves successfully with that response. Returning a non-nil error
// replaces the failure for the rest of the chain. Returning (nil, nil)
// keeps the current failure and continues.
type ErrorInterceptor func(ctx context.Context, err *Error) (*Response, error)

type requestEntry struct {
	id int
	fn RequestInterceptor
}

type responseEntry struct {
	id int
	fn ResponseInterceptor
}

type errorEntry struct {
	id int
	fn ErrorInterceptor
}

// OnRequest registers a request interceptor and returns its de-registration
// handle. Calling the handle more than once is harmless.
func (p *Pipeline) OnRequest(fn RequestInterceptor) func() {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	p.nextInterceptorID++
	id := p.nextInterceptorID
	p.requestChain = append(p.requestChain, requestEntry{id: id, fn: fn})

	return func() {
		p.interceptorMu.Lock()
		defer p.interceptorMu.Unlock()
		for i, entry := range p.requestChain {
			if entry.id == id {
				p.requestChain = append(p.requestChain[:i], p.requestChain[i+1:]...)
				return
			}
		}
	}
}

// OnResponse registers a response interceptor and returns its
// de-registration handle.
func (p *Pipeline) OnResponse(fn ResponseInterceptor) func() {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	p.nextInterceptorID++
	id := p.nextInterceptorID
	p.responseChain = append(p.responseChain, responseEntry{id: id, fn: fn})

	return func() {
		p.interceptorMu.Lock()
		defer p.interceptorMu.Unlock()
		for i, entry := range p.responseChain {
			if entry.id == id {
				p.responseChain = append(p.responseChain[:i], p.responseChain[i+1:]...)
				return
			}
		}
	}
}

// OnError registers an error interceptor and returns its de-registration
// handle. The pipeline's built-in auth-failure broadcast always runs before
// any interceptor registered here.
func (p *Pipeline) OnError(fn ErrorInterceptor) func() {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	p.nextInterceptorID++
	id := p.nextInterceptorID
	p.errorChain = append(p.errorChain, errorEntry{id: id, fn: fn})

	return func() {
		p.interceptorMu.Lock()
		defer p.interceptorMu.Unlock()
		for i, entry := range p.errorChain {
			if entry.id == id {
				p.errorChain = append(p.errorChain[:i], p.errorChain[i+1:]...)
				return
			}
		}
	}
}

// Chain snapshots are taken under the lock before each pass so concurrent
// registration or removal can never skip or double-invoke a handler
// mid-flight.

func (p *Pipeline) requestInterceptors() []RequestInterceptor {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	out := make([]RequestInterceptor, len(p.requestChain))
	for i, entry := range p.requestChain {
		out[i] = entry.fn
	}
	return out
}

func (p *Pipeline) responseInterceptors() []ResponseInterceptor {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	out := make([]ResponseInterceptor, len(p.responseChain))
	for i, entry := range p.responseChain {
		out[i] = entry.fn
	}
	return out
}

func (p *Pipeline) errorInterceptors() []ErrorInterceptor {
	p.interceptorMu.Lock()
	defer p.interceptorMu.Unlock()

	out := make([]ErrorInterceptor, len(p.errorChain))
	for i, entry := range p.errorChain {
		out[i] = entry.fn
	}
	return out
}

func newAttemptRequest(target *url.URL, cfg *RequestConfig) *Request {
	u := *target
	return &Request{
		Method:      cfg.Method,
		URL:         &u,
		Header:      cfg.Header.Clone(),
		Body:        cfg.Body,
		ContentType: cfg.ContentType,
		JSON:        cfg.JSON,
		Credentials: cfg.Credentials,
		Cache:       cfg.Cache,
		Timeout:     cfg.Timeout,
		Progress:    cfg.Progress,
	}
}
