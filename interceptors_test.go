package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
)

func TestRequestInterceptorMutationScopedToAttempt(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("X-Attempt"); got != "1" {
			t.Errorf("Expected exactly one interceptor application per attempt, got %q", got)
		}
		if call == 1 {
			return nil, fmt.Errorf("connection reset")
		}
		return jsonResponseText(http.StatusOK, widgetBody), nil
	}}

	p := New(WithTransport(transport))
	p.OnRequest(func(ctx context.Context, req *Request) error {
		req.Header.Add("X-Attempt", "1")
		return nil
	})

	if _, err := p.Get(context.Background(), "https://api.example.com/x",
		WithMaxRetries(1), WithRetryDelay(0)); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
}

func TestRequestInterceptorRewritesURL(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		return jsonResponseText(http.StatusOK, widgetBody), nil
	}}

	p := New(WithTransport(transport))
	p.OnRequest(func(ctx context.Context, req *Request) error {
		rewritten, err := url.Parse("https://mirror.example.com" + req.URL.Path)
		if err != nil {
			return err
		}
		req.URL = rewritten
		return nil
	})

	if _, err := p.Get(context.Background(), "https://api.example.com/widgets", WithMaxRetries(0)); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	if got := transport.lastRequest().URL.Host; got != "mirror.example.com" {
		t.Errorf("Expected rewritten host, got %q", got)
	}
}

func TestRequestInterceptorFailureRoutedThroughErrorChain(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		return jsonResponseText(http.StatusOK, widgetBody), nil
	}}

	p := New(WithTransport(transport))
	p.OnRequest(func(ctx context.Context, req *Request) error {
		return fmt.Errorf("token refresh failed")
	})

	var chainSaw *Error
	p.OnError(func(ctx context.Context, err *Error) (*Response, error) {
		chainSaw = err
		return nil, nil
	})

	_, err := p.Get(context.Background(), "https://api.example.com/x", WithMaxRetries(0))
	if err == nil {
		t.Fatal("Expected error from request interceptor")
	}
	if chainSaw == nil {
		t.Fatal("Expected error chain to observe the interceptor failure")
	}
	if transport.callCount() != 0 {
		t.Error("Expected no transport call after interceptor abort")
	}
}

func TestResponseInterceptorFailureAbortsAttempt(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		return jsonResponseText(http.StatusOK, widgetBody), nil
	}}

	p := New(WithTransport(transport))
	p.OnResponse(func(ctx context.Context, resp *Response) error {
		return fmt.Errorf("signature check failed")
	})

	_, err := p.Get(context.Background(), "https://api.example.com/x",
		WithMaxRetries(1), WithRetryDelay(0))
	if err == nil {
		t.Fatal("Expected error from response interceptor")
	}
	if got := transport.callCount(); got != 2 {
		t.Errorf(expectedCallsMsg, 2, got)
	}
}

func TestErrorInterceptorReturningPipelineError(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		return jsonResponseText(http.StatusBadRequest, ""), nil
	}}

	replacement := &Error{Type: ErrorTypeHTTP, Message: "rewritten", StatusCode: http.StatusTeapot}

	p := New(WithTransport(transport))
	p.OnError(func(ctx context.Context, err *Error) (*Response, error) {
		return nil, replacement
	})

	_, err := p.Get(context.Background(), "https://api.example.com/x", WithMaxRetries(0))

	e, ok := AsError(err)
	if !ok {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if e != replacement {
		t.Errorf("Expected the replacement error to propagate, got %v", e)
	}
}

func TestChainSnapshotAllowsConcurrentMutation(t *testing.T) {
	transport := &scriptedTransport{fn: func(call int, req *http.Request) (*http.Response, error) {
		return jsonResponseText(http.StatusOK, widgetBody), nil
	}}

	p := New(WithTransport(transport))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			remove := p.OnRequest(func(ctx context.Context, req *Request) error { return nil })
			remove()
		}
	}()

	for i := 0; i < 50; i++ {
		if _, err := p.Get(context.Background(), "https://api.example.com/x", WithMaxRetries(0)); err != nil {
			t.Fatalf(unexpectedErrMsg, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestNewAttemptRequestCopies(t *testing.T) {
	target, _ := url.Parse("https://api.example.com/widgets")
	cfg := defaultRequestConfig()
	cfg.Header.Set("X-Tenant", "default")

	req := newAttemptRequest(target, cfg)
	req.Header.Set("X-Tenant", "other")
	req.URL.Path = "/rewritten"

	if cfg.Header.Get("X-Tenant") != "default" {
		t.Error("Expected attempt header mutation not to leak into the config")
	}
	if target.Path != "/widgets" {
		t.Error("Expected attempt URL mutation not to leak into the resolved target")
	}
}
