package courier

import (
	"net/http"
	"testing"
	"time"
)

func TestMethodValid(t *testing.T) {
	valid := []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete}
	for _, m := range valid {
		if !m.valid() {
			t.Errorf("Expected %s to be valid", m)
		}
	}

	invalid := []Method{"", "TRACE", "HEAD", "OPTIONS", "get"}
	for _, m := range invalid {
		if m.valid() {
			t.Errorf("Expected %q to be rejected", string(m))
		}
	}
}

func TestMethodIdempotent(t *testing.T) {
	tests := []struct {
		method Method
		want   bool
	}{
		{MethodGet, true},
		{MethodPut, true},
		{MethodDelete, true},
		{MethodPost, false},
		{MethodPatch, false},
	}

	for _, test := range tests {
		if got := test.method.idempotent(); got != test.want {
			t.Errorf("%s.idempotent() = %v, want %v", test.method, got, test.want)
		}
	}
}

func TestCredentialsModeString(t *testing.T) {
	if CredentialsInclude.String() != "include" {
		t.Errorf("Expected include, got %s", CredentialsInclude)
	}
	if CredentialsOmit.String() != "omit" {
		t.Errorf("Expected omit, got %s", CredentialsOmit)
	}
}

func TestCacheModeString(t *testing.T) {
	tests := []struct {
		mode CacheMode
		want string
	}{
		{CacheModeDefault, "default"},
		{CacheModeNoStore, "no-store"},
		{CacheModeReload, "reload"},
		{CacheModeForce, "force"},
	}

	for _, test := range tests {
		if got := test.mode.String(); got != test.want {
			t.Errorf("CacheMode(%d).String() = %q, want %q", int(test.mode), got, test.want)
		}
	}
}

func TestDefaultRequestConfig(t *testing.T) {
	cfg := defaultRequestConfig()

	if cfg.Method != MethodGet {
		t.Errorf("Expected default method GET, got %s", cfg.Method)
	}
	if cfg.Credentials != CredentialsInclude {
		t.Errorf("Expected default credentials include, got %s", cfg.Credentials)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected default maxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 100*time.Millisecond {
		t.Errorf("Expected default retryDelay 100ms, got %v", cfg.RetryDelay)
	}
	if cfg.Header == nil {
		t.Error("Expected non-nil default header map")
	}
	if cfg.Cache != CacheModeDefault {
		t.Errorf("Expected default cache mode, got %s", cfg.Cache)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := defaultRequestConfig()
	original.Header.Set("X-Tenant", "default")
	original.Body = []byte("payload")

	clone := original.clone()
	clone.Header.Set("X-Tenant", "other")
	clone.Header.Set("X-New", "yes")
	clone.Body[0] = 'q'
	clone.MaxRetries = 99

	if original.Header.Get("X-Tenant") != "default" {
		t.Error("Expected clone header mutation not to leak into the original")
	}
	if original.Header.Get("X-New") != "" {
		t.Error("Expected new clone header not to appear in the original")
	}
	if string(original.Body) != "payload" {
		t.Error("Expected clone body mutation not to leak into the original")
	}
	if original.MaxRetries != 3 {
		t.Error("Expected clone scalar mutation not to leak into the original")
	}
}

func TestCloneNilHeader(t *testing.T) {
	cfg := &RequestConfig{Method: MethodGet}
	clone := cfg.clone()

	if clone.Header == nil {
		t.Error("Expected clone to allocate a header map")
	}
}

func TestCallOptions(t *testing.T) {
	cfg := defaultRequestConfig()

	opts := []CallOption{
		WithMethod(MethodPatch),
		WithHeader("Authorization", "Bearer tok"),
		WithTimeout(5 * time.Second),
		WithMaxRetries(7),
		WithRetryDelay(time.Second),
		WithCredentials(CredentialsOmit),
		WithCacheMode(CacheModeNoStore),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Method != MethodPatch {
		t.Errorf("Expected PATCH, got %s", cfg.Method)
	}
	if cfg.Header.Get("Authorization") != "Bearer tok" {
		t.Error("Expected header to be set")
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("Expected maxRetries 7, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("Expected retryDelay 1s, got %v", cfg.RetryDelay)
	}
	if cfg.Credentials != CredentialsOmit {
		t.Errorf("Expected credentials omit, got %s", cfg.Credentials)
	}
	if cfg.Cache != CacheModeNoStore {
		t.Errorf("Expected cache no-store, got %s", cfg.Cache)
	}
}

func TestWithHeadersMerges(t *testing.T) {
	cfg := defaultRequestConfig()
	cfg.Header.Set("X-Tenant", "default")
	cfg.Header.Set("X-Trace", "on")

	WithHeaders(http.Header{
		"X-Tenant": {"acme"},
		"Accept":   {"application/json", "text/plain"},
	})(cfg)

	if got := cfg.Header.Get("X-Tenant"); got != "acme" {
		t.Errorf("Expected merged header to replace the default, got %q", got)
	}
	if got := cfg.Header.Get("X-Trace"); got != "on" {
		t.Errorf("Expected untouched default to survive, got %q", got)
	}
	if got := cfg.Header.Values("Accept"); len(got) != 2 {
		t.Errorf("Expected both Accept values, got %v", got)
	}
}

func TestBodyOptionsAreMutuallyExclusive(t *testing.T) {
	cfg := defaultRequestConfig()

	WithJSON(map[string]int{"id": 1})(cfg)
	if cfg.JSON == nil || cfg.Body != nil {
		t.Error("Expected WithJSON to clear raw bytes")
	}

	WithBytes("text/plain", []byte("raw"))(cfg)
	if cfg.JSON != nil || string(cfg.Body) != "raw" || cfg.ContentType != "text/plain" {
		t.Error("Expected WithBytes to clear the JSON payload and set content type")
	}

	WithJSON(map[string]int{"id": 2})(cfg)
	if cfg.Body != nil || cfg.ContentType != "" {
		t.Error("Expected WithJSON to clear bytes and content type again")
	}
}
