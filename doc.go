// Package courier provides a resilient outbound request pipeline through which
// client-to-server calls are funneled:
//
//   - Per-attempt timeouts with automatic retry on a fixed or growing delay
//   - Three interceptor chains (request, response, error) with de-registration handles
//   - Content-type driven decoding into a closed JSON / text / binary variant
//   - A single structured error shape with an auth-failure flag derived from the status
//   - Process-wide broadcast of authentication failures (session-expiry handling)
//   - In-memory response caching honoring a per-call cache directive
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - One pipeline instance owns its chains and defaults; no package-level mutable state
//   - Safe concurrent use of a single *Pipeline instance
//   - Extensibility via interceptors & pluggable transport / cache / metrics / logger
//
// Typical usage:
//
//	pipeline := courier.New(
//	    courier.WithBaseURL("https://api.example.com"),
//	    courier.WithDefaults(
//	        courier.WithTimeout(10*time.Second),
//	        courier.WithMaxRetries(2),
//	        courier.WithRetryDelay(200*time.Millisecond),
//	    ),
//	    courier.WithCache(time.Minute),
//	)
//	resp, err := pipeline.Get(ctx, "/api/widgets")
//
// Every failure surfaces as a *courier.Error carrying the status code, status
// text, the decoded error body and an IsAuthError flag; auth failures are
// additionally broadcast to OnAuthFailure subscribers before propagating.
// Request interceptors re-run on every retry attempt so they can inject fresh
// tokens or timestamps per try.
package courier
