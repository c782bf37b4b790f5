package courier

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabriellee58/courier/internal/backoff"
)

// Option represents a pipeline configuration option.
type Option func(*Pipeline)

// WithBaseURL sets the base URL prepended to relative request URLs.
func WithBaseURL(base string) Option {
	return func(p *Pipeline) {
		p.baseURL = base
	}
}

// WithDefaults applies call options to the pipeline's default
// RequestConfig. Per-call options override these key-by-key.
func WithDefaults(opts ...CallOption) Option {
	return func(p *Pipeline) {
		for _, opt := range opts {
			opt(p.defaults)
		}
	}
}

// WithTransport sets a custom transport collaborator, replacing the stock
// cookie-jar clients for every credentials mode.
func WithTransport(t Transport) Option {
	return func(p *Pipeline) {
		p.transport = t
	}
}

// WithBroadcaster shares an existing auth-failure broadcaster instead of
// the pipeline's own.
func WithBroadcaster(b *Broadcaster) Option {
	return func(p *Pipeline) {
		p.broadcaster = b
	}
}

// WithRetryCondition sets a custom retry condition, e.g.
// RetryIdempotentOnly to avoid replaying non-idempotent methods.
func WithRetryCondition(fn RetryCondition) Option {
	return func(p *Pipeline) {
		p.retryCondition = fn
	}
}

// WithConstantDelay waits exactly the configured RetryDelay between
// attempts. This is the default.
func WithConstantDelay() Option {
	return func(p *Pipeline) {
		p.backoffCalc = backoff.GetConstantCalculator()
	}
}

// WithExponentialDelay grows the wait exponentially from the configured
// RetryDelay with uniform jitter, capped at maxDelay.
func WithExponentialDelay(maxDelay time.Duration, multiplier, jitter float64) Option {
	return func(p *Pipeline) {
		p.backoffCalc = backoff.GetExponentialJitterCalculator()
		p.maxDelay = maxDelay
		p.delayMultiplier = multiplier
		p.delayJitter = jitter
	}
}

// WithDecorrelatedDelay applies AWS-style decorrelated jitter starting from
// the configured RetryDelay, capped at maxDelay.
func WithDecorrelatedDelay(maxDelay time.Duration) Option {
	return func(p *Pipeline) {
		p.backoffCalc = backoff.GetDecorrelatedJitterCalculator()
		p.maxDelay = maxDelay
	}
}

// WithCache enables response caching with the default in-memory cache.
func WithCache(ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = NewMemoryCache()
		p.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = cache
		p.cacheTTL = ttl
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn func(*Request) string) Option {
	return func(p *Pipeline) {
		p.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cache condition function.
func WithCacheCondition(fn CacheCondition) Option {
	return func(p *Pipeline) {
		p.cacheCondition = fn
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(p *Pipeline) {
		p.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(p *Pipeline) {
		p.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(p *Pipeline) {
		p.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.Enabled = true
		p.logger = NewSimpleLogger()
	}
}

// WithZerolog routes debug output through a zerolog logger.
func WithZerolog(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = NewZerologLogger(logger)
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if p.debug == nil {
			p.debug = DefaultDebugConfig()
		}
		p.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the pipeline configuration and returns an
// error if invalid.
func (p *Pipeline) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, p.validateDefaults()...)
	errs = append(errs, p.validateBaseURL()...)
	errs = append(errs, p.validateDelayConfig()...)
	errs = append(errs, p.validateCacheConfig()...)
	errs = append(errs, p.validateDebugConfig()...)
	errs = append(errs, p.validateExtremeValues()...)

	if len(errs) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

// validateDefaults validates the default request configuration.
func (p *Pipeline) validateDefaults() []string {
	var errs []string

	if p.defaults == nil {
		return []string{"default request config cannot be nil"}
	}

	if !p.defaults.Method.valid() {
		errs = append(errs, fmt.Sprintf("default method %q is not supported", string(p.defaults.Method)))
	}

	if p.defaults.MaxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}

	if p.defaults.RetryDelay < 0 {
		errs = append(errs, "retryDelay must be non-negative")
	}

	if p.defaults.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	return errs
}

// validateBaseURL validates the configured base URL.
func (p *Pipeline) validateBaseURL() []string {
	var errs []string

	if p.baseURL == "" {
		return errs
	}

	u, err := url.Parse(p.baseURL)
	if err != nil {
		errs = append(errs, fmt.Sprintf("base URL is malformed: %v", err))
	} else if !u.IsAbs() {
		errs = append(errs, "base URL must be absolute")
	}

	return errs
}

// validateDelayConfig validates the retry delay strategy parameters.
func (p *Pipeline) validateDelayConfig() []string {
	var errs []string

	if p.backoffCalc == nil {
		errs = append(errs, "delay calculator cannot be nil")
	}

	if p.maxDelay < 0 {
		errs = append(errs, "maxDelay must be non-negative")
	}

	if p.delayMultiplier <= 0 {
		errs = append(errs, "delayMultiplier must be positive")
	}

	if p.delayJitter < 0 || p.delayJitter > 1 {
		errs = append(errs, "delayJitter must be between 0 and 1")
	}

	if p.retryCondition == nil {
		errs = append(errs, "retryCondition cannot be nil")
	}

	return errs
}

// validateCacheConfig validates cache configuration.
func (p *Pipeline) validateCacheConfig() []string {
	var errs []string

	if p.cache != nil {
		if p.cacheTTL <= 0 {
			errs = append(errs, "cacheTTL must be positive when cache is enabled")
		}
		if p.cacheKeyFunc == nil {
			errs = append(errs, "cache key function must be set when cache is enabled")
		}
		if p.cacheCondition == nil {
			errs = append(errs, "cache condition must be set when cache is enabled")
		}
	}

	return errs
}

// validateDebugConfig validates debug configuration.
func (p *Pipeline) validateDebugConfig() []string {
	var errs []string

	if p.debug != nil && p.debug.Enabled {
		if p.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if p.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

// validateExtremeValues validates that configuration values are within reasonable bounds.
func (p *Pipeline) validateExtremeValues() []string {
	var errs []string

	if p.defaults == nil {
		return errs
	}

	if p.defaults.MaxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}

	if p.defaults.RetryDelay > 10*time.Minute {
		errs = append(errs, "retryDelay > 10m may cause very long delays")
	}

	if p.maxDelay > 1*time.Hour {
		errs = append(errs, "maxDelay > 1h may cause extremely long delays")
	}

	if p.defaults.Timeout > 10*time.Minute {
		errs = append(errs, "timeout > 10m may cause requests to hang for too long")
	}

	if p.cache != nil && p.cacheTTL > 24*time.Hour {
		errs = append(errs, "cacheTTL > 24h may cause stale data issues")
	}

	return errs
}
