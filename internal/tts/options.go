package tts

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/alnah/go-subvoice/internal/apierr"
)

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// commandRunner runs a program with stdin and returns its stdout.
type commandRunner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// options are shared by every backend constructor.
type options struct {
	retry      apierr.RetryConfig
	limiter    *rate.Limiter
	logger     *log.Logger
	httpClient httpDoer
	run        commandRunner

	startServer  serverStarter
	pollInterval time.Duration
}

// Option configures a backend.
type Option func(*options)

// WithRetry sets transport retry parameters for transient failures.
func WithRetry(maxRetries int, base, maxDelay time.Duration) Option {
	return func(o *options) {
		if maxRetries >= 0 {
			o.retry.MaxRetries = maxRetries
		}
		if base > 0 {
			o.retry.BaseDelay = base
		}
		if maxDelay > 0 {
			o.retry.MaxDelay = maxDelay
		}
	}
}

// WithRateLimit caps requests per second. Zero or negative disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			o.limiter = nil
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used by HTTP backends.
func WithHTTPClient(c httpDoer) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		retry: apierr.RetryConfig{
			MaxRetries: defaultMaxRetries,
			BaseDelay:  defaultBaseDelay,
			MaxDelay:   defaultMaxDelay,
		},
		logger:     log.New(io.Discard),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		run:        runCommand,

		startServer:  startProcess,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// wait blocks until the rate limiter admits one request.
func (o *options) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// retryConfig returns the retry settings with logging attached.
func (o *options) retryConfig(backend string) apierr.RetryConfig {
	cfg := o.retry
	cfg.OnRetry = func(retry int, err error, delay time.Duration) {
		o.logger.Info("retrying request", "backend", backend, "retry", retry, "delay", delay, "err", err)
	}
	return cfg
}
