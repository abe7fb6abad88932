package pipeline

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// retryer wraps external calls in bounded retry with exponential backoff.
// Only transient failures are retried; the total number of retries consumed
// across a run is recorded onto the submission as retry_count.
type retryer struct {
	max     int
	base    time.Duration
	sleep   func(time.Duration)
	logger  zerolog.Logger
	retries int
}

func newRetryer(max int, base time.Duration, logger zerolog.Logger) *retryer {
	if base <= 0 {
		base = time.Second
	}

	return &retryer{
		max:    max,
		base:   base,
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Do runs fn, retrying transient failures up to the configured attempt budget.
func (r *retryer) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if attempt >= r.max || !isTransient(err) {
			return err
		}

		if ctx.Err() != nil {
			return err
		}

		delay := r.base << attempt
		r.retries++
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("transient failure, retrying")
		r.sleep(delay)
	}
}

// Retries reports how many retries have been consumed so far.
func (r *retryer) Retries() int { return r.retries }

// isTransient classifies timeouts, rate limits, and server-side model errors
// as retryable. Contract violations (parse or schema failures) are not.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	return false
}
