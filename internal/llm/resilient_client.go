package llm

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/changesmith/internal/retry"
)

// ResilientClient wraps a Client with a rate limiter and retry logic. The
// limiter smooths bursts of completion calls across conversations; the
// retry loop absorbs transient 429/5xx/timeout failures.
type ResilientClient struct {
	inner       Client
	retryConfig retry.RetryConfig
	limiter     *rate.Limiter
}

// NewResilientClient wraps client. perSecond and burst configure the rate
// limiter; perSecond <= 0 disables it.
func NewResilientClient(client Client, config retry.RetryConfig, perSecond, burst int) *ResilientClient {
	var limiter *rate.Limiter
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &ResilientClient{
		inner:       client,
		retryConfig: config,
		limiter:     limiter,
	}
}

// Complete waits for a limiter slot, then runs the inner call under the
// retry policy. Non-retryable errors fail immediately; any terminal failure
// comes back as an ExternalServiceError.
func (c *ResilientClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &ExternalServiceError{Service: "completion", Err: err}
		}
	}

	var resp Response
	result := retry.RetryWithBackoff(ctx, c.retryConfig, func() error {
		var err error
		resp, err = c.inner.Complete(ctx, req)
		return err
	})

	if !result.Success {
		return Response{}, &ExternalServiceError{Service: "completion", Err: result.LastError}
	}

	log.Debug().
		Int("attempts", result.Attempts).
		Bool("truncated", resp.Truncated).
		Int("response_tokens", EstimateTokens(resp.Text)).
		Msg("completion call finished")

	return resp, nil
}
