package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go/middleware"
	"golang.org/x/time/rate"
)

// DefaultMaxAttempts bounds SDK retries for throttled or transient failures.
const DefaultMaxAttempts = 5

// WithStandardRetry returns a copy of cfg using the SDK standard retryer with
// maxAttempts attempts per call.
func WithStandardRetry(cfg aws.Config, maxAttempts int) aws.Config {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	cfg.Retryer = func() aws.Retryer {
		return retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts)
	}
	return cfg
}

// WithRateLimit returns a copy of cfg whose clients wait on lim before every
// API call. All clients built from the returned config share the limiter.
func WithRateLimit(cfg aws.Config, lim *rate.Limiter) aws.Config {
	if lim == nil {
		return cfg
	}
	opts := make([]func(*middleware.Stack) error, 0, len(cfg.APIOptions)+1)
	opts = append(opts, cfg.APIOptions...)
	opts = append(opts, func(stack *middleware.Stack) error {
		return stack.Initialize.Add(rateLimitMiddleware(lim), middleware.Before)
	})
	cfg.APIOptions = opts
	return cfg
}

func rateLimitMiddleware(lim *rate.Limiter) middleware.InitializeMiddleware {
	return middleware.InitializeMiddlewareFunc("CloudDoctorRateLimit", func(
		ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler,
	) (middleware.InitializeOutput, middleware.Metadata, error) {
		if err := lim.Wait(ctx); err != nil {
			return middleware.InitializeOutput{}, middleware.Metadata{}, err
		}
		return next.HandleInitialize(ctx, in)
	})
}
