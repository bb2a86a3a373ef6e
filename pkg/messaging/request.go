package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/nats-io/nats.go"
)

const DefaultRequestTimeout = 3 * time.Second

// Requester sends a request and waits for the single reply.
type Requester interface {
	Request(ctx context.Context, topic string, data []byte) ([]byte, error)
}

type RetryConfig struct {
	RetryAttempt       uint
	ExponentialBackoff bool
	Delay              time.Duration
	Timeout            time.Duration
	OnRetry            func(n uint, err error)
}

// DefaultRetryConfig retries three times with a short fixed delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		RetryAttempt: 3,
		Delay:        50 * time.Millisecond,
		Timeout:      DefaultRequestTimeout,
	}
}

type natsRequester struct {
	natsConn *nats.Conn
	config   RetryConfig
}

func NewNATSRequester(natsConn *nats.Conn, config RetryConfig) Requester {
	if config.Timeout <= 0 {
		config.Timeout = DefaultRequestTimeout
	}
	return &natsRequester{natsConn: natsConn, config: config}
}

func (r *natsRequester) Request(ctx context.Context, topic string, data []byte) ([]byte, error) {
	var reply []byte
	err := retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()

			msg, err := r.natsConn.RequestWithContext(reqCtx, topic, data)
			if err != nil {
				return err
			}
			reply = msg.Data
			return nil
		},
		retryOptions(ctx, topic, r.config)...,
	)
	return reply, err
}

func retryOptions(ctx context.Context, topic string, config RetryConfig) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.MaxJitter(20 * time.Millisecond),
	}

	if config.RetryAttempt > 0 {
		opts = append(opts, retry.Attempts(config.RetryAttempt))
	}
	if config.ExponentialBackoff {
		opts = append(opts, retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)))
	} else {
		opts = append(opts, retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)))
	}
	if config.Delay > 0 {
		opts = append(opts, retry.Delay(config.Delay))
	}

	onRetry := config.OnRetry
	if onRetry == nil {
		onRetry = func(n uint, err error) {
			logger.Warn("Request failed, retrying", "attempt", n+1, "topic", topic, "error", err.Error())
		}
	}
	opts = append(opts, retry.OnRetry(onRetry))
	return opts
}

// isRetryable reports transport failures worth another attempt. A caller
// canceling its context is not one of them.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
}
