package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saunafreunde/internal/models"
)

// ErrUndeliverable means Telegram refused the message for good (bot blocked, bad chat).
var ErrUndeliverable = errors.New("reminder undeliverable")

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// TelegramError represents an error from Telegram API.
type TelegramError struct {
	Code       int
	Message    string
	RetryAfter int // seconds to wait before retrying (for 429 errors)
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsTelegramError checks if the error is a TelegramError.
func IsTelegramError(err error) (*TelegramError, bool) {
	var tgErr *TelegramError
	if errors.As(err, &tgErr) {
		return tgErr, true
	}
	return nil, false
}

// Sender delivers single reminders with rate limiting and retries.
type Sender struct {
	notifier    Notifier
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	metrics     *Metrics
	logger      Logger
}

// SenderConfig holds configuration for the sender.
type SenderConfig struct {
	RateLimiter RateLimiterConfig
	Retry       RetryConfig
}

// DefaultSenderConfig returns the default configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		RateLimiter: DefaultRateLimiterConfig(),
		Retry:       DefaultRetryConfig(),
	}
}

// NewSender creates a new reminder sender. metrics may be nil.
func NewSender(notifier Notifier, config SenderConfig, metrics *Metrics, logger Logger) *Sender {
	return &Sender{
		notifier:    notifier,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		retryConfig: config.Retry,
		metrics:     metrics,
		logger:      logger,
	}
}

// Send delivers the reminder. It returns ErrUndeliverable when retrying cannot help
// and the last error once retries are exhausted.
func (s *Sender) Send(ctx context.Context, chatID int64, claim *models.AufgussClaim) error {
	waited, err := s.rateLimiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if waited {
		s.metrics.IncRateLimitWaits()
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		start := time.Now()
		err := s.notifier.SendReminder(ctx, chatID, claim)
		s.metrics.ObserveSendDuration(time.Since(start).Seconds())
		if err == nil {
			s.metrics.IncSent("sent")
			return nil
		}
		lastErr = err

		wait := s.retryConfig.delay(attempt)
		if tgErr, ok := IsTelegramError(err); ok {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				s.logger.Info("rate limited by Telegram, waiting",
					"retry_after", wait,
					"attempt", attempt,
					"claim_id", claim.ID)
			case 403, 400:
				s.logger.Info("reminder undeliverable",
					"code", tgErr.Code,
					"user_id", claim.ClaimedBy,
					"claim_id", claim.ID)
				s.metrics.IncSent("undeliverable")
				return fmt.Errorf("%w: %v", ErrUndeliverable, err)
			}
		}

		if attempt == s.retryConfig.MaxRetries {
			break
		}
		s.metrics.IncRetries()
		s.logger.Debug("retrying reminder send",
			"attempt", attempt+1,
			"max_retries", s.retryConfig.MaxRetries,
			"delay", wait,
			"error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Error("max retries exceeded for reminder",
		"claim_id", claim.ID,
		"user_id", claim.ClaimedBy,
		"error", lastErr)
	s.metrics.IncSent("failed")
	return lastErr
}
