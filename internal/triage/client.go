// Package triage turns a canonical email into a validated triage decision by
// prompting a model gateway under a bounded retry policy.
package triage

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/llm"
	"github.com/daviddao/mailtriage/internal/types"
)

// Defaults for Options.
const (
	DefaultMaxRetries   = 2
	DefaultShrinkBodyTo = 1200
	Temperature         = 0.2
)

// Attempt outcome labels reported through Hooks.OnAttempt.
const (
	OutcomeOK              = "ok"
	OutcomeParseError      = "parse_error"
	OutcomeValidationError = "validation_error"
	OutcomeGatewayError    = "gateway_error"
)

// Options configures a Client.
type Options struct {
	Model       string
	LabelPrefix string
	// MaxRetries is the number of attempts after the first. Negative means 0.
	MaxRetries int
	// ShrinkBodyTo is the body length in runes used after a parse or
	// validation failure. Zero selects DefaultShrinkBodyTo.
	ShrinkBodyTo int
}

// DefaultOptions returns Options with the standard retry policy.
func DefaultOptions(model, labelPrefix string) Options {
	return Options{
		Model:        model,
		LabelPrefix:  labelPrefix,
		MaxRetries:   DefaultMaxRetries,
		ShrinkBodyTo: DefaultShrinkBodyTo,
	}
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnAttempt  func(outcome string, duration float64)
	OnComplete func(status string, attempts int)
}

// Client produces triage decisions for emails.
type Client struct {
	gw     llm.Gateway
	opts   Options
	logger *zap.Logger
	hooks  Hooks
}

// NewClient creates a Client. A nil logger is replaced with a no-op logger.
func NewClient(gw llm.Gateway, opts Options, logger *zap.Logger, hooks Hooks) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ShrinkBodyTo <= 0 {
		opts.ShrinkBodyTo = DefaultShrinkBodyTo
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gw: gw, opts: opts, logger: logger, hooks: hooks}
}

// Triage returns the model's validated decision for email. The caller's email
// is never modified; retries work on a copy whose body may be shortened.
// On exhaustion it returns a *FailedError.
func (c *Client) Triage(ctx context.Context, email types.Email) (types.Decision, error) {
	log := c.logger.With(zap.String("email_id", email.ID), zap.String("model", c.opts.Model))

	attempt := 0
	out := Retry(ctx, c.opts.MaxRetries+1, email,
		func(ctx context.Context, e types.Email) (types.Decision, error) {
			attempt++
			return c.attempt(ctx, log.With(zap.Int("attempt", attempt)), e)
		},
		c.next,
	)

	if out.OK() {
		c.complete(types.StatusOK, out.Attempts)
		return out.Value, nil
	}

	c.complete(types.StatusFailed, out.Attempts)
	if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
		return types.Decision{}, out.Err
	}
	log.Warn("triage failed", zap.Int("attempts", out.Attempts), zap.Error(out.Err))
	return types.Decision{}, &FailedError{Attempts: out.Attempts, Last: out.Err}
}

func (c *Client) attempt(ctx context.Context, log *zap.Logger, e types.Email) (types.Decision, error) {
	prompt := BuildPrompt(e, c.opts.LabelPrefix)

	start := time.Now()
	raw, err := c.gw.Chat(ctx, c.opts.Model, prompt.Messages(), Temperature)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.attempted(OutcomeGatewayError, elapsed)
		log.Warn("model call failed", zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Decision{}, ctxErr
		}
		return types.Decision{}, &GatewayError{Model: c.opts.Model, Err: err}
	}

	d, err := ParseDecision(raw)
	switch {
	case err == nil:
		c.attempted(OutcomeOK, elapsed)
		log.Debug("decision parsed", zap.String("category", string(d.Category)))
	case errors.Is(err, ErrValidation):
		c.attempted(OutcomeValidationError, elapsed)
		log.Info("invalid model response", zap.Error(err))
	default:
		c.attempted(OutcomeParseError, elapsed)
		log.Info("unparseable model response", zap.Error(err))
	}
	return d, err
}

// next shrinks the body only when the failure was in the model's output.
func (c *Client) next(e types.Email, err error) types.Email {
	if !retryable(err) {
		return e
	}
	return e.WithBody(shrink(e.Body, c.opts.ShrinkBodyTo))
}

func shrink(body string, n int) string {
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	return string([]rune(body)[:n])
}

func (c *Client) attempted(outcome string, duration float64) {
	if c.hooks.OnAttempt != nil {
		c.hooks.OnAttempt(outcome, duration)
	}
}

func (c *Client) complete(status string, attempts int) {
	if c.hooks.OnComplete != nil {
		c.hooks.OnComplete(status, attempts)
	}
}
