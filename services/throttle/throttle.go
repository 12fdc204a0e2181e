// Package throttle decides whether a request may proceed, before any
// identity work happens. Detector signals are checked first and outrank the
// rate limiter: a request flagged as shield or bot is denied as such and
// never consumes quota.
package throttle

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/services/detector"
	"github.com/upb/acquisitions-api/services/ratelimit"
	"go.uber.org/zap"
)

// Subject identifies whose window a request counts against
type Subject struct {
	Key  string
	Role models.Role
}

// Decision is the outcome of Evaluate
type Decision struct {
	Verdict Verdict
	Reason  string
	// Rate is set when the limiter ran
	Rate *ratelimit.Result
}

// Options holds the failure policy
type Options struct {
	// DetectorFailClosed answers detector failures with ErrUpstreamUnavailable
	// instead of allowing the request through.
	DetectorFailClosed bool
	// LimiterFailClosed does the same for rate store failures.
	LimiterFailClosed bool
}

// Throttle combines a detector and a limiter
type Throttle struct {
	detector detector.Detector
	limiter  *ratelimit.Limiter
	stats    Stats
	opts     Options
	logger   *zap.Logger
}

// New creates a throttle. A nil detector inspects nothing; a nil stats
// recorder records nothing.
func New(det detector.Detector, limiter *ratelimit.Limiter, stats Stats, opts Options, logger *zap.Logger) *Throttle {
	if det == nil {
		det = detector.Noop{}
	}
	if stats == nil {
		stats = nopStats{}
	}
	return &Throttle{
		detector: det,
		limiter:  limiter,
		stats:    stats,
		opts:     opts,
		logger:   logger,
	}
}

// Evaluate decides one request. An error is returned only when a failing
// collaborator is configured to fail closed.
func (t *Throttle) Evaluate(ctx context.Context, r *http.Request, subject Subject) (Decision, error) {
	sig, err := t.detector.Inspect(ctx, r)
	if err != nil && !sig.Flagged() {
		if t.opts.DetectorFailClosed {
			t.logger.Error("detector unavailable, failing closed",
				zap.String("subject", subject.Key),
				zap.Error(err))
			return Decision{}, services.ErrUpstreamUnavailable.Wrap(err)
		}
		if errors.Is(err, detector.ErrSaturated) {
			t.logger.Debug("detector saturated, no verdict", zap.String("subject", subject.Key))
		} else {
			t.logger.Warn("detector unavailable, failing open",
				zap.String("subject", subject.Key),
				zap.Error(err))
		}
	}

	switch {
	case sig.Shielded:
		return t.decide(ctx, subject, Decision{Verdict: DenyShield, Reason: sig.Reason}), nil
	case sig.Bot:
		return t.decide(ctx, subject, Decision{Verdict: DenyBot, Reason: sig.Reason}), nil
	}

	res, err := t.limiter.Check(ctx, subject.Key, subject.Role)
	if err != nil {
		if t.opts.LimiterFailClosed {
			t.logger.Error("rate limit store unavailable, failing closed",
				zap.String("subject", subject.Key),
				zap.Error(err))
			return Decision{}, services.ErrUpstreamUnavailable.Wrap(err)
		}
		t.logger.Warn("rate limit store unavailable, failing open",
			zap.String("subject", subject.Key),
			zap.Error(err))
		return t.decide(ctx, subject, Decision{Verdict: Allow}), nil
	}

	d := Decision{Verdict: Allow, Rate: &res}
	if !res.Allowed {
		d.Verdict = DenyRate
		d.Reason = "quota exhausted"
	}
	return t.decide(ctx, subject, d), nil
}

func (t *Throttle) decide(ctx context.Context, subject Subject, d Decision) Decision {
	if d.Verdict.Denied() {
		t.logger.Info("request throttled",
			zap.String("verdict", d.Verdict.String()),
			zap.String("subject", subject.Key),
			zap.String("tier", subject.Role.String()),
			zap.String("reason", d.Reason))
	}
	t.stats.Record(ctx, d.Verdict)
	return d
}

// Limiter returns the underlying limiter
func (t *Throttle) Limiter() *ratelimit.Limiter {
	return t.limiter
}

// Stats returns the verdict recorder
func (t *Throttle) Stats() Stats {
	return t.stats
}
