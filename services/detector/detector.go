// Package detector inspects requests for automated clients and attack
// payloads. Detectors report signals; the throttle turns them into verdicts.
package detector

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrSaturated is returned when a detector sheds load instead of inspecting.
// Callers treat it as "no verdict".
var ErrSaturated = errors.New("detector saturated")

// Signal is what a detector concluded about one request
type Signal struct {
	Bot      bool   `json:"bot"`
	Shielded bool   `json:"shielded"`
	Reason   string `json:"reason,omitempty"`
}

// Flagged reports whether the signal carries any denial
func (s Signal) Flagged() bool {
	return s.Bot || s.Shielded
}

// Detector inspects a request. An error means no verdict was reached.
type Detector interface {
	Inspect(ctx context.Context, r *http.Request) (Signal, error)
}

// Noop never flags anything
type Noop struct{}

// Inspect implements Detector
func (Noop) Inspect(context.Context, *http.Request) (Signal, error) {
	return Signal{}, nil
}

// Chain runs detectors in order and merges their signals. It stops early
// once a shield signal is seen. Errors from individual detectors are joined
// and returned alongside whatever signal the others produced.
type Chain []Detector

// Inspect implements Detector
func (c Chain) Inspect(ctx context.Context, r *http.Request) (Signal, error) {
	var merged Signal
	var reasons []string
	var errs []error

	for _, d := range c {
		sig, err := d.Inspect(ctx, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged.Bot = merged.Bot || sig.Bot
		merged.Shielded = merged.Shielded || sig.Shielded
		if sig.Reason != "" {
			reasons = append(reasons, sig.Reason)
		}
		if merged.Shielded {
			break
		}
	}

	merged.Reason = strings.Join(reasons, "; ")
	return merged, errors.Join(errs...)
}
