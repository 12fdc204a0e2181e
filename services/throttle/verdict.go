package throttle

import "github.com/upb/acquisitions-api/services"

// Verdict is the throttle's decision for one request
type Verdict int

const (
	Allow Verdict = iota
	DenyBot
	DenyRate
	DenyShield
)

var verdictNames = [...]string{
	Allow:      "allow",
	DenyBot:    "deny_bot",
	DenyRate:   "deny_rate",
	DenyShield: "deny_shield",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return "unknown"
	}
	return verdictNames[v]
}

// Denied reports whether the request must be short-circuited
func (v Verdict) Denied() bool {
	return v != Allow
}

// Err returns the domain error a denied request is answered with
func (v Verdict) Err() error {
	switch v {
	case DenyBot:
		return services.ErrBotDetected
	case DenyRate:
		return services.ErrRateLimited
	case DenyShield:
		return services.ErrRequestBlocked
	default:
		return nil
	}
}

// Verdicts lists every verdict in declaration order
func Verdicts() []Verdict {
	return []Verdict{Allow, DenyBot, DenyRate, DenyShield}
}
