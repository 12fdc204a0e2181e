package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services/ratelimit"
	"github.com/upb/acquisitions-api/services/throttle"
	"github.com/upb/acquisitions-api/utils"
)

// Rate limit response headers
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// SubjectResolver picks the window and tier a request is counted against
type SubjectResolver interface {
	Resolve(r *http.Request) throttle.Subject
}

// SubjectResolverFunc adapts a function to a SubjectResolver
type SubjectResolverFunc func(r *http.Request) throttle.Subject

// Resolve calls f
func (f SubjectResolverFunc) Resolve(r *http.Request) throttle.Subject {
	return f(r)
}

// SessionSubjects counts authenticated callers per user id at their role's
// tier and everyone else per client address at the guest tier. The identity
// is only peeked at; the Gate still decides access.
func SessionSubjects(gate *Gate) SubjectResolver {
	return SubjectResolverFunc(func(r *http.Request) throttle.Subject {
		if user, ok := gate.Identify(r); ok {
			return throttle.Subject{Key: "user:" + user.ID.String(), Role: user.Role}
		}
		return throttle.Subject{Key: "ip:" + utils.ClientIP(r), Role: models.RoleGuest}
	})
}

// ThrottleStage evaluates every request against t before anything else runs
func ThrottleStage(t *throttle.Throttle, resolver SubjectResolver) Stage {
	return Named("throttle", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		decision, err := t.Evaluate(r.Context(), r, resolver.Resolve(r))
		if err != nil {
			return nil, err
		}
		if decision.Rate != nil {
			writeRateHeaders(w, decision.Rate, decision.Verdict == throttle.DenyRate)
		}
		if decision.Verdict.Denied() {
			return nil, decision.Verdict.Err()
		}
		return r, nil
	}))
}

func writeRateHeaders(w http.ResponseWriter, res *ratelimit.Result, denied bool) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	if !res.ResetAt.IsZero() {
		h.Set(HeaderRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
	if denied {
		h.Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
	}
}

// retryAfterSeconds rounds up so a client that waits exactly that long finds
// the oldest entry expired.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
