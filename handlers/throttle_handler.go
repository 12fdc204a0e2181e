package handlers

import (
	"net/http"
	"time"

	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/services/ratelimit"
	"github.com/upb/acquisitions-api/services/throttle"
	"github.com/upb/acquisitions-api/utils"
	"go.uber.org/zap"
)

// ThrottleStatsResponse is the body of GET /api/throttle/stats
type ThrottleStatsResponse struct {
	Verdicts map[string]int64 `json:"verdicts"`
	Since    time.Time        `json:"since"`
	Window   string           `json:"window"`
	Quotas   ratelimit.Quotas `json:"quotas"`
}

// ThrottleHandler exposes throttle counters to admins
type ThrottleHandler struct {
	throttle *throttle.Throttle
	logger   *zap.Logger
}

// NewThrottleHandler creates a new ThrottleHandler
func NewThrottleHandler(t *throttle.Throttle, logger *zap.Logger) *ThrottleHandler {
	return &ThrottleHandler{
		throttle: t,
		logger:   logger,
	}
}

// HandleStats handles GET /api/throttle/stats
func (h *ThrottleHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.throttle.Stats().Snapshot(r.Context())
	if err != nil {
		HandleServiceError(w, services.ErrUpstreamUnavailable.Wrap(err), h.logger)
		return
	}

	verdicts := make(map[string]int64, len(throttle.Verdicts()))
	for _, v := range throttle.Verdicts() {
		verdicts[v.String()] = snap.Counts[v.String()]
	}

	limiter := h.throttle.Limiter()
	_ = utils.WriteOK(w, ThrottleStatsResponse{
		Verdicts: verdicts,
		Since:    snap.Since,
		Window:   limiter.Window().String(),
		Quotas:   limiter.Quotas(),
	}, "")
}
