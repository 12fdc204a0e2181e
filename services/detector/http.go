package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/acquisitions-api/utils"
	"golang.org/x/time/rate"
)

// forwardedHeaders are the request headers sent to the remote detector.
// Cookies and Authorization never leave the process.
var forwardedHeaders = []string{
	"Accept",
	"Accept-Language",
	"Accept-Encoding",
	"Referer",
	"Sec-Ch-Ua",
	"Sec-Fetch-Site",
	"X-Requested-With",
}

// HTTPConfig configures an HTTPDetector
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	MaxRPS   float64
}

type inspectRequest struct {
	IP        string            `json:"ip"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     string            `json:"query,omitempty"`
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// HTTPDetector delegates inspection to a remote service. Outbound calls are
// capped per second; requests over the cap get ErrSaturated immediately.
type HTTPDetector struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPDetector creates a new remote detector
func NewHTTPDetector(cfg HTTPConfig) (*HTTPDetector, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("detector endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRPS <= 0 {
		return nil, fmt.Errorf("detector max rps must be positive, got %v", cfg.MaxRPS)
	}

	burst := int(cfg.MaxRPS)
	if burst < 1 {
		burst = 1
	}

	return &HTTPDetector{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst),
	}, nil
}

// Inspect implements Detector
func (d *HTTPDetector) Inspect(ctx context.Context, r *http.Request) (Signal, error) {
	if !d.limiter.Allow() {
		return Signal{}, ErrSaturated
	}

	payload := inspectRequest{
		IP:        utils.ClientIP(r),
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		UserAgent: r.UserAgent(),
		Headers:   make(map[string]string),
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			payload.Headers[h] = v
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Signal{}, fmt.Errorf("marshal detector request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Signal{}, fmt.Errorf("create detector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Signal{}, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Signal{}, fmt.Errorf("read detector response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Signal{}, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var sig Signal
	if err := json.Unmarshal(respBody, &sig); err != nil {
		return Signal{}, fmt.Errorf("parse detector response: %w", err)
	}
	return sig, nil
}
