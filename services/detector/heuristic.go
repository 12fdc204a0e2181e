package detector

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
)

var (
	// Crawlers that identify themselves and are allowed through
	allowedAgentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)googlebot`),
		regexp.MustCompile(`(?i)bingbot`),
		regexp.MustCompile(`(?i)duckduckbot`),
		regexp.MustCompile(`(?i)slackbot`),
		regexp.MustCompile(`(?i)twitterbot`),
		regexp.MustCompile(`(?i)facebookexternalhit`),
	}

	// Automation clients and headless browsers
	botAgentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^curl/`),
		regexp.MustCompile(`(?i)^wget/`),
		regexp.MustCompile(`(?i)python-requests|python-urllib|aiohttp|httpx`),
		regexp.MustCompile(`(?i)^go-http-client/`),
		regexp.MustCompile(`(?i)scrapy|httpclient|okhttp`),
		regexp.MustCompile(`(?i)headlesschrome|phantomjs|puppeteer|playwright|selenium`),
		regexp.MustCompile(`(?i)\b(bot|crawler|spider|scraper)\b`),
	}

	// Path traversal
	traversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.\./|\.\.\\`),
		regexp.MustCompile(`(?i)%2e%2e(%2f|%5c|/)`),
		regexp.MustCompile(`(?i)/etc/passwd|/proc/self/`),
	}

	// SQL injection
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`),
		regexp.MustCompile(`(?i)'\s*or\s+'?\d+'?\s*=\s*'?\d+`),
		regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter)\s+table\b`),
		regexp.MustCompile(`(?i)\bsleep\s*\(\s*\d+\s*\)|\bbenchmark\s*\(`),
	}

	// Script injection
	scriptInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*script\b`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon(error|load|click|mouseover)\s*=`),
	}
)

// HeuristicDetector flags requests by user agent and by attack markers in
// the path and query. It does no I/O.
type HeuristicDetector struct {
	flagEmptyAgent bool
}

// NewHeuristicDetector creates a heuristic detector. Requests without a
// User-Agent are flagged as bots when flagEmptyAgent is set.
func NewHeuristicDetector(flagEmptyAgent bool) *HeuristicDetector {
	return &HeuristicDetector{flagEmptyAgent: flagEmptyAgent}
}

// Inspect implements Detector
func (d *HeuristicDetector) Inspect(_ context.Context, r *http.Request) (Signal, error) {
	if reason := shieldReason(r); reason != "" {
		return Signal{Shielded: true, Reason: reason}, nil
	}

	ua := r.UserAgent()
	if ua == "" {
		if d.flagEmptyAgent {
			return Signal{Bot: true, Reason: "missing user agent"}, nil
		}
		return Signal{}, nil
	}
	if matchAny(allowedAgentPatterns, ua) {
		return Signal{}, nil
	}
	if matchAny(botAgentPatterns, ua) {
		return Signal{Bot: true, Reason: "automated user agent"}, nil
	}
	return Signal{}, nil
}

func shieldReason(r *http.Request) string {
	targets := []string{r.URL.RawPath, r.URL.Path, r.URL.RawQuery}
	if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil {
		targets = append(targets, q)
	}

	for _, s := range targets {
		if s == "" {
			continue
		}
		switch {
		case matchAny(traversalPatterns, s):
			return "path traversal"
		case matchAny(sqlInjectionPatterns, s):
			return "sql injection"
		case matchAny(scriptInjectionPatterns, s):
			return "script injection"
		}
	}
	return ""
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
