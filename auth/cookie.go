// Package auth binds session tokens to HTTP via a cookie.
package auth

import (
	"net/http"
	"time"
)

// SessionCarrier sets, reads and clears the session cookie. Every cookie it
// writes carries the same attribute set, so browsers accept the clearing
// cookie as a replacement for the original.
type SessionCarrier struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// NewSessionCarrier creates a carrier. secure is false only for local
// development over plain HTTP.
func NewSessionCarrier(name string, maxAge time.Duration, secure bool) *SessionCarrier {
	return &SessionCarrier{
		Name:   name,
		MaxAge: maxAge,
		Secure: secure,
	}
}

// Attach sets the session cookie, replacing any previous one
func (c *SessionCarrier) Attach(w http.ResponseWriter, token string) {
	cookie := c.base()
	cookie.Value = token
	cookie.MaxAge = int(c.MaxAge / time.Second)
	http.SetCookie(w, cookie)
}

// Read returns the session token carried by r, if any
func (c *SessionCarrier) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear expires the session cookie
func (c *SessionCarrier) Clear(w http.ResponseWriter) {
	cookie := c.base()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (c *SessionCarrier) base() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
