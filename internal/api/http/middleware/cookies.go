package middleware

import (
	"net/http"
	"time"
)

const (
	// SessionCookie holds the random browser session ID.
	SessionCookie = "rni_sid"
	// TokenCookie holds the signed identity token of the session.
	TokenCookie = "rni_token"
)

// Cookies writes the session cookies.
type Cookies struct {
	Secure bool
	// TokenTTL matches the lifetime of issued tokens.
	TokenTTL time.Duration
}

func (c Cookies) SetSessionID(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, c.cookie(SessionCookie, sessionID, 0))
}

// SetToken replaces the identity token. An empty token leaves the cookie untouched.
func (c Cookies) SetToken(w http.ResponseWriter, token string) {
	if token == "" {
		return
	}
	http.SetCookie(w, c.cookie(TokenCookie, token, c.TokenTTL))
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	return cookie
}
