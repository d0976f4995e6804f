package httpserver

import (
	"net/http"
	"time"

	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/server/guard"
)

// RefreshTokenCookie carries the refresh token plaintext, scoped to the auth
// route group so it is never sent with ordinary API calls.
const RefreshTokenCookie = "refresh_token"

const refreshCookiePath = "/api/auth"

// CookieWriter centralizes credential cookie behavior for both transports.
// Both cookies are HttpOnly and SameSite=Strict; Secure is enforced in
// production. Max-Age mirrors the token lifetimes, so the refresh cookie and
// the stored row expire together.
type CookieWriter struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Set writes both credential cookies for an issued token pair.
func (c CookieWriter) Set(w http.ResponseWriter, pair model.Tokens) {
	http.SetCookie(w, c.cookie(guard.AccessTokenCookie, pair.AccessToken, "/", int(c.AccessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.RefreshToken, refreshCookiePath, int(c.RefreshTTL.Seconds())))
}

// Clear expires both credential cookies.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(guard.AccessTokenCookie, "", "/", -1))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, "", refreshCookiePath, -1))
}

func (c CookieWriter) cookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
