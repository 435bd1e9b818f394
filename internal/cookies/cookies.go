// Package cookies carries the session tokens between the API and the browser.
package cookies

import (
	"net/http"
	"time"
)

const (
	AccessName  = "os_at"
	RefreshName = "os_rt"
)

// Transport sets and clears the two session cookies. Every cookie it writes
// shares one attribute set, so a clear always matches the earlier set.
type Transport struct {
	secure    bool
	sameSite  http.SameSite
	accessTTL time.Duration
}

// NewTransport returns cross-site HTTPS-only cookies in production and lax,
// plain-HTTP cookies everywhere else.
func NewTransport(production bool, accessTTL time.Duration) Transport {
	if production {
		return Transport{secure: true, sameSite: http.SameSiteNoneMode, accessTTL: accessTTL}
	}
	return Transport{secure: false, sameSite: http.SameSiteLaxMode, accessTTL: accessTTL}
}

func (t Transport) SetSession(w http.ResponseWriter, accessToken, refreshToken string, refreshMaxAge time.Duration) {
	t.SetAccess(w, accessToken)
	http.SetCookie(w, t.cookie(RefreshName, refreshToken, maxAgeSeconds(refreshMaxAge)))
}

func (t Transport) SetAccess(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, t.cookie(AccessName, accessToken, maxAgeSeconds(t.accessTTL)))
}

func (t Transport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie(AccessName, "", -1))
	http.SetCookie(w, t.cookie(RefreshName, "", -1))
}

func (t Transport) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: t.sameSite,
	}
}

// maxAgeSeconds never returns 0, which would turn the cookie into a
// browser-session cookie.
func maxAgeSeconds(d time.Duration) int {
	return max(1, int(d/time.Second))
}

func Access(r *http.Request) string {
	return value(r, AccessName)
}

func Refresh(r *http.Request) string {
	return value(r, RefreshName)
}

func value(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
