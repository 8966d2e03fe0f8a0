package auth

import (
	"net/http"
	"time"
)

// CookieJar reads request cookies and queues response cookies.
type CookieJar interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string, expires time.Time)
	ClearCookie(name string)
}

// HTTPCookies adapts a request/response pair to CookieJar.
type HTTPCookies struct {
	W      http.ResponseWriter
	R      *http.Request
	Secure bool
}

// Cookie returns the request cookie value.
func (c HTTPCookies) Cookie(name string) (string, bool) {
	if c.R == nil {
		return "", false
	}
	cookie, err := c.R.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// SetCookie writes a cookie on path "/".
func (c HTTPCookies) SetCookie(name, value string, expires time.Time) {
	http.SetCookie(c.W, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the cookie immediately.
func (c HTTPCookies) ClearCookie(name string) {
	http.SetCookie(c.W, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
	})
}
