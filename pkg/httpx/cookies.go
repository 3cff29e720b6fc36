package httpx

import (
	"net/http"
	"time"
)

const (
	CookieJWT          = "jwt"
	CookieRefreshToken = "refresh_token"
)

// CookieOptions are the attributes shared by every credential cookie.
type CookieOptions struct {
	Domain string
	Path   string
	Secure bool
}

// SetCredentialCookie writes an HttpOnly cookie expiring at expires. A zero
// expires produces a session cookie.
func SetCredentialCookie(w http.ResponseWriter, opts CookieOptions, name, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   opts.Domain,
		Path:     opts.pathOrRoot(),
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		c.Expires = expires.UTC()
		c.MaxAge = max(int(time.Until(expires).Seconds()), 1)
	}
	http.SetCookie(w, c)
}

// ClearCookie expires name immediately.
func ClearCookie(w http.ResponseWriter, opts CookieOptions, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   opts.Domain,
		Path:     opts.pathOrRoot(),
		Secure:   opts.Secure,
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func (o CookieOptions) pathOrRoot() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}
