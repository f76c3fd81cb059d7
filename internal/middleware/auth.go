package middleware

import (
	"crypto/subtle"
	"net/http"
)

// TokenHeader and TokenCookie carry the control token; the "token" query
// parameter is accepted too.
const (
	TokenHeader = "X-Control-Token"
	TokenCookie = "camwatch_token"
)

// RequestToken extracts the token a request presents.
func RequestToken(r *http.Request) string {
	if t := r.Header.Get(TokenHeader); t != "" {
		return t
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// TokenAuth rejects requests without the control token. An empty token
// disables the check.
func TokenAuth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(RequestToken(r)), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenAuthFunc is TokenAuth for a handler function.
func TokenAuthFunc(token string, next http.HandlerFunc) http.Handler {
	return TokenAuth(token, next)
}
