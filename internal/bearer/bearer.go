// Package bearer extracts access tokens from HTTP requests.
package bearer

import (
	"net/http"
	"strings"
)

const scheme = "Bearer "

// FromHeader returns the token of an Authorization bearer header. The scheme
// is matched case-insensitively.
func FromHeader(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(scheme):])
	return tok, tok != ""
}
