package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Session identification for upload deduplication.
const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "evalboard_session"
)

// sessionID returns the caller's session, minting one and setting it as a
// cookie when the request carries none.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// parseModes accepts repeated fields and comma-separated lists.
func parseModes(values []string) []string {
	var out []string
	for _, v := range values {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}
