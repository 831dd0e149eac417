package httpapi

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// adminTokenHeader carries the hex-encoded admin key on control routes that
// mutate the dataset router (evict/delete).
const adminTokenHeader = "X-Admin-Token"

// requireAdmin gates a handler behind adminKey. When adminKey is nil (no
// ADMIN_TOKEN_SECRET configured), the gate is open — matching the teacher's
// convention of auth being an opt-in deployment concern, not a hardcoded
// requirement.
func requireAdmin(adminKey []byte, next http.Handler) http.Handler {
	if len(adminKey) == 0 {
		return next
	}
	want := hex.EncodeToString(adminKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(adminTokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, r, http.StatusUnauthorized, "admin token required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
