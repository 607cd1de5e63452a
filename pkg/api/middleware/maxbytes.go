package middleware

import "net/http"

// MaxBytes caps the request body at limit bytes. A declared
// Content-Length over the cap is rejected before any read; bodies
// without a declared length are wrapped so handlers hit
// *http.MaxBytesError once the cap is crossed. limit <= 0 disables the
// cap.
func MaxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 {
				if r.ContentLength > limit {
					writeError(w, http.StatusBadRequest, "request body too large")
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
