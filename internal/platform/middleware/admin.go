package middleware

import (
	"log/slog"
	"net/http"

	"paddock/pkg/requestcontext"
)

// RequireAdmin gates privileged routes on the elevated role. It must run
// after RequireAuth so the principal is already in context.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAdmin(ctx) {
				logger.WarnContext(ctx, "forbidden - admin role required",
					"user_id", requestcontext.UserID(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Admin access required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
