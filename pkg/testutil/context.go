package testutil

import (
	"net/http"

	id "paddock/pkg/domain"
	"paddock/pkg/requestcontext"
)

// WithUser stamps a request with an authenticated user, simulating what
// the auth middleware does. Invalid user ids are silently ignored.
func WithUser(req *http.Request, userID string) *http.Request {
	return WithAuth(req, userID, requestcontext.RoleUser)
}

// WithAdmin stamps a request with an admin principal.
func WithAdmin(req *http.Request, userID string) *http.Request {
	return WithAuth(req, userID, requestcontext.RoleAdmin)
}

// WithAuth stamps a request with a principal of the given role.
func WithAuth(req *http.Request, userID string, role requestcontext.Role) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseUserID(userID); err == nil {
		ctx = requestcontext.WithUserID(ctx, parsed)
	}
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
