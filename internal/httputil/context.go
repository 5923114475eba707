package httputil

import (
	"context"
	"net/http"
)

// contextKey is unexported so middleware values cannot collide with
// context keys set by other packages.
type contextKey string

const userIDKey contextKey = "userID"

// WithUserID returns a request whose context carries the authenticated
// user id. Only the auth middleware calls this.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// GetUserID returns the authenticated user id, or the empty string when
// the request never passed the auth middleware.
func GetUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
