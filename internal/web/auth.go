package web

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, s.instrument(pattern, handler))
}

// loggedIn registers a handler that is only accessible by logged in admins.
// Anyone else is redirected to the login page.
func (s *Server) loggedIn(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, s.instrument(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		userID, ok := sessionUserID(sess)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := ContextWithUserID(r.Context(), userID)
		handler.ServeHTTP(w, r.WithContext(ctx))
	})))
}

const userIDKey ctxKey = "newsletterUserID"

func ContextWithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}

	return userID, true
}
