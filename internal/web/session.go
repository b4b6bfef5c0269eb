package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/willemschots/newsletter/internal/krypto"
)

const (
	sessionName      = "nl-session"
	sessionUserIDKey = "userID"
	sessionMaxAge    = 60 * 60 * 24
)

// NewCookieStore creates a session store that authenticates and encrypts
// cookies. keys are pairs of an authentication key and an encryption key.
// The first pair is used for new cookies, the other pairs are only used to
// read existing cookies, which allows keys to be rotated.
func NewCookieStore(keys []krypto.Key, secure bool) (*sessions.CookieStore, error) {
	if len(keys) == 0 || len(keys)%2 != 0 {
		return nil, errors.New("cookie keys must be provided in pairs")
	}

	pairs := make([][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k.SecretValue())
	}

	store := sessions.NewCookieStore(pairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}

	return store, nil
}

// session is a middleware that loads the session and injects it in the context.
//
// A cookie that can't be decoded (for example because the keys were rotated)
// results in a new, empty session.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.SessionStore.Get(r, sessionName)
		if err != nil && sess == nil {
			s.handleError(w, r, err)
			return
		}

		ctx := ctxWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const sessionCtxKey ctxKey = "_session"

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}

func sessionUserID(sess *sessions.Session) (uuid.UUID, bool) {
	raw, ok := sess.Values[sessionUserIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

// renewSession clears all values of the session and logs in the user.
func renewSession(sess *sessions.Session, userID uuid.UUID) {
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Values[sessionUserIDKey] = userID.String()
}

func deleteSessionUserID(sess *sessions.Session) {
	delete(sess.Values, sessionUserIDKey)
}
