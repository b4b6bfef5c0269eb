// Package web serves the admin login and password management pages.
package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/gorilla/sessions"
	"github.com/willemschots/newsletter/internal/auth"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
	"github.com/willemschots/newsletter/internal/observability/metrics"
)

// Flash messages shown to the admin.
const (
	FlashAuthFailed       = "Authentication failed"
	FlashPasswordMismatch = "Passwords must match"
	FlashCurrentIncorrect = "Current password incorrect"
	FlashPasswordChanged  = "Password changed"
	FlashLoggedOut        = "Logged out"
)

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	AuthService  *auth.Service
	SessionStore sessions.Store
	Metrics      *metrics.Metrics
	// MetricsHandler serves /metrics if it is not nil.
	MetricsHandler http.Handler
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

const (
	csrfTokenCookieName = "nl-csrf"
	csrfTokenField      = "csrf_token"
)

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	views   views
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) (*Server, error) {
	v, err := parseViews()
	if err != nil {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: decoder,
		views:   v,
	}

	s.public("GET /login", http.HandlerFunc(s.loginForm))
	s.public("POST /login", http.HandlerFunc(s.login))

	s.loggedIn("GET /admin/dashboard", http.HandlerFunc(s.dashboard))
	s.loggedIn("GET /admin/password", http.HandlerFunc(s.changePasswordForm))
	s.loggedIn("POST /admin/password", http.HandlerFunc(s.changePassword))
	s.loggedIn("POST /admin/logout", http.HandlerFunc(s.logout))

	if deps.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	// Wrap the mux with global middlewares.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Path("/"),
		csrf.Secure(cfg.SecureCookie),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)),
	)

	middlewares := []func(http.Handler) http.Handler{
		csrfMW,
		s.session,
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r, "login", nil)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var c auth.Credentials
	err := s.decodeForm(r, &c)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	userID, err := s.deps.AuthService.ValidateCredentials(r.Context(), c)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.redirectWithFlash(w, r, "/login", FlashAuthFailed)
		return
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	// A token obtained before logging in is worthless afterwards. A new one
	// is generated on the next GET request after the redirect.
	http.SetCookie(w, &http.Cookie{
		Name:   csrfTokenCookieName,
		Path:   "/",
		MaxAge: -1,
	})

	renewSession(sess, userID)
	err = s.deps.SessionStore.Save(r, w, sess)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	username, err := s.deps.AuthService.Username(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeView(w, r, "dashboard", username)
}

func (s *Server) changePasswordForm(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r, "change-password", nil)
}

type changePasswordForm struct {
	CurrentPassword  auth.Password `schema:"current_password"`
	NewPassword      auth.Password `schema:"new_password"`
	NewPasswordCheck auth.Password `schema:"new_password_check"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var form changePasswordForm
	err := s.decodeForm(r, &form)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if form.NewPassword.IsZero() {
		s.handleError(w, r, errorz.InvalidInput{
			errorz.Keyed{Key: "new_password", Err: auth.ErrInvalidPassword},
		})
		return
	}

	if !form.NewPassword.Equal(form.NewPasswordCheck) {
		s.redirectWithFlash(w, r, "/admin/password", FlashPasswordMismatch)
		return
	}

	userID, _ := UserIDFromContext(r.Context())

	username, err := s.deps.AuthService.Username(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	_, err = s.deps.AuthService.ValidateCredentials(r.Context(), auth.Credentials{
		Username: username,
		Password: form.CurrentPassword,
	})
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.redirectWithFlash(w, r, "/admin/password", FlashCurrentIncorrect)
		return
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	err = s.deps.AuthService.ChangePassword(r.Context(), userID, form.NewPassword)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.redirectWithFlash(w, r, "/admin/password", FlashPasswordChanged)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	deleteSessionUserID(sess)
	s.redirectWithFlash(w, r, "/login", FlashLoggedOut)
}

func (s *Server) decodeForm(r *http.Request, dst any) error {
	err := r.ParseForm()
	if err != nil {
		return errorz.InvalidInput{err}
	}

	// The token was checked by the csrf middleware and isn't mapped to any target.
	r.PostForm.Del(csrfTokenField)

	err = s.decoder.Decode(dst, r.PostForm)
	if err != nil {
		return errorz.InvalidInput{err}
	}

	return nil
}

func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, flash string) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sess.AddFlash(flash)
	err = s.deps.SessionStore.Save(r, w, sess)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	vd := viewData{
		CSRFField: csrf.TemplateField(r),
		Flashes:   sess.Flashes(),
		Data:      data,
	}

	// Save the session so the flashes are consumed.
	err = s.deps.SessionStore.Save(r, w, sess)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = s.views.render(w, name, vd)
	if err != nil {
		s.deps.Logger.Error("failed to render view", "view", name, "error", err)
	}
}

func (s *Server) csrfFailure(w http.ResponseWriter, r *http.Request) {
	s.deps.Logger.Info("csrf check failed", "method", r.Method, "path", r.URL.Path, "reason", csrf.FailureReason(r))
	http.Error(w, "forbidden", http.StatusForbidden)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errorz.IsInvalidInput(err) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	s.deps.Logger.Error("internal server error", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request metrics labeled with the path of the route pattern.
func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	if s.deps.Metrics == nil {
		return next
	}

	path := pattern
	if _, p, ok := strings.Cut(pattern, " "); ok {
		path = p
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.deps.Metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		s.deps.Metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
