package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/guard"
	"github.com/MrEthical07/portalAuth/metrics/export/prometheus"
	portalmw "github.com/MrEthical07/portalAuth/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures a [Server]. Registry is required.
type Options struct {
	Registry *Registry
	Policy   guard.Policy
	Logger   *slog.Logger

	CookieName   string
	CookieSecure bool
	// LoadingWait bounds how long a page waits for a new device's session check
	// before serving the loading page.
	LoadingWait time.Duration

	// Health reports backend reachability for /healthz; nil always reports ok.
	Health func(ctx context.Context) error
}

// Server is the portal's HTTP surface.
type Server struct {
	opts     Options
	registry *Registry
	policy   guard.Policy
	logger   *slog.Logger
	pages    pages
	router   chi.Router
}

// NewServer describes the newserver operation and its observable behavior.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("web: registry is required")
	}
	if opts.Policy.LoginPath == "" {
		opts.Policy = guard.DefaultPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.CookieName == "" {
		opts.CookieName = "portal_device"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		opts:     opts,
		registry: opts.Registry,
		policy:   opts.Policy,
		logger:   opts.Logger,
		pages:    parsePages(),
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", prometheus.NewExporter(s.registry).Handler())

	r.Group(func(r chi.Router) {
		r.Use(deviceMiddleware(s.opts.CookieName, s.opts.CookieSecure))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Get("/session", s.handleSession)

		r.Get(s.policy.LoginPath, s.handleLoginPage)
		r.Post(s.policy.LoginPath, s.handleLogin)
		r.Get("/signup", s.handleSignupPage)
		r.Post("/signup", s.handleSignup)
		r.Post("/logout", s.handleLogout)

		authenticated := portalmw.RequireAuthenticated(s, s.policy)
		r.With(authenticated).Get("/dashboard", s.handleDashboardIndex)
		r.With(authenticated).Get("/settings/profile", s.handleProfilePage)
		r.With(authenticated).Post("/settings/profile", s.handleProfileUpdate)

		for _, role := range portalAuth.Roles() {
			path, ok := s.policy.DashboardFor(role)
			if !ok {
				continue
			}
			r.With(portalmw.RequireRole(s, s.policy, role)).Get(path, s.handleDashboard)
		}
	})
	return r
}

// SessionFor implements middleware.SessionSource for the request's device.
func (s *Server) SessionFor(r *http.Request) portalAuth.Session {
	snap, err := s.registry.Snapshot(r.Context(), DeviceFromContext(r.Context()), s.opts.LoadingWait)
	if err != nil {
		s.logger.Warn("device store unavailable", slog.Any("error", err))
		return portalAuth.Session{}
	}
	return snap
}

func (s *Server) store(r *http.Request) (*portalAuth.Store, error) {
	store, ready, err := s.registry.Get(DeviceFromContext(r.Context()))
	if err != nil {
		return nil, err
	}
	waitReady(r.Context(), ready, s.opts.LoadingWait)
	return store, nil
}

/*
====================================
HANDLERS
====================================
*/

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.SessionFor(r))
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	snap := s.SessionFor(r)
	if s.redirectSignedIn(w, r, snap) {
		return
	}
	s.renderPage(w, http.StatusOK, s.pages.login, pageData{
		Title: "Sign in",
		Error: snap.LastError,
		Next:  safeNext(r.URL.Query().Get("next")),
		Form:  map[string]string{"role": r.URL.Query().Get("role")},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	store, err := s.store(r)
	if err != nil {
		s.unavailable(w, err)
		return
	}

	email := r.PostFormValue("email")
	role := portalAuth.Role(strings.TrimSpace(r.PostFormValue("role")))
	next := safeNext(r.PostFormValue("next"))

	profile, err := store.Login(r.Context(), email, r.PostFormValue("password"), role)
	if err != nil {
		s.renderPage(w, statusFor(err), s.pages.login, pageData{
			Title: "Sign in",
			Error: messageFor(err),
			Next:  next,
			Form:  map[string]string{"email": email, "role": role.String()},
		})
		return
	}

	target := s.landing(profile.Role)
	if next != "" {
		target = next
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	snap := s.SessionFor(r)
	if s.redirectSignedIn(w, r, snap) {
		return
	}
	s.renderPage(w, http.StatusOK, s.pages.signup, pageData{Title: "Create account"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	store, err := s.store(r)
	if err != nil {
		s.unavailable(w, err)
		return
	}

	email := r.PostFormValue("email")
	name := r.PostFormValue("display_name")
	rawRole := r.PostFormValue("role")

	role, err := portalAuth.ParseRole(rawRole)
	if err == nil {
		var profile portalAuth.UserProfile
		profile, err = store.Signup(r.Context(), email, r.PostFormValue("password"), name, role)
		if err == nil {
			http.Redirect(w, r, s.landing(profile.Role), http.StatusSeeOther)
			return
		}
	}
	s.renderPage(w, statusFor(err), s.pages.signup, pageData{
		Title: "Create account",
		Error: messageFor(err),
		Form:  map[string]string{"email": email, "display_name": name, "role": rawRole},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	store, err := s.store(r)
	if err != nil {
		s.unavailable(w, err)
		return
	}
	if err := store.Logout(r.Context()); err != nil {
		if errors.Is(err, portalAuth.ErrOperationInProgress) {
			http.Error(w, "another session operation is in progress", http.StatusConflict)
			return
		}
		s.unavailable(w, err)
		return
	}
	http.Redirect(w, r, s.policy.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleDashboardIndex(w http.ResponseWriter, r *http.Request) {
	snap, _ := portalmw.SessionFromContext(r.Context())
	http.Redirect(w, r, s.landing(snap.Role()), http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, _ := portalmw.SessionFromContext(r.Context())
	title := "Dashboard"
	if snap.User != nil {
		title = strings.ToUpper(snap.Role().String()[:1]) + snap.Role().String()[1:] + " dashboard"
	}
	s.renderPage(w, http.StatusOK, s.pages.dashboard, pageData{Title: title, User: snap.User})
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	snap, _ := portalmw.SessionFromContext(r.Context())
	notice := ""
	if r.URL.Query().Get("saved") == "1" {
		notice = "Profile saved."
	}
	s.renderPage(w, http.StatusOK, s.pages.profile, pageData{
		Title:  "Profile",
		User:   snap.User,
		Notice: notice,
		Form:   profileForm(snap.User),
	})
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	store, err := s.store(r)
	if err != nil {
		s.unavailable(w, err)
		return
	}

	snap, _ := portalmw.SessionFromContext(r.Context())
	update := updateFromForm(r, snap.User)
	if update.IsEmpty() {
		http.Redirect(w, r, "/settings/profile?saved=1", http.StatusSeeOther)
		return
	}

	profile, err := store.UpdateProfile(r.Context(), update)
	if err != nil {
		form := profileForm(snap.User)
		for k := range form {
			if _, ok := r.PostForm[k]; ok {
				form[k] = r.PostFormValue(k)
			}
		}
		s.renderPage(w, statusFor(err), s.pages.profile, pageData{
			Title: "Profile",
			User:  snap.User,
			Error: messageFor(err),
			Form:  form,
		})
		return
	}
	s.logger.Debug("profile updated", slog.String("user_id", profile.ID))
	http.Redirect(w, r, "/settings/profile?saved=1", http.StatusSeeOther)
}

/*
====================================
HELPERS
====================================
*/

// redirectSignedIn sends a signed-in visitor of the login or signup page to their
// dashboard. A role without a dashboard renders the page instead of looping.
func (s *Server) redirectSignedIn(w http.ResponseWriter, r *http.Request, snap portalAuth.Session) bool {
	if !snap.Authenticated() || snap.IsLoading {
		return false
	}
	path, ok := s.policy.DashboardFor(snap.Role())
	if !ok {
		return false
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
	return true
}

func (s *Server) landing(role portalAuth.Role) string {
	if path, ok := s.policy.DashboardFor(role); ok {
		return path
	}
	return s.policy.LoginPath
}

func (s *Server) renderPage(w http.ResponseWriter, status int, page *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := render(&buf, page, data); err != nil {
		s.logger.Error("render failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) unavailable(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", slog.Any("error", err))
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
}

// statusFor maps a store error to the HTTP status of the re-rendered form.
func statusFor(err error) int {
	switch {
	case errors.Is(err, portalAuth.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, portalAuth.ErrStoreClosed):
		return http.StatusServiceUnavailable
	}
	reason, ok := portalAuth.ReasonOf(err)
	if !ok {
		if errors.Is(err, portalAuth.ErrInvalidInput) {
			return http.StatusBadRequest
		}
		return http.StatusServiceUnavailable
	}
	switch reason {
	case portalAuth.ReasonInvalidCredentials, portalAuth.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case portalAuth.ReasonDuplicateAccount:
		return http.StatusConflict
	case portalAuth.ReasonInvalidInput:
		return http.StatusBadRequest
	case portalAuth.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func messageFor(err error) string {
	var ae *portalAuth.AuthError
	switch {
	case errors.As(err, &ae):
		return ae.Message()
	case errors.Is(err, portalAuth.ErrOperationInProgress):
		return "Another sign-in is already in progress. Please wait."
	case errors.Is(err, portalAuth.ErrInvalidInput):
		return "Please choose a role."
	default:
		return "The sign-in service is unavailable right now. Please try again."
	}
}

// safeNext accepts only local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func profileForm(u *portalAuth.UserProfile) map[string]string {
	if u == nil {
		return map[string]string{}
	}
	return map[string]string{
		"display_name":      u.DisplayName,
		"department":        u.Department,
		"phone":             u.Phone,
		"bio":               u.Bio,
		"profile_image_url": u.ProfileImageURL,
		"website":           u.SocialLinks.Website,
		"linkedin":          u.SocialLinks.LinkedIn,
		"github":            u.SocialLinks.GitHub,
		"twitter":           u.SocialLinks.Twitter,
	}
}

// updateFromForm builds an update holding only the submitted fields that differ
// from current.
func updateFromForm(r *http.Request, current *portalAuth.UserProfile) portalAuth.ProfileUpdate {
	var cur portalAuth.UserProfile
	if current != nil {
		cur = *current
	}
	changed := func(field, was string) *string {
		if _, ok := r.PostForm[field]; !ok {
			return nil
		}
		v := strings.TrimSpace(r.PostFormValue(field))
		if v == was {
			return nil
		}
		return &v
	}

	u := portalAuth.ProfileUpdate{
		DisplayName:     changed("display_name", cur.DisplayName),
		Department:      changed("department", cur.Department),
		Phone:           changed("phone", cur.Phone),
		Bio:             changed("bio", cur.Bio),
		ProfileImageURL: changed("profile_image_url", cur.ProfileImageURL),
	}

	links := cur.SocialLinks
	linksChanged := false
	for field, dst := range map[string]*string{
		"website":  &links.Website,
		"linkedin": &links.LinkedIn,
		"github":   &links.GitHub,
		"twitter":  &links.Twitter,
	} {
		if v := changed(field, *dst); v != nil {
			*dst = *v
			linksChanged = true
		}
	}
	if linksChanged {
		u.SocialLinks = &links
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
