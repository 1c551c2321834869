package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"eucl/cmd/identity"
	"eucl/cmd/internal/auth/session"
)

// Users is the identity surface the handlers need. *identity.Service
// implements it.
type Users interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.User, error)
	GetByID(ctx context.Context, id string) (identity.User, error)
	List(ctx context.Context) ([]identity.User, error)
}

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	users    Users

	audit    Auditor
	failures FailureCounter
	now      func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAuditor replaces the default LogAuditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

// WithFailureCounter enables per-IP login throttling.
func WithFailureCounter(fc FailureCounter) HandlerOption {
	return func(h *Handler) { h.failures = fc }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(cfg Config, sessions *session.Service, users Users, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("api: nil session service")
	}
	if users == nil {
		return nil, errors.New("api: nil users")
	}

	h := &Handler{
		log:      slog.Default(),
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.audit == nil {
		h.audit = LogAuditor{Log: h.log}
	}
	return h, nil
}

// Register wires the auth, user and admin routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)

	mux.Handle("GET /api/users/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
	mux.Handle("GET /api/admin/users", h.RequireRole(identity.RoleAdmin)(http.HandlerFunc(h.handleListUsers)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	ctx := r.Context()
	u, err := h.users.Register(ctx, identity.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		NationalID: req.NationalID,
		Password:   req.Password,
	})
	if err != nil {
		if field, ok := identity.ConflictField(err); ok {
			writeError(w, http.StatusConflict, "conflict", field+" is already registered")
			return
		}
		if identity.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "invalid_request", inputMessage(err))
			return
		}
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, h.event(r, ActionRegister, u.ID, nil))
	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "user registered successfully",
		User:    toUserResponse(u),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	ctx := r.Context()
	now := h.now()
	email := identity.NormalizeEmail(req.Email)

	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, clientIP(r, h.cfg.TrustProxy), now); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.audit.Record(ctx, h.event(r, ActionLoginThrottled, "", map[string]any{"identifier": email}))
		writeRateLimited(w, retryAfter)
		return
	}

	issued, err := h.sessions.Login(ctx, now, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.audit.Record(ctx, h.event(r, ActionLoginFailed, "", map[string]any{"identifier": email}))
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, h.event(r, ActionLoginSuccess, issued.IdentityID, map[string]any{"credential_id": issued.CredentialID}))
	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	ctx := r.Context()
	issued, err := h.sessions.Refresh(ctx, h.now(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			h.audit.Record(ctx, h.event(r, ActionRefreshFailed, "", nil))
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid or expired refresh token")
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, h.event(r, ActionRefreshSuccess, issued.IdentityID, map[string]any{"credential_id": issued.CredentialID}))
	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing or malformed Authorization header")
		return
	}

	ctx := r.Context()
	claims, err := h.sessions.Logout(ctx, h.now(), token)
	if err != nil {
		writeAuthError(w, h.log, err)
		return
	}

	h.audit.Record(ctx, h.event(r, ActionLogout, claims.IdentityID, map[string]any{"credential_id": claims.CredentialID}))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	u, err := h.users.GetByID(r.Context(), claims.IdentityID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
			return
		}
		h.log.Error("users.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.log.Error("admin.users.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := usersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- helpers ----

func (h *Handler) event(r *http.Request, action, userID string, meta map[string]any) AuditEvent {
	return AuditEvent{
		Action:    action,
		UserID:    userID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Meta:      meta,
	}
}

// inputMessage returns the client-safe part of an identity input error.
func inputMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid request"
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. ok is false when the header is missing or uses another scheme.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
