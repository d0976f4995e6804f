// Package httpserver exposes the REST authentication API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	pkgcrypto "github.com/marginalia-app/marginalia/internal/crypto"
	"github.com/marginalia-app/marginalia/internal/errs"
	"github.com/marginalia-app/marginalia/internal/model"
	"github.com/marginalia-app/marginalia/internal/server/guard"
	"github.com/marginalia-app/marginalia/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	sessions service.SessionService
	guard    *guard.Guard
	cookies  CookieWriter
	log      *zap.Logger
}

// New constructs an HTTP server with injected services.
func New(auth service.AuthService, sessions service.SessionService, g *guard.Guard, cookies CookieWriter, log *zap.Logger) *Server {
	return &Server{auth: auth, sessions: sessions, guard: g, cookies: cookies, log: log}
}

// Handler returns the routed handler with logging and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)
	mux.HandleFunc("POST /api/auth/password-strength", s.handlePasswordStrength)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Recover(s.log)(Logging(s.log)(mux))
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	u, err := s.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	pair, u, err := s.auth.Login(r.Context(), req.Email, req.Password, provenance(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.cookies.Set(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse(pair, u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Best-effort revocation: the cookies are cleared either way.
	if plaintext, ok := s.refreshPlaintext(r, nil); ok {
		if _, err := s.sessions.Revoke(r.Context(), plaintext); err != nil {
			s.log.Warn("logout revocation failed", zap.Error(err))
		}
	}
	s.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional; cookie wins

	plaintext, ok := s.refreshPlaintext(r, &req)
	if !ok {
		writeError(w, s.log, errs.ErrUnauthenticated)
		return
	}
	pair, u, err := s.sessions.Rotate(r.Context(), plaintext)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.cookies.Set(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse(pair, u))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.guard.Authenticate(r.Context(), guard.HTTPCall(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

type strengthRequest struct {
	Password string `json:"password"`
}

func (s *Server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req strengthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": pkgcrypto.Score(req.Password)})
}

// refreshPlaintext reads the refresh token from the cookie, falling back to
// the request body.
func (s *Server) refreshPlaintext(r *http.Request, body *refreshRequest) (string, bool) {
	if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	if body != nil && body.RefreshToken != "" {
		return body.RefreshToken, true
	}
	return "", false
}

func tokenResponse(pair model.Tokens, u *model.User) map[string]any {
	return map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt,
		"user":         u,
	}
}

func provenance(r *http.Request) service.Provenance {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return service.Provenance{UserAgent: r.UserAgent(), IP: ip}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service outcomes to HTTP statuses. Internal causes are
// logged, never surfaced.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, errs.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrInvalidEmail), errors.Is(err, errs.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrInvalidCredentials), errors.Is(err, errs.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		log.Error("internal error", zap.Error(err))
		err = errors.New("internal error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
