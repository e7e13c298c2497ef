package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/xolex/xolex/internal/models"
	"github.com/xolex/xolex/internal/remote"
	"github.com/xolex/xolex/internal/remote/opstore"
)

// Store is the persistence the sandbox serves from.
type Store interface {
	Authenticate(ctx context.Context, email, password string) (*opstore.User, error)
	ListOperations(ctx context.Context) ([]models.Operation, error)
	Receive(ctx context.Context, operationID int64, userID string) (*opstore.Reception, error)
	Ping(ctx context.Context) error
}

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int   // per-client rate limit on login
	Webhooks          *WebhookNotifier
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    1 << 20,
		RequestsPerMinute: 30,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(store Store, tokens *TokenIssuer, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, authMiddleware(tokens))
	}

	h := &handlers{store: store, tokens: tokens, cfg: cfg, logger: logger}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("POST "+remote.PathLogin, rl.middleware(http.HandlerFunc(h.login)))
	mux.Handle("GET "+remote.PathOperations, withAuth(h.listOperations))
	mux.Handle("POST "+remote.PathReception, withAuth(h.receive))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type handlers struct {
	store  Store
	tokens *TokenIssuer
	cfg    *ServerConfig
	logger *slog.Logger
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req remote.LoginRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	user, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, opstore.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "auth_failed", "Invalid credentials")
		return
	}
	if err != nil {
		h.internal(w, r, "authenticate", err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.internal(w, r, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.LoginResponse{Token: token})
}

func (h *handlers) listOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.store.ListOperations(r.Context())
	if err != nil {
		h.internal(w, r, "list operations", err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.OperationsEnvelope{Operations: ops})
}

func (h *handlers) receive(w http.ResponseWriter, r *http.Request) {
	var req remote.ReceptionRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	opID, err := strconv.ParseInt(req.OperationID.String(), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "operationId is required")
		return
	}

	principal := principalFrom(r.Context())
	if req.UserID != "" && req.UserID != principal.ID {
		writeError(w, http.StatusForbidden, "forbidden", "userId does not match credential")
		return
	}

	rec, err := h.store.Receive(r.Context(), opID, principal.ID)
	switch {
	case errors.Is(err, opstore.ErrAlreadyReceived):
		writeError(w, http.StatusConflict, "conflict", "already received")
		return
	case errors.Is(err, opstore.ErrNotReceivable):
		writeError(w, http.StatusConflict, "conflict", "operation is not in transit")
		return
	case errors.Is(err, opstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "operation not found")
		return
	case err != nil:
		h.internal(w, r, "receive", err)
		return
	}

	h.logger.Info("reception recorded",
		"reception_id", rec.ID, "operation_id", rec.OperationID, "user_id", rec.UserID)
	h.cfg.Webhooks.NotifyReception(rec.ID, rec.OperationID, rec.Record.Name, rec.UserID)

	writeJSON(w, http.StatusCreated, &remote.ReceptionResponse{
		Message:   "Reception recorded",
		Operation: &rec.Record,
	})
}

func (h *handlers) internal(w http.ResponseWriter, r *http.Request, what string, err error) {
	reqID, _ := r.Context().Value(contextKeyRequestID).(string)
	h.logger.Error(what+" failed", "error", err, "request_id", reqID)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &remote.ErrorResponse{Error: code, Message: message})
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
