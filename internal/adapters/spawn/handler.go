// Package spawn exposes the swarm lifecycle over HTTP under /spawn/.
package spawn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"swarmspawn/internal/auth"
	"swarmspawn/pkg/domain"
)

// Route paths served by Handler.
const (
	PathCreateSwarm = "/spawn/create_swarm"
	PathDeleteSwarm = "/spawn/delete_swarm"
	PathStartSwarm  = "/spawn/start_swarm"
	PathGetSwarm    = "/spawn/get_swarm"
	PathListSwarms  = "/spawn/list_swarms"
	PathHealth      = "/healthz"
)

const maxBodyBytes = 1 << 20

// Routes lists every path served by Handler.
func Routes() []string {
	return []string{PathCreateSwarm, PathDeleteSwarm, PathStartSwarm, PathGetSwarm, PathListSwarms, PathHealth}
}

// Lifecycle is the subset of core.Service the handler calls.
type Lifecycle interface {
	CreateSwarm(ctx context.Context, userID, name string) (domain.Swarm, domain.UserIndex, error)
	DeleteSwarm(ctx context.Context, userID, swarmID string) (domain.UserIndex, error)
	StartSwarm(ctx context.Context, userID, swarmID, goal string) error
	GetSwarm(ctx context.Context, userID, swarmID string) (domain.Swarm, error)
	ListSwarms(ctx context.Context, userID string) (domain.UserIndex, error)
}

// Handler serves the spawn endpoints.
type Handler struct {
	Service  Lifecycle
	Identity auth.IdentityProvider
	// CORSOrigins lists origins allowed to call the API from a browser; "*"
	// allows any origin.
	CORSOrigins []string
}

// NewHandler constructs a handler over svc, resolving callers with identity.
func NewHandler(svc Lifecycle, identity auth.IdentityProvider, corsOrigins ...string) *Handler {
	return &Handler{Service: svc, Identity: identity, CORSOrigins: corsOrigins}
}

type swarmRequest struct {
	SwarmName string `json:"swarm_name"`
	SwarmID   string `json:"swarm_id"`
	Goal      string `json:"goal"`
}

type createResponse struct {
	domain.Swarm
	UserSwarms domain.UserIndex `json:"user_swarms"`
}

type userSwarmsResponse struct {
	UserSwarms domain.UserIndex `json:"user_swarms"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == PathHealth {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	method, ok := routeMethod(path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != method {
		methodNotAllowed(w, method)
		return
	}

	userID, err := h.resolveUser(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req swarmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// An empty get is answered without any configured store.
	if path == PathGetSwarm && req.SwarmID == "" {
		writeJSON(w, http.StatusOK, domain.EmptySwarm())
		return
	}
	if h.Service == nil {
		writeFailure(w, domain.ConfigurationError{Setting: "USER_INFO_DB_PATH/SWARMS_DB_PATH"})
		return
	}

	ctx := r.Context()
	switch path {
	case PathCreateSwarm:
		swarm, index, err := h.Service.CreateSwarm(ctx, userID, req.SwarmName)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, createResponse{Swarm: swarm, UserSwarms: index})
	case PathDeleteSwarm:
		index, err := h.Service.DeleteSwarm(ctx, userID, req.SwarmID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userSwarmsResponse{UserSwarms: index})
	case PathStartSwarm:
		if err := h.Service.StartSwarm(ctx, userID, req.SwarmID, req.Goal); err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	case PathGetSwarm:
		swarm, err := h.Service.GetSwarm(ctx, userID, req.SwarmID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, swarm)
	case PathListSwarms:
		index, err := h.Service.ListSwarms(ctx, userID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userSwarmsResponse{UserSwarms: index})
	}
}

func routeMethod(path string) (string, bool) {
	switch path {
	case PathCreateSwarm, PathStartSwarm, PathGetSwarm:
		return http.MethodPost, true
	case PathDeleteSwarm:
		return http.MethodDelete, true
	case PathListSwarms:
		return http.MethodGet, true
	}
	return "", false
}

func (h *Handler) resolveUser(r *http.Request) (string, error) {
	if h.Identity == nil {
		return "", domain.ConfigurationError{Setting: "SPAWN_TOKENS", Reason: "no identity provider"}
	}
	token := auth.BearerToken(r)
	if token == "" {
		return "", auth.ErrUnauthorized
	}
	userID, err := h.Identity.Resolve(r.Context(), token)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", auth.ErrUnauthorized
	}
	return userID, nil
}

func (h *Handler) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !h.allowOrigin(origin) {
		return
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", origin)
	hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	hdr.Add("Vary", "Origin")
}

func (h *Handler) allowOrigin(origin string) bool {
	for _, allowed := range h.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, out *swarmRequest) error {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body")
	}
	return nil
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsAuthorization(err):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
