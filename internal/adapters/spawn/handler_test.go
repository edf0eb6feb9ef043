package spawn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"swarmspawn/internal/auth"
	"swarmspawn/internal/core"
	"swarmspawn/internal/kv"
	"swarmspawn/pkg/domain"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	svc, err := core.NewService(kv.NewMemory(), kv.NewMemory())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	for _, user := range []string{"alice", "bob"} {
		if _, err := svc.EnsureUserIndex(context.Background(), user); err != nil {
			t.Fatalf("ensure %s: %v", user, err)
		}
	}
	identity := auth.NewStaticTokens(map[string]string{"tok-alice": "alice", "tok-bob": "bob", "tok-ghost": "ghost"})
	return NewHandler(svc, identity, "http://localhost:3000")
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, PathCreateSwarm, "tok-alice", map[string]string{"swarm_name": "alpha"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[createResponse](t, rec)
	if created.ID == "" || created.Name != "alpha" || created.Spawned || created.Goal != "" {
		t.Fatalf("unexpected created swarm %+v", created)
	}
	if !created.UserSwarms.Contains(created.ID) || created.UserSwarms.SwarmNames[created.ID] != "alpha" {
		t.Fatalf("expected user_swarms to list the new swarm: %+v", created.UserSwarms)
	}
	raw := decode[map[string]any](t, rec)
	for _, key := range []string{"swarm_id", "name", "goal", "spawned", "swarm_users", "user_swarms"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("create response missing %s: %v", key, raw)
		}
	}

	rec = do(t, h, http.MethodPost, PathStartSwarm, "tok-alice", map[string]string{"swarm_id": created.ID, "goal": "G"})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, PathGetSwarm, "tok-alice", map[string]string{"swarm_id": created.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	got := decode[domain.Swarm](t, rec)
	if !got.Spawned || got.Goal != "G" || got.Name != "alpha" {
		t.Fatalf("unexpected swarm %+v", got)
	}

	rec = do(t, h, http.MethodGet, PathListSwarms, "tok-alice", nil)
	if rec.Code != http.StatusOK || !decode[userSwarmsResponse](t, rec).UserSwarms.Contains(created.ID) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, PathDeleteSwarm, "tok-alice", map[string]string{"swarm_id": created.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if decode[userSwarmsResponse](t, rec).UserSwarms.Contains(created.ID) {
		t.Fatalf("delete must retract the id: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, PathGetSwarm, "tok-alice", map[string]string{"swarm_id": created.ID})
	if rec.Code != http.StatusForbidden || errorMessage(t, rec) != "User is not part of the swarm" {
		t.Fatalf("get after delete: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetEmptyIDReturnsSentinel(t *testing.T) {
	for name, h := range map[string]*Handler{
		"configured":   newTestHandler(t),
		"unconfigured": NewHandler(nil, auth.NewStaticTokens(map[string]string{"tok-alice": "alice"})),
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, PathGetSwarm, "tok-alice", map[string]string{})
			if rec.Code != http.StatusOK {
				t.Fatalf("get sentinel: %d %s", rec.Code, rec.Body.String())
			}
			want := `{"swarm_id":"","name":"","goal":"","spawned":false,"swarm_users":[]}`
			if strings.TrimSpace(rec.Body.String()) != want {
				t.Fatalf("got %s want %s", rec.Body.String(), want)
			}
		})
	}
}

func TestErrorStatuses(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, PathCreateSwarm, "tok-alice", map[string]string{"swarm_name": "alpha"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d", rec.Code)
	}
	swarmID := decode[createResponse](t, rec).ID

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		body    any
		status  int
		message string
	}{
		{"no token", http.MethodPost, PathCreateSwarm, "", map[string]string{"swarm_name": "x"}, http.StatusUnauthorized, ""},
		{"bad token", http.MethodPost, PathCreateSwarm, "nope", map[string]string{"swarm_name": "x"}, http.StatusUnauthorized, ""},
		{"missing name", http.MethodPost, PathCreateSwarm, "tok-alice", map[string]string{}, http.StatusBadRequest, "Swarm name is required"},
		{"unknown user", http.MethodPost, PathCreateSwarm, "tok-ghost", map[string]string{"swarm_name": "x"}, http.StatusNotFound, "User not found"},
		{"missing delete id", http.MethodDelete, PathDeleteSwarm, "tok-alice", map[string]string{}, http.StatusBadRequest, "Swarm ID is required"},
		{"delete non-member", http.MethodDelete, PathDeleteSwarm, "tok-bob", map[string]string{"swarm_id": swarmID}, http.StatusForbidden, "User is not part of the swarm"},
		{"missing goal", http.MethodPost, PathStartSwarm, "tok-alice", map[string]string{"swarm_id": swarmID}, http.StatusBadRequest, "Swarm goal is required"},
		{"start non-member", http.MethodPost, PathStartSwarm, "tok-bob", map[string]string{"swarm_id": swarmID, "goal": "G"}, http.StatusForbidden, ""},
		{"get never joined", http.MethodPost, PathGetSwarm, "tok-bob", map[string]string{"swarm_id": "s1"}, http.StatusForbidden, ""},
		{"list unknown user", http.MethodGet, PathListSwarms, "tok-ghost", nil, http.StatusNotFound, "User not found"},
		{"wrong method", http.MethodGet, PathCreateSwarm, "tok-alice", nil, http.StatusMethodNotAllowed, ""},
		{"unknown path", http.MethodPost, "/spawn/join_swarm", "tok-alice", nil, http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.token, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.message != "" && errorMessage(t, rec) != tc.message {
				t.Fatalf("message %q want %q", errorMessage(t, rec), tc.message)
			}
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, PathCreateSwarm, strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnconfiguredServiceReturns500(t *testing.T) {
	h := NewHandler(nil, auth.NewStaticTokens(map[string]string{"tok-alice": "alice"}))
	rec := do(t, h, http.MethodPost, PathCreateSwarm, "tok-alice", map[string]string{"swarm_name": "alpha"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(errorMessage(t, rec), "configuration") {
		t.Fatalf("expected configuration error, got %s", rec.Body.String())
	}

	noIdentity := NewHandler(nil, nil)
	if rec := do(t, noIdentity, http.MethodGet, PathListSwarms, "tok-alice", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without identity provider, got %d", rec.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestHandler(t)
	if rec := do(t, h, http.MethodGet, PathHealth, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, PathDeleteSwarm, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing allow-origin: %v", rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("missing allow-methods: %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, PathDeleteSwarm, nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for unlisted origin")
	}
}

type failingLifecycle struct{ Lifecycle }

func (failingLifecycle) ListSwarms(context.Context, string) (domain.UserIndex, error) {
	return domain.UserIndex{}, domain.StoreError{Op: "get", Key: "alice", Err: errors.New("disk gone")}
}

func TestStoreFailureReturns500(t *testing.T) {
	h := NewHandler(failingLifecycle{}, auth.NewStaticTokens(map[string]string{"tok-alice": "alice"}))
	rec := do(t, h, http.MethodGet, PathListSwarms, "tok-alice", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{auth.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ValidationError{Field: "goal"}, http.StatusBadRequest},
		{domain.AuthorizationError{}, http.StatusForbidden},
		{domain.NotFoundError{Kind: domain.KindSwarm, ID: "s"}, http.StatusNotFound},
		{domain.ConfigurationError{Setting: "x"}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d want %d", tc.err, got, tc.want)
		}
	}
}
