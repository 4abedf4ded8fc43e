package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/auth"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/config"
	"github.com/vovakirdan/campus-server/internal/core"
	"github.com/vovakirdan/campus-server/internal/metrics"
	"github.com/vovakirdan/campus-server/internal/ratelimit"
	"github.com/vovakirdan/campus-server/internal/service/courses"
	"github.com/vovakirdan/campus-server/internal/service/invites"
	"github.com/vovakirdan/campus-server/internal/service/storage"
	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
)

type testEnv struct {
	router  http.Handler
	store   *sqlstore.Store
	auth    *auth.Service
	metrics *metrics.Metrics
	bus     *bus.Memory
	cancel  context.CancelFunc
}

// newTestEnv wires the full handler over an in-memory store and bus.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlstore.New(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "test",
		Audience:   "test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})

	signer, err := storage.NewSigner(storage.Config{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "campus",
	})
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	disabledLogger := zerolog.New(nil)
	m := metrics.New()
	b := bus.NewMemory(bus.Options{OnDrop: m.Dropped})
	cfg := config.Default()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := NewHandler(Deps{
		Auth:        authService,
		Courses:     courses.New(st),
		Invites:     invites.New(st),
		Storage:     signer,
		Chat:        core.NewChat(core.ChatConfig{}, authService, st, b, m, &disabledLogger),
		Limiter:     ratelimit.NewMemory(),
		Metrics:     m,
		BaseContext: ctx,
	}, &cfg, &disabledLogger)

	return &testEnv{router: router, store: st, auth: authService, metrics: m, bus: b, cancel: cancel}
}

// do sends a request through the router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

// login registers a user with the given role and returns an access token.
func (e *testEnv) login(t *testing.T, email string, role store.Role) (*store.User, string) {
	t.Helper()
	ctx := context.Background()

	user, err := e.auth.Register(ctx, email, "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	if role != store.RoleUser {
		if err := e.store.UpdateUserRole(ctx, user.ID, role); err != nil {
			t.Fatalf("failed to set role: %v", err)
		}
		user.Role = role
	}

	tokens, err := e.auth.Login(ctx, email, "password123")
	if err != nil {
		t.Fatalf("failed to login %s: %v", email, err)
	}
	return user, tokens.Access
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", resp.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}
