package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/auth/jwt"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/lifecycle"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/pkg/metrics"
)

type engineFunc func(ctx context.Context, sessionID string, op *gate.Operation) error

func (f engineFunc) Execute(ctx context.Context, sessionID string, op *gate.Operation) error {
	return f(ctx, sessionID, op)
}

type nullDB struct{}

func (nullDB) RestoreAll(context.Context) ([]registry.Session, error) { return nil, nil }
func (nullDB) FlushAll(context.Context, []registry.Session) error     { return nil }
func (nullDB) Upsert(context.Context, registry.Session) error         { return nil }
func (nullDB) Delete(context.Context, string) error                   { return nil }
func (nullDB) Close() error                                           { return nil }

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *registry.Registry, *event.MemoryBus) {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	m := metrics.New(cfg.Metrics)
	bus := event.NewMemoryBus(logger, m, cfg.Bus.QueueSize)
	reg := registry.New(logger, m)
	eng := engineFunc(func(_ context.Context, sessionID string, op *gate.Operation) error {
		bus.Publish(sessionID, "agent_message", map[string]any{"kind": op.Kind.String()})
		return nil
	})
	g := gate.New(logger, m, bus, reg, eng, cfg.Gate)
	coord := lifecycle.New(logger, nullDB{}, reg, bus, g, cfg.Gate)

	s, err := New(logger, cfg, m, bus, reg, g, coord)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.CloseAll(ctx)
	})
	return s, reg, bus
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	w := doJSON(t, s.Router(), http.MethodGet, "/health_check", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionCRUD(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	w := doJSON(t, s.Router(), http.MethodPost, "/api/sessions", map[string]any{"owner_id": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created registry.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)
	assert.Equal(t, "alice", created.OwnerID)

	w = doJSON(t, s.Router(), http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s.Router(), http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	w = doJSON(t, s.Router(), http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s.Router(), http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s.Router(), http.MethodDelete, "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitOperation(t *testing.T) {
	s, reg, _ := newTestServer(t, nil)
	sess := reg.Create("alice")

	w := doJSON(t, s.Router(), http.MethodPost, "/api/sessions/"+sess.ID+"/operations",
		map[string]any{"kind": "user_input", "payload": map[string]any{"text": "hi"}})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, s.Router(), http.MethodPost, "/api/sessions/unknown/operations",
		map[string]any{"kind": "user_input"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s.Router(), http.MethodPost, "/api/sessions/"+sess.ID+"/operations",
		map[string]any{"kind": "reboot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// interrupt is out-of-band: nothing running means interrupted=false
	w = doJSON(t, s.Router(), http.MethodPost, "/api/sessions/"+sess.ID+"/operations",
		map[string]any{"kind": "interrupt"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"interrupted":false`)

	reg.Deactivate(sess.ID)
	w = doJSON(t, s.Router(), http.MethodPost, "/api/sessions/"+sess.ID+"/operations",
		map[string]any{"kind": "user_input"})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestSSEStream(t *testing.T) {
	s, reg, bus := newTestServer(t, nil)
	sess := reg.Create("alice")

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	requireSSEEvent(t, scanner, "connected")

	// subscription is live once the connected frame arrives
	bus.Publish(sess.ID, "agent_message", map[string]any{"text": "hello"})
	data := requireSSEEvent(t, scanner, "agent_message")
	assert.Contains(t, data, "hello")
}

func TestSSEUnknownSession(t *testing.T) {
	s, reg, _ := newTestServer(t, nil)
	w := doJSON(t, s.Router(), http.MethodGet, "/api/sessions/unknown/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	sess := reg.Create("alice")
	reg.Deactivate(sess.ID)
	w = doJSON(t, s.Router(), http.MethodGet, "/api/sessions/"+sess.ID+"/events", nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

// requireSSEEvent scans forward to the next frame of the given type and
// returns its data line.
func requireSSEEvent(t *testing.T, scanner *bufio.Scanner, eventType string) string {
	t.Helper()
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: "+eventType {
			found = true
			continue
		}
		if found && strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("no %q event on stream", eventType)
	return ""
}

func TestWebSocketStream(t *testing.T) {
	s, reg, bus := newTestServer(t, nil)
	sess := reg.Create("alice")

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + sess.ID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// wait for the subscription to register before publishing
	require.Eventually(t, func() bool {
		return bus.IsConnected(sess.ID)
	}, 2*time.Second, 10*time.Millisecond)
	bus.Publish(sess.ID, "agent_message", map[string]any{"text": "hello"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev event.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "agent_message", ev.Type)
	assert.Equal(t, "hello", ev.Data["text"])
}

func TestAuth(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	s, _, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.JWT.SecretKey = secret
		cfg.Auth.JWT.Duration = time.Hour
	})

	w := doJSON(t, s.Router(), http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	svc, err := jwt.NewService(jwt.Config{SecretKey: secret, Duration: time.Hour})
	require.NoError(t, err)
	aliceTok, err := svc.GenerateToken("alice")
	require.NoError(t, err)
	bobTok, err := svc.GenerateToken("bob")
	require.NoError(t, err)

	authed := func(method, path, token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w
	}

	// the owner comes from the token, not the body
	w = authed(http.MethodPost, "/api/sessions", aliceTok, map[string]any{"owner_id": "mallory"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created registry.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.OwnerID)

	// listings are scoped per owner
	w = authed(http.MethodGet, "/api/sessions", bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.ID)

	// only the owner can delete
	w = authed(http.MethodDelete, "/api/sessions/"+created.ID, bobTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = authed(http.MethodDelete, "/api/sessions/"+created.ID, aliceTok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
