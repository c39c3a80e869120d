package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-plaza/internal/broadcast"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/config"
	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/presence"
	"github.com/npezzotti/go-plaza/internal/rooms"
	"github.com/npezzotti/go-plaza/internal/server"
	"github.com/npezzotti/go-plaza/internal/stats"
	"github.com/npezzotti/go-plaza/internal/testutil"
	"github.com/npezzotti/go-plaza/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

const moderatorId = 99

type testApp struct {
	app      *GoPlazaApp
	repo     *database.MemoryGoPlazaRepository
	registry *presence.Registry
	handler  http.Handler
}

// newTestApp runs a real ChatServer over the in-memory repository.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	repo := database.NewMemoryGoPlazaRepository()
	registry := presence.NewRegistry()
	dir := rooms.NewDirectory(logger, repo)
	svc := chat.NewService(logger, repo, repo)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	su.On("Set", mock.Anything, mock.Anything).Maybe()
	su.On("Add", mock.Anything, mock.Anything).Maybe()

	cs := server.NewChatServer(logger, registry, dir, svc, broadcast.NopPublisher{}, su)
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	cfg := config.Default()
	cfg.SigningKey = testSigningKey
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Auth.Moderators = []int64{moderatorId}

	app := NewGoPlazaApp(logger, cs, registry, repo, dir, svc, nil, cfg)
	return &testApp{app: app, repo: repo, registry: registry, handler: app.Handler()}
}

func tokenFor(t *testing.T, userId int64) string {
	t.Helper()
	token, err := NewToken(testSigningKey, types.Identity{UserId: userId, DisplayName: "user"}, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request as userId; zero sends it unauthenticated.
func (ta *testApp) do(t *testing.T, method, path string, userId int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if userId != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userId))
	}

	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
