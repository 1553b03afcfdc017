package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/realtime"
)

type stubTransport struct{}

func (stubTransport) Open(ctx context.Context, channels []string, token string) (realtime.Stream, error) {
	return nil, errors.New("unreachable in this test")
}

func TestConnectionStatus_IdleBeforeConnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	manager := realtime.NewManager(stubTransport{}, eventbus.New(logger), logger, time.Millisecond, 5)
	handler := NewStatusHandler(manager, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status realtime.ConnectionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.IsConnected)
	assert.Equal(t, realtime.StateIdle, status.State)
	assert.Zero(t, status.ReconnectAttempts)
}

func TestHealthEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	manager := realtime.NewManager(stubTransport{}, eventbus.New(logger), logger, time.Millisecond, 5)
	handler := NewStatusHandler(manager, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
