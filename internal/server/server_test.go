package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mohit-Baraiya11/DPR/internal/config"
	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

func newTestConfig(t *testing.T) *config.AppConfig {
	cfg := config.DefaultConfig()
	cfg.Data.DataDir = t.TempDir()
	cfg.Oracle.Provider = "none"
	cfg.Oracle.MaxRetries = 0
	return cfg
}

func TestServer_HealthAndCORS(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Server.AllowedOrigins = []string{"https://dpr.example.com"}

	srv, err := NewServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://dpr.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://dpr.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/process", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewOracle_DisabledFailsAsOracleFailure(t *testing.T) {
	cfg := newTestConfig(t)
	interpreter, answerer := NewOracle(context.Background(), cfg.Oracle, zap.NewNop())

	_, err := interpreter.Interpret(context.Background(), "prompt")
	var failure *model.OracleFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Attempts)

	_, err = answerer.Answer(context.Background(), "system", "prompt")
	require.ErrorAs(t, err, &failure)
}
