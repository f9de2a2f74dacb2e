package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerEmitsGCPSeverityAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Component: "wificore-api", Level: "info", Output: &buf})
	require.NoError(t, err)

	logger.Warn("radius slow", zap.String("tenant_id", "t-1"))
	logger.Debug("dropped")
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "WARNING", entry["severity"])
	require.Equal(t, "wificore-api", entry["component"])
	require.Equal(t, "radius slow", entry["message"])
	require.Equal(t, "t-1", entry["tenant_id"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "loud"})
	require.Error(t, err)
}

func TestAuditNamesLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Audit(zap.New(core)).Info("scope bypassed")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, AuditLoggerName, entries[0].LoggerName)

	require.NotPanics(t, func() { Audit(nil).Info("ignored") })
}

func TestWithEnrichesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := With(WithLogger(t.Context(), base), nil, zap.String("tenant_id", "abc"))
	logger, ok := FromContext(ctx)
	require.True(t, ok)
	logger.Info("hello")

	require.Equal(t, "abc", logs.All()[0].ContextMap()["tenant_id"])

	// Without a stored logger the fallback is used; without either ctx is unchanged.
	ctx = With(t.Context(), base, zap.String("k", "v"))
	_, ok = FromContext(ctx)
	require.True(t, ok)

	plain := t.Context()
	require.Equal(t, plain, With(plain, nil))
}

func TestRequestLoggerLogsCompletionWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		FromRequest(r, nil).Info("inside")
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	require.NotEmpty(t, inside[0].ContextMap()["request_id"])

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.EqualValues(t, http.StatusNoContent, completed[0].ContextMap()["status"])

	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestFromRequestFallsBackToNop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NotNil(t, FromRequest(req, nil))
}
