package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dasudiy/scratchpadsharp/internal/app/services/executions"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage/memory"
	"github.com/dasudiy/scratchpadsharp/internal/scratch"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	resolver := refs.NewResolver(refs.CacheDir{Root: t.TempDir()}, nil)
	svc := executions.New(scratch.NewPipeline(resolver, nil), memory.New(), nil)
	return NewHandler(svc, nil)
}

func TestRunExecution(t *testing.T) {
	h := newTestHandler(t)

	body := `{"source": "System.out(\"hi\");", "timeout_seconds": 30}`
	req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "hi", resp.Output)
	require.NotEmpty(t, resp.ID)

	// The record is retrievable afterwards.
	get := httptest.NewRequest(http.MethodGet, "/executions/"+resp.ID, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, get)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunExecution_CompileFailure(t *testing.T) {
	h := newTestHandler(t)

	body := `{"source": "let broken = ;"}`
	req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Diagnostics)
	require.NotEmpty(t, resp.Error)
}

func TestRunExecution_BadPayload(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListExecutions_EmptyIsArray(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/executions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetExecution_NotFound(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scratchpad_")
}

func TestStreamExecution(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/executions/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(runRequest{
		Source: `System.outLine("first");System.outLine("second");`,
	}))

	var outputs []string
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "output" {
			outputs = append(outputs, msg.Text)
			continue
		}
		require.Equal(t, "result", msg.Type)
		require.NotNil(t, msg.Result)
		require.True(t, msg.Result.Success)
		break
	}

	// Fragments arrived before the final result, one per write.
	require.Equal(t, []string{"first\n", "second\n"}, outputs)
}
