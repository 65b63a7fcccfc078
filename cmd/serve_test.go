package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
)

func TestBuildRouter_Health(t *testing.T) {
	router := buildRouter(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_StatusEmpty(t *testing.T) {
	router := buildRouter(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Forward *checkpoint.Checkpoint `json:"forward"`
		Reverse *checkpoint.Checkpoint `json:"reverse"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Nil(t, resp.Forward)
	assert.Nil(t, resp.Reverse)
}

func TestBuildRouter_StatusWithCheckpoint(t *testing.T) {
	dir := t.TempDir()
	mgr := checkpoint.NewManager(dir, false)
	_, err := mgr.Create(2, 40, 42, "forward")
	require.NoError(t, err)
	mgr.Update(func(cp *checkpoint.Checkpoint) { cp.Stats.Processed = 7 })
	require.NoError(t, mgr.Save())

	router := buildRouter(dir)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Forward *checkpoint.Checkpoint `json:"forward"`
		Reverse *checkpoint.Checkpoint `json:"reverse"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Forward)
	assert.Equal(t, "forward", resp.Forward.Direction)
	assert.Equal(t, 7, resp.Forward.Stats.Processed)
	assert.Equal(t, 42, resp.Forward.KnownTotalRows)
	assert.Nil(t, resp.Reverse)
}

func TestBuildRouter_CORSHeaders(t *testing.T) {
	router := buildRouter(t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
