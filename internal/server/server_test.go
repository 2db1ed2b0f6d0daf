package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynctest/asynctest/internal/agent"
	"github.com/asynctest/asynctest/internal/config"
	"github.com/asynctest/asynctest/internal/record"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Host:      "127.0.0.1",
		Port:      0,
		BackupDir: t.TempDir(),
	}
	ag := agent.New(cfg, nil, nil)
	reader := record.NewReader(nil, ag.Backup())
	return New(cfg, ag, reader)
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPingReportsMemory(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/ping", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	require.Contains(t, body, "memory_total")
	require.Contains(t, body, "memory_available")
	require.Contains(t, body, "memory_used")
	assert.Greater(t, body["memory_total"].(float64), 0.0)
}

func TestExecuteRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/execute", "{not json")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
}

func TestExecuteRejectsInvalidSubmission(t *testing.T) {
	s := newTestServer(t)
	// Well-formed JSON but missing the record half.
	rec := doRequest(s, http.MethodPost, "/execute", `{"exec": {"task_info": {"id": "t1", "hex_index": "abc"}}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "invalid task submission")
}

func TestRestoreRecordRequiresIndex(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/restore_record", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "record_backup_index")
}

func TestRestoreRecordUnknownIndex(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/restore_record", `{"record_backup_index": "record:404:zz"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
}

func TestRecordRPCRequiresName(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/rpc/record?record_backup_index=record:1:aa", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "name")
}

func TestRecordRPCUnknownOperation(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/rpc/record?name=telepathy&record_backup_index=record:1:aa", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
}
