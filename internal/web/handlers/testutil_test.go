package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/session"
)

// testState creates a started state over a temporary 2-d store and log file.
func testState(t *testing.T, people map[string][]float64) *State {
	t.Helper()
	root := t.TempDir()
	facesDir := filepath.Join(root, "faces")
	for label, emb := range people {
		if _, err := identity.Save(facesDir, label, emb); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}
	store, err := identity.Load(facesDir, 2)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	logPath := filepath.Join(root, "logs.csv")
	logging := session.NewLogging(store, attendance.NewLogger(logPath), session.Options{
		Threshold: 0.6,
		Cooldown:  time.Hour,
	})
	return NewState(logging, 0.6, logPath)
}

// jsonRequest builds a request with a JSON encoded body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody decodes a recorded JSON response.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}
