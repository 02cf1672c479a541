package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestIdentitiesHandler_List(t *testing.T) {
	state := testState(t, map[string][]float64{"Bob": {1, 1}, "Alice": {0, 0}})
	handler := NewIdentitiesHandler(state)

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var result []IdentityResponse
	decodeBody(t, rec, &result)
	if len(result) != 2 || result[0].Label != "Alice" || result[0].Samples != 1 {
		t.Errorf("unexpected identities %+v", result)
	}
}

func TestIdentitiesHandler_List_Empty(t *testing.T) {
	handler := NewIdentitiesHandler(testState(t, nil))

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %q", rec.Body.String())
	}
}

func TestIdentitiesHandler_Create(t *testing.T) {
	state := testState(t, map[string][]float64{"Jiří": {0, 0}})
	handler := NewIdentitiesHandler(state)

	rec := httptest.NewRecorder()
	handler.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/identities", CreateIdentityRequest{
		Label:     "  jiri ",
		Embedding: []float64{3, 3},
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result CreateIdentityResponse
	decodeBody(t, rec, &result)
	if result.Label != "jiri" || result.Samples != 1 {
		t.Errorf("unexpected response %+v", result)
	}
	if result.SimilarLabel != "Jiří" {
		t.Errorf("expected similar label warning, got %q", result.SimilarLabel)
	}

	// The state now recognizes the new embedding.
	if state.Store().CountByLabel()["jiri"] != 1 {
		t.Error("state store was not reloaded")
	}
}

func TestIdentitiesHandler_Create_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"empty label", CreateIdentityRequest{Label: " ", Embedding: []float64{0, 0}}},
		{"path label", CreateIdentityRequest{Label: "../etc", Embedding: []float64{0, 0}}},
		{"reserved label", CreateIdentityRequest{Label: "unknown", Embedding: []float64{0, 0}}},
		{"wrong dimension", CreateIdentityRequest{Label: "Carol", Embedding: []float64{0, 0, 0}}},
		{"not json", "{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := testState(t, nil)
			handler := NewIdentitiesHandler(state)

			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(s))
			} else {
				req = jsonRequest(t, http.MethodPost, "/api/v1/identities", tt.body)
			}
			rec := httptest.NewRecorder()
			handler.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if state.Store().Len() != 0 {
				t.Error("nothing should be stored")
			}
		})
	}
}

func TestIdentitiesHandler_Audit(t *testing.T) {
	state := testState(t, map[string][]float64{
		"Alice":  {0, 0},
		"Alicia": {0.1, 0},
		"Bob":    {5, 5},
	})
	handler := NewIdentitiesHandler(state)

	rec := httptest.NewRecorder()
	handler.Audit(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities/audit?k=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var result []ConflictResponse
	decodeBody(t, rec, &result)
	if len(result) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", result)
	}
	labels := result[0].LabelA + "," + result[0].LabelB
	if labels != "Alice,Alicia" && labels != "Alicia,Alice" {
		t.Errorf("unexpected conflict %+v", result[0])
	}

	rec = httptest.NewRecorder()
	handler.Audit(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities/audit?k=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad k, got %d", rec.Code)
	}
}

func TestIdentitiesHandler_Create_Concurrent(t *testing.T) {
	state := testState(t, nil)
	handler := NewIdentitiesHandler(state)

	const n = 20
	reqs := make([]*http.Request, n)
	for i := range n {
		reqs[i] = jsonRequest(t, http.MethodPost, "/api/v1/identities", CreateIdentityRequest{
			Label:     fmt.Sprintf("Person %d", i),
			Embedding: []float64{float64(i), 0},
		})
	}

	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.Create(rec, reqs[i])
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated {
			t.Errorf("request %d: status %d", i, code)
		}
	}
	// Every registration is visible; no reload overwrote a newer one.
	if got := state.Store().Len(); got != n {
		t.Errorf("store has %d embeddings, want %d", got, n)
	}
}
