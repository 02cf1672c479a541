package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
)

func TestRecognitionHandler_Classify(t *testing.T) {
	state := testState(t, map[string][]float64{"Alice": {0, 0}})
	handler := NewRecognitionHandler(state)

	tests := []struct {
		name      string
		embedding []float64
		wantLabel string
		wantKnown bool
	}{
		{"close to Alice", []float64{0.1, 0}, "Alice", true},
		{"stranger", []float64{4, 4}, "Unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Classify(rec, jsonRequest(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{Embedding: tt.embedding}))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var result ClassifyResponse
			decodeBody(t, rec, &result)
			if result.Label != tt.wantLabel || result.Known != tt.wantKnown {
				t.Errorf("unexpected result %+v", result)
			}
			if result.Distance == nil {
				t.Error("expected a distance")
			}
		})
	}

	// Classification never writes to the log.
	if _, err := os.Stat(state.LogPath()); !os.IsNotExist(err) {
		t.Errorf("classify must not create the log, stat err: %v", err)
	}
}

func TestRecognitionHandler_Classify_EmptyStore(t *testing.T) {
	handler := NewRecognitionHandler(testState(t, nil))

	rec := httptest.NewRecorder()
	handler.Classify(rec, jsonRequest(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{Embedding: []float64{1, 1}}))

	if !strings.Contains(rec.Body.String(), `"distance":null`) {
		t.Errorf("expected null distance, got %s", rec.Body.String())
	}
}

func TestRecognitionHandler_Classify_BadRequests(t *testing.T) {
	handler := NewRecognitionHandler(testState(t, map[string][]float64{"Alice": {0, 0}}))

	for name, body := range map[string]any{
		"missing embedding": ClassifyRequest{},
		"wrong dimension":   ClassifyRequest{Embedding: []float64{1, 2, 3}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Classify(rec, jsonRequest(t, http.MethodPost, "/api/v1/classify", body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestRecognitionHandler_Recognize(t *testing.T) {
	state := testState(t, map[string][]float64{"Alice": {0, 0}})
	handler := NewRecognitionHandler(state)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	handler.now = func() time.Time { return now }

	frame := RecognizeRequest{Faces: []RecognizeFace{
		{BBox: []int{0, 0, 10, 10}, Embedding: []float64{0.1, 0}},
		{BBox: []int{20, 0, 30, 10}, Embedding: []float64{5, 5}},
	}}

	rec := httptest.NewRecorder()
	handler.Recognize(rec, jsonRequest(t, http.MethodPost, "/api/v1/recognize", frame))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result RecognizeResponse
	decodeBody(t, rec, &result)
	if len(result.Annotations) != 2 {
		t.Fatalf("expected 2 annotations, got %+v", result.Annotations)
	}
	if result.Annotations[0].Label != "Alice" || result.Annotations[0].Outcome != "logged" {
		t.Errorf("unexpected first annotation %+v", result.Annotations[0])
	}
	if result.Annotations[1].Known || result.Annotations[1].Outcome != "unknown" {
		t.Errorf("unexpected second annotation %+v", result.Annotations[1])
	}
	if len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %+v", result.Records)
	}

	// Ten minutes later Alice is in cooldown, the stranger is logged again.
	now = now.Add(10 * time.Minute)
	rec = httptest.NewRecorder()
	handler.Recognize(rec, jsonRequest(t, http.MethodPost, "/api/v1/recognize", frame))
	decodeBody(t, rec, &result)
	if result.Annotations[0].Outcome != "cooldown" {
		t.Errorf("expected cooldown, got %+v", result.Annotations[0])
	}
	if len(result.Records) != 1 || result.Records[0].Status != attendance.StatusDetected {
		t.Errorf("expected one Detected record, got %+v", result.Records)
	}

	records, err := attendance.ReadAll(state.LogPath())
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 log rows, got %d", len(records))
	}
}

func TestRecognitionHandler_Recognize_NoFaces(t *testing.T) {
	handler := NewRecognitionHandler(testState(t, nil))

	rec := httptest.NewRecorder()
	handler.Recognize(rec, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{}))

	var result RecognizeResponse
	decodeBody(t, rec, &result)
	if len(result.Annotations) != 0 || len(result.Records) != 0 || result.Status != "" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRecognitionHandler_Recognize_BadFace(t *testing.T) {
	handler := NewRecognitionHandler(testState(t, nil))

	rec := httptest.NewRecorder()
	handler.Recognize(rec, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{
		Faces: []RecognizeFace{{BBox: []int{1, 2}, Embedding: []float64{0, 0}}},
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestRecognitionHandler_Recognize_WriteFailure(t *testing.T) {
	state := testState(t, map[string][]float64{"Alice": {0, 0}})
	// A directory in place of the log file makes every append fail.
	if err := os.Mkdir(state.LogPath(), 0o755); err != nil {
		t.Fatal(err)
	}
	handler := NewRecognitionHandler(state)

	rec := httptest.NewRecorder()
	handler.Recognize(rec, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{
		Faces: []RecognizeFace{{BBox: []int{0, 0, 1, 1}, Embedding: []float64{0, 0}}},
	}))

	var result RecognizeResponse
	decodeBody(t, rec, &result)
	if len(result.Errors) != 1 {
		t.Errorf("expected one error, got %v", result.Errors)
	}
	if len(result.Annotations) != 1 || result.Annotations[0].Label != "Alice" {
		t.Errorf("annotations should survive the failure, got %+v", result.Annotations)
	}
}

func TestSplitJoined(t *testing.T) {
	if got := splitJoined(os.ErrNotExist); len(got) != 1 {
		t.Errorf("splitJoined(single) = %v", got)
	}
}
