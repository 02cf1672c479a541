package handlers

import (
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/match"
)

// RecognitionHandler classifies embeddings and runs the logging session.
type RecognitionHandler struct {
	state *State
	now   func() time.Time
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(state *State) *RecognitionHandler {
	return &RecognitionHandler{state: state, now: time.Now}
}

// ClassifyRequest holds one embedding to classify.
type ClassifyRequest struct {
	Embedding []float64 `json:"embedding"`
}

// ClassifyResponse is the nearest identity. Distance is null for an empty store.
type ClassifyResponse struct {
	Label    string   `json:"label"`
	Known    bool     `json:"known"`
	Distance *float64 `json:"distance"`
}

// RecognizeFace is one detected face as sent by a remote camera.
type RecognizeFace struct {
	BBox      []int     `json:"bbox"` // [x1, y1, x2, y2]
	Embedding []float64 `json:"embedding"`
}

// RecognizeRequest is one frame worth of faces.
type RecognizeRequest struct {
	Faces []RecognizeFace `json:"faces"`
}

// AnnotationResponse describes what happened to one face.
type AnnotationResponse struct {
	BBox     []int    `json:"bbox"`
	Label    string   `json:"label"`
	Known    bool     `json:"known"`
	Outcome  string   `json:"outcome"`
	Distance *float64 `json:"distance"`
	Status   string   `json:"status"`
}

// RecognizeResponse is the outcome of one frame.
type RecognizeResponse struct {
	Annotations []AnnotationResponse `json:"annotations"`
	Records     []attendance.Record  `json:"records"`
	Status      string               `json:"status"`
	Errors      []string             `json:"errors,omitempty"`
}

// Classify returns the nearest identity without writing to the log.
func (h *RecognitionHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	res, err := match.Classify(req.Embedding, h.state.Store(), h.state.Threshold())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ClassifyResponse{
		Label:    res.Label,
		Known:    res.Known(),
		Distance: finiteOrNil(res.Distance),
	})
}

// Recognize classifies the faces of one frame, applies the cooldown and
// appends log rows. Log write failures are reported in errors while the
// annotations are still returned.
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	faces := make([]encoder.Face, 0, len(req.Faces))
	for i, f := range req.Faces {
		if len(f.BBox) != 4 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("face %d: bbox must have 4 values", i))
			return
		}
		if len(f.Embedding) == 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("face %d: embedding is required", i))
			return
		}
		faces = append(faces, encoder.Face{
			Box:       image.Rect(f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]),
			Embedding: f.Embedding,
		})
	}

	res, err := h.state.Recognize(faces, h.now())

	resp := RecognizeResponse{
		Annotations: make([]AnnotationResponse, 0, len(res.Annotations)),
		Records:     res.Records,
		Status:      res.Status,
	}
	if resp.Records == nil {
		resp.Records = []attendance.Record{}
	}
	for _, a := range res.Annotations {
		resp.Annotations = append(resp.Annotations, AnnotationResponse{
			BBox:     bboxOf(a.Box),
			Label:    a.Label,
			Known:    a.Known(),
			Outcome:  a.Outcome.String(),
			Distance: finiteOrNil(a.Distance),
			Status:   a.Status,
		})
	}

	if err != nil {
		log.Printf("recognize: %v", err)
		resp.Errors = splitJoined(err)
	}
	respondJSON(w, http.StatusOK, resp)
}

// splitJoined flattens an errors.Join result into messages.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
