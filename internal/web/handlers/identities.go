package handlers

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/kozaktomas/face-logger/internal/identity"
)

// IdentitiesHandler handles registered identity endpoints.
type IdentitiesHandler struct {
	state *State
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(state *State) *IdentitiesHandler {
	return &IdentitiesHandler{state: state}
}

// IdentityResponse is one registered person.
type IdentityResponse struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// CreateIdentityRequest registers one embedding for a person.
type CreateIdentityRequest struct {
	Label     string    `json:"label"`
	Embedding []float64 `json:"embedding"`
}

// CreateIdentityResponse is returned after a registration.
type CreateIdentityResponse struct {
	Label        string `json:"label"`
	Samples      int    `json:"samples"`
	SimilarLabel string `json:"similar_label,omitempty"`
}

// ConflictResponse is a pair of embeddings of different people closer than the threshold.
type ConflictResponse struct {
	LabelA   string  `json:"label_a"`
	FileA    string  `json:"file_a"`
	LabelB   string  `json:"label_b"`
	FileB    string  `json:"file_b"`
	Distance float64 `json:"distance"`
}

// List returns every label with its sample count, sorted by label.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	counts := h.state.Store().CountByLabel()

	result := make([]IdentityResponse, 0, len(counts))
	for label, n := range counts {
		result = append(result, IdentityResponse{Label: label, Samples: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Label < result[j].Label })

	respondJSON(w, http.StatusOK, result)
}

// Create saves an embedding under a label and reloads the store so the next
// recognition sees it.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	label, err := identity.NormalizeLabel(req.Label)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reloaded, similar, err := h.state.AddIdentity(label, req.Embedding)
	if err != nil {
		if errors.Is(err, identity.ErrWrongDimension) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("identities: registering %s: %v", sanitizeForLog(label), err)
		respondError(w, http.StatusInternalServerError, "failed to save embedding")
		return
	}

	respondJSON(w, http.StatusCreated, CreateIdentityResponse{
		Label:        label,
		Samples:      reloaded.CountByLabel()[label],
		SimilarLabel: similar,
	})
}

// Audit lists cross-label embedding pairs within the match threshold.
// Optional query parameter k sets the neighbors checked per embedding.
func (h *IdentitiesHandler) Audit(w http.ResponseWriter, r *http.Request) {
	k := 5
	if s := r.URL.Query().Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = n
	}

	conflicts := identity.Audit(h.state.Store(), h.state.Threshold(), k, nil)

	result := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		result = append(result, ConflictResponse{
			LabelA:   c.A.Label,
			FileA:    c.A.Path,
			LabelB:   c.B.Label,
			FileB:    c.B.Path,
			Distance: c.Distance,
		})
	}
	respondJSON(w, http.StatusOK, result)
}
