package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-logger/internal/attendance"
)

const defaultLogLimit = 100

// LogsHandler serves the attendance log.
type LogsHandler struct {
	state *State
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(state *State) *LogsHandler {
	return &LogsHandler{state: state}
}

// LogsResponse is a window of the log, oldest first.
type LogsResponse struct {
	Total   int                 `json:"total"`
	Records []attendance.Record `json:"records"`
}

// List returns the newest log rows. limit=0 returns everything.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := attendance.ReadAll(h.state.LogPath())
	if err != nil {
		log.Printf("logs: reading %s: %v", h.state.LogPath(), err)
		respondError(w, http.StatusInternalServerError, "failed to read log")
		return
	}

	tail := attendance.Tail(records, limit)
	if tail == nil {
		tail = []attendance.Record{}
	}
	respondJSON(w, http.StatusOK, LogsResponse{Total: len(records), Records: tail})
}
