package handlers

import (
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/session"
)

// State is the recognition state shared by all handlers. The logging session
// is not safe for concurrent use, so every access goes through mu.
type State struct {
	mu        sync.Mutex
	logging   *session.Logging
	threshold float64
	logPath   string
}

// NewState wraps a started logging session for the HTTP API.
func NewState(logging *session.Logging, threshold float64, logPath string) *State {
	if !logging.Active() {
		logging.Start()
	}
	return &State{
		logging:   logging,
		threshold: threshold,
		logPath:   logPath,
	}
}

// Store returns the current identity snapshot.
func (s *State) Store() *identity.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logging.Store()
}

// AddIdentity saves one embedding for label and swaps in the reloaded store.
// The lock is held from save to swap, so concurrent registrations never
// replace a newer snapshot with an older one. similar is a registered label
// that folds to the same name, reported only for a new label.
func (s *State) AddIdentity(label string, embedding []float64) (store *identity.Store, similar string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.logging.Store()
	if !current.Exists(label) {
		similar, _ = current.FindSimilarLabel(label)
	}
	if _, err := current.Add(label, embedding); err != nil {
		return nil, "", err
	}
	store, err = current.Reload()
	if err != nil {
		return nil, "", fmt.Errorf("reloading identities: %w", err)
	}
	s.logging.SetStore(store)
	return store, similar, nil
}

// Recognize runs the logging session on one frame worth of faces.
func (s *State) Recognize(faces []encoder.Face, now time.Time) (session.FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logging.HandleFaces(faces, now)
}

// Threshold returns the match threshold.
func (s *State) Threshold() float64 {
	return s.threshold
}

// LogPath returns the CSV log location.
func (s *State) LogPath() string {
	return s.logPath
}
