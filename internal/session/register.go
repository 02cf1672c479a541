package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
)

// ErrNoFaceDetected is returned when a capture contains no face.
var ErrNoFaceDetected = errors.New("no face detected")

// Registration collects embeddings of one person. Every successful capture is
// persisted immediately; Finish returns a store that includes them.
type Registration struct {
	store    *identity.Store
	label    string
	existing bool
	paths    []string
}

// NewRegistration validates the name and prepares a registration for it.
func NewRegistration(store *identity.Store, name string) (*Registration, error) {
	label, err := identity.NormalizeLabel(name)
	if err != nil {
		return nil, err
	}
	return &Registration{
		store:    store,
		label:    label,
		existing: store.Exists(label),
	}, nil
}

// Label returns the normalized name being registered.
func (r *Registration) Label() string {
	return r.label
}

// Existing reports whether the label already had embeddings when the
// registration started. New captures are added next to them.
func (r *Registration) Existing() bool {
	return r.existing
}

// Captured returns the number of embeddings saved so far.
func (r *Registration) Captured() int {
	return len(r.paths)
}

// Paths returns the files written by this registration.
func (r *Registration) Paths() []string {
	return r.paths
}

// Capture saves the embedding of the largest face and returns its path.
func (r *Registration) Capture(faces []encoder.Face) (string, error) {
	face, ok := largestFace(faces)
	if !ok {
		return "", ErrNoFaceDetected
	}
	path, err := r.store.Add(r.label, face.Embedding)
	if err != nil {
		return "", fmt.Errorf("saving embedding for %s: %w", r.label, err)
	}
	r.paths = append(r.paths, path)
	return path, nil
}

// CaptureFrame detects faces in an encoded image and captures the largest.
func (r *Registration) CaptureFrame(ctx context.Context, det Detector, frame []byte) (string, error) {
	faces, err := det.DetectFaces(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("detecting faces: %w", err)
	}
	return r.Capture(faces)
}

// Finish reloads the identity store from disk.
func (r *Registration) Finish() (*identity.Store, error) {
	store, err := r.store.Reload()
	if err != nil {
		return nil, fmt.Errorf("reloading identities: %w", err)
	}
	return store, nil
}

// largestFace picks the face with the biggest box area. The first one wins ties.
func largestFace(faces []encoder.Face) (encoder.Face, bool) {
	if len(faces) == 0 {
		return encoder.Face{}, false
	}
	best := faces[0]
	bestArea := best.Box.Dx() * best.Box.Dy()
	for _, f := range faces[1:] {
		if area := f.Box.Dx() * f.Box.Dy(); area > bestArea {
			best, bestArea = f, area
		}
	}
	return best, true
}
