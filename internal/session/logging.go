// Package session runs the per-frame recognition and registration logic on
// top of an external face detector.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/match"
)

// ErrNotStarted is returned when frames are handled outside Start/Stop.
var ErrNotStarted = errors.New("logging session not started")

// Detector finds faces and computes their embeddings in an encoded image.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]encoder.Face, error)
}

// Sink receives written log records.
type Sink interface {
	Append(rec attendance.Record) error
}

// Outcome describes what happened to one face.
type Outcome int

const (
	OutcomeUnknown  Outcome = iota // no match, Detected row written
	OutcomeLogged                  // match, Recognized row written
	OutcomeCooldown                // match, still within cooldown, nothing written
	OutcomeRejected                // embedding could not be classified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeLogged:
		return "logged"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Annotation is the render command for one face.
type Annotation struct {
	Box      image.Rectangle
	Label    string
	Distance float64 // +Inf when the store is empty
	Outcome  Outcome
	Status   string
}

// Known reports whether the face matched a registered person.
func (a Annotation) Known() bool {
	return a.Outcome == OutcomeLogged || a.Outcome == OutcomeCooldown
}

// FrameResult is the outcome of one processed frame.
type FrameResult struct {
	Annotations []Annotation
	Records     []attendance.Record
	// Status is the status line of the last processed face, empty without faces.
	Status string
}

// Options holds the matching policy of a session.
type Options struct {
	Threshold float64
	Cooldown  time.Duration
}

// Logging owns the state of one "start logging" .. "stop logging" run: the
// identity store snapshot, the cooldown table and the log writers.
// It is not safe for concurrent use.
type Logging struct {
	store    *identity.Store
	log      Sink
	mirrors  []Sink
	opts     Options
	cooldown *match.CooldownTable
}

// NewLogging creates a stopped session. Records go to log first; mirrors only
// receive records the log accepted.
func NewLogging(store *identity.Store, log Sink, opts Options, mirrors ...Sink) *Logging {
	return &Logging{
		store:   store,
		log:     log,
		mirrors: mirrors,
		opts:    opts,
	}
}

// Start begins a run with an empty cooldown table.
func (s *Logging) Start() {
	s.cooldown = match.NewCooldownTable()
}

// Stop ends the run and forgets the cooldown state.
func (s *Logging) Stop() {
	s.cooldown = nil
}

// Active reports whether the session is between Start and Stop.
func (s *Logging) Active() bool {
	return s.cooldown != nil
}

// SetStore replaces the identity snapshot, e.g. after a registration.
func (s *Logging) SetStore(store *identity.Store) {
	s.store = store
}

// Store returns the current identity snapshot.
func (s *Logging) Store() *identity.Store {
	return s.store
}

// Recognized returns how many distinct people were logged in this run.
func (s *Logging) Recognized() int {
	if s.cooldown == nil {
		return 0
	}
	return s.cooldown.Len()
}

// ProcessFrame runs the detector on an encoded frame and handles its faces.
// A detector error discards the frame; the session stays usable.
func (s *Logging) ProcessFrame(ctx context.Context, det Detector, frame []byte, now time.Time) (FrameResult, error) {
	if !s.Active() {
		return FrameResult{}, ErrNotStarted
	}
	faces, err := det.DetectFaces(ctx, frame)
	if err != nil {
		return FrameResult{}, fmt.Errorf("detecting faces: %w", err)
	}
	return s.HandleFaces(faces, now)
}

// HandleFaces classifies every face and writes log records. Matches are
// gated by the per-label cooldown; unknown faces are logged as Detected on
// every call. Write failures are returned joined after all faces were
// handled, together with the annotations.
func (s *Logging) HandleFaces(faces []encoder.Face, now time.Time) (FrameResult, error) {
	if !s.Active() {
		return FrameResult{}, ErrNotStarted
	}

	var res FrameResult
	var errs []error

	for _, face := range faces {
		ann := Annotation{Box: face.Box}

		m, err := match.Classify(face.Embedding, s.store, s.opts.Threshold)
		if err != nil {
			ann.Label = match.Unknown
			ann.Outcome = OutcomeRejected
			ann.Status = "Face could not be compared"
			res.Annotations = append(res.Annotations, ann)
			res.Status = ann.Status
			errs = append(errs, err)
			continue
		}
		ann.Label = m.Label
		ann.Distance = m.Distance

		switch {
		case !m.Known():
			ann.Outcome = OutcomeUnknown
			ann.Status = "Unknown face detected"
			rec := attendance.Record{Time: now, Name: match.Unknown, Status: attendance.StatusDetected}
			if err := s.write(rec, &errs); err == nil {
				res.Records = append(res.Records, rec)
			}

		case s.cooldown.ShouldLog(m.Label, now, s.opts.Cooldown):
			rec := attendance.Record{Time: now, Name: m.Label, Status: attendance.StatusRecognized}
			if err := s.write(rec, &errs); err != nil {
				// Not marked, so the next frame tries again.
				ann.Outcome = OutcomeCooldown
				ann.Status = fmt.Sprintf("%s (not logged: write failed)", m.Label)
				break
			}
			s.cooldown.MarkLogged(m.Label, now)
			res.Records = append(res.Records, rec)
			ann.Outcome = OutcomeLogged
			ann.Status = fmt.Sprintf("Welcome, %s!", m.Label)

		default:
			ann.Outcome = OutcomeCooldown
			ann.Status = fmt.Sprintf("%s (logged within the last %s)", m.Label, formatCooldown(s.opts.Cooldown))
		}

		res.Annotations = append(res.Annotations, ann)
		res.Status = ann.Status
	}

	return res, errors.Join(errs...)
}

// write appends to the durable log, then to the mirrors. Every failure is
// collected into errs; only a log failure is returned, mirror failures do not
// undo the log write.
func (s *Logging) write(rec attendance.Record, errs *[]error) error {
	if err := s.log.Append(rec); err != nil {
		err = fmt.Errorf("writing log entry for %s: %w", rec.Name, err)
		*errs = append(*errs, err)
		return err
	}
	for _, m := range s.mirrors {
		if err := m.Append(rec); err != nil {
			*errs = append(*errs, fmt.Errorf("mirroring log entry for %s: %w", rec.Name, err))
		}
	}
	return nil
}

func formatCooldown(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
