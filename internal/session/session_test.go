package session

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/match"
)

type memorySink struct {
	records []attendance.Record
	err     error
}

func (m *memorySink) Append(rec attendance.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

type fakeDetector struct {
	faces []encoder.Face
	err   error
	calls int
}

func (f *fakeDetector) DetectFaces(_ context.Context, _ []byte) ([]encoder.Face, error) {
	f.calls++
	return f.faces, f.err
}

func newStore(t *testing.T, people map[string][]float64) *identity.Store {
	t.Helper()
	dir := t.TempDir()
	for label, emb := range people {
		if _, err := identity.Save(dir, label, emb); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}
	s, err := identity.Load(dir, 2)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return s
}

func face(x, y float64, box image.Rectangle) encoder.Face {
	return encoder.Face{Box: box, Embedding: []float64{x, y}}
}

var defaultOpts = Options{Threshold: 0.6, Cooldown: time.Hour}

func TestHandleFaces_RecognizedThenCooldown(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	alice := face(0.1, 0, image.Rect(0, 0, 10, 10))

	res, err := s.HandleFaces([]encoder.Face{alice}, t0)
	if err != nil {
		t.Fatalf("HandleFaces() error: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Name != "Alice" || res.Records[0].Status != attendance.StatusRecognized {
		t.Fatalf("unexpected records %+v", res.Records)
	}
	if res.Status != "Welcome, Alice!" {
		t.Errorf("status = %q", res.Status)
	}
	if !res.Annotations[0].Known() {
		t.Error("expected known annotation")
	}

	// 30 minutes later the cooldown still holds.
	res, err = s.HandleFaces([]encoder.Face{alice}, t0.Add(1800*time.Second))
	if err != nil {
		t.Fatalf("HandleFaces() error: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no records during cooldown, got %+v", res.Records)
	}
	if res.Annotations[0].Outcome != OutcomeCooldown {
		t.Errorf("outcome = %v, want cooldown", res.Annotations[0].Outcome)
	}
	if res.Status != "Alice (logged within the last hour)" {
		t.Errorf("status = %q", res.Status)
	}

	// Exactly one cooldown later is still suppressed; one second after is not.
	res, _ = s.HandleFaces([]encoder.Face{alice}, t0.Add(3600*time.Second))
	if len(res.Records) != 0 {
		t.Error("expected suppression at exactly the cooldown")
	}
	res, _ = s.HandleFaces([]encoder.Face{alice}, t0.Add(3601*time.Second))
	if len(res.Records) != 1 {
		t.Error("expected a new record after the cooldown")
	}

	if len(sink.records) != 2 {
		t.Errorf("sink has %d records, want 2", len(sink.records))
	}
	if s.Recognized() != 1 {
		t.Errorf("Recognized() = %d, want 1", s.Recognized())
	}
}

func TestHandleFaces_UnknownLoggedEveryFrame(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	stranger := face(5, 5, image.Rect(0, 0, 10, 10))
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)

	for i := range 3 {
		res, err := s.HandleFaces([]encoder.Face{stranger}, t0.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("HandleFaces() error: %v", err)
		}
		if res.Status != "Unknown face detected" {
			t.Errorf("status = %q", res.Status)
		}
		if res.Annotations[0].Known() {
			t.Error("stranger should not be known")
		}
	}

	if len(sink.records) != 3 {
		t.Fatalf("expected 3 Detected rows, got %d", len(sink.records))
	}
	for _, rec := range sink.records {
		if rec.Name != match.Unknown || rec.Status != attendance.StatusDetected {
			t.Errorf("unexpected record %+v", rec)
		}
	}
}

func TestHandleFaces_EmptyStoreIsUnknown(t *testing.T) {
	sink := &memorySink{}
	s := NewLogging(newStore(t, nil), sink, defaultOpts)
	s.Start()

	res, err := s.HandleFaces([]encoder.Face{face(0, 0, image.Rect(0, 0, 1, 1))}, time.Now())
	if err != nil {
		t.Fatalf("HandleFaces() error: %v", err)
	}
	if res.Annotations[0].Label != match.Unknown || len(sink.records) != 1 {
		t.Errorf("expected Unknown + Detected row, got %+v / %+v", res.Annotations, sink.records)
	}
}

func TestHandleFaces_MultipleFacesInOrder(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}, "Bob": {3, 3}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	res, err := s.HandleFaces([]encoder.Face{
		face(3, 3.1, image.Rect(0, 0, 5, 5)),
		face(9, 9, image.Rect(10, 0, 15, 5)),
		face(0, 0.1, image.Rect(20, 0, 25, 5)),
	}, time.Now())
	if err != nil {
		t.Fatalf("HandleFaces() error: %v", err)
	}

	var names []string
	for _, rec := range sink.records {
		names = append(names, rec.Name)
	}
	if got := strings.Join(names, ","); got != "Bob,Unknown,Alice" {
		t.Errorf("records = %s, want Bob,Unknown,Alice", got)
	}
	if res.Status != "Welcome, Alice!" {
		t.Errorf("status should follow the last face, got %q", res.Status)
	}
}

func TestHandleFaces_WriteFailureKeepsRetrying(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{err: errors.New("disk full")}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	alice := face(0, 0, image.Rect(0, 0, 1, 1))
	now := time.Now()

	res, err := s.HandleFaces([]encoder.Face{alice}, now)
	if err == nil {
		t.Fatal("expected write error")
	}
	if len(res.Annotations) != 1 {
		t.Error("annotations should survive a write failure")
	}

	sink.err = nil
	res, err = s.HandleFaces([]encoder.Face{alice}, now.Add(time.Second))
	if err != nil {
		t.Fatalf("HandleFaces() error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Error("failed write must not start the cooldown")
	}
}

func TestHandleFaces_MirrorFailureDoesNotBlockLog(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	mirror := &memorySink{err: errors.New("db down")}
	s := NewLogging(store, sink, defaultOpts, mirror)
	s.Start()

	now := time.Now()
	res, err := s.HandleFaces([]encoder.Face{face(0, 0, image.Rect(0, 0, 1, 1))}, now)
	if err == nil {
		t.Error("expected mirror error to be reported")
	}
	if len(sink.records) != 1 {
		t.Errorf("log should have the record, got %d", len(sink.records))
	}
	if res.Annotations[0].Outcome != OutcomeLogged {
		t.Errorf("outcome = %v, want logged", res.Annotations[0].Outcome)
	}

	// The log write succeeded, so the cooldown applies.
	res, _ = s.HandleFaces([]encoder.Face{face(0, 0, image.Rect(0, 0, 1, 1))}, now.Add(time.Minute))
	if res.Annotations[0].Outcome != OutcomeCooldown || len(sink.records) != 1 {
		t.Errorf("expected cooldown after mirrored write, got %v with %d records", res.Annotations[0].Outcome, len(sink.records))
	}
}

func TestHandleFaces_DimensionMismatchRejected(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	bad := encoder.Face{Box: image.Rect(0, 0, 1, 1), Embedding: []float64{0, 0, 0}}
	res, err := s.HandleFaces([]encoder.Face{bad}, time.Now())
	if !errors.Is(err, match.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if res.Annotations[0].Outcome != OutcomeRejected {
		t.Errorf("outcome = %v, want rejected", res.Annotations[0].Outcome)
	}
	if len(sink.records) != 0 {
		t.Error("rejected face must not be logged")
	}
}

func TestLogging_StartStopResetsCooldown(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)

	alice := []encoder.Face{face(0, 0, image.Rect(0, 0, 1, 1))}
	if _, err := s.HandleFaces(alice, time.Now()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}

	now := time.Now()
	s.Start()
	s.HandleFaces(alice, now)
	s.Stop()
	if s.Active() {
		t.Error("session should be stopped")
	}
	s.Start()
	s.HandleFaces(alice, now.Add(time.Second))

	if len(sink.records) != 2 {
		t.Errorf("restart should clear the cooldown, got %d records", len(sink.records))
	}
}

func TestProcessFrame(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	det := &fakeDetector{faces: []encoder.Face{face(0, 0.2, image.Rect(0, 0, 1, 1))}}
	res, err := s.ProcessFrame(context.Background(), det, []byte("jpeg"), time.Now())
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	if len(res.Records) != 1 || det.calls != 1 {
		t.Errorf("records=%d calls=%d", len(res.Records), det.calls)
	}

	det.err = errors.New("encoder offline")
	if _, err := s.ProcessFrame(context.Background(), det, []byte("jpeg"), time.Now()); err == nil {
		t.Error("expected detector error")
	}
	if !s.Active() {
		t.Error("detector failure must not stop the session")
	}
}

func TestSetStore_NewIdentityRecognized(t *testing.T) {
	store := newStore(t, nil)
	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	carol := []encoder.Face{face(1, 1, image.Rect(0, 0, 1, 1))}
	s.HandleFaces(carol, time.Now())

	if _, err := store.Add("Carol", []float64{1, 1}); err != nil {
		t.Fatal(err)
	}
	reloaded, err := store.Reload()
	if err != nil {
		t.Fatal(err)
	}
	s.SetStore(reloaded)

	res, _ := s.HandleFaces(carol, time.Now())
	if res.Annotations[0].Label != "Carol" {
		t.Errorf("expected Carol after reload, got %q", res.Annotations[0].Label)
	}
}

func TestFormatCooldown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Hour, "hour"},
		{2 * time.Hour, "2 hours"},
		{30 * time.Minute, "30 minutes"},
		{5 * time.Second, "5s"},
	}
	for _, tt := range tests {
		if got := formatCooldown(tt.in); got != tt.want {
			t.Errorf("formatCooldown(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistration(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})

	if _, err := NewRegistration(store, "   "); !errors.Is(err, identity.ErrEmptyLabel) {
		t.Errorf("expected ErrEmptyLabel, got %v", err)
	}
	if _, err := NewRegistration(store, "unknown"); !errors.Is(err, identity.ErrReservedLabel) {
		t.Errorf("expected ErrReservedLabel, got %v", err)
	}

	reg, err := NewRegistration(store, " Carol ")
	if err != nil {
		t.Fatalf("NewRegistration() error: %v", err)
	}
	if reg.Label() != "Carol" || reg.Existing() {
		t.Errorf("label=%q existing=%v", reg.Label(), reg.Existing())
	}

	if _, err := reg.Capture(nil); !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}

	// The bigger face is the one being registered.
	det := &fakeDetector{faces: []encoder.Face{
		face(9, 9, image.Rect(0, 0, 5, 5)),
		face(2, 2, image.Rect(0, 0, 50, 50)),
	}}
	if _, err := reg.CaptureFrame(context.Background(), det, []byte("jpeg")); err != nil {
		t.Fatalf("CaptureFrame() error: %v", err)
	}
	if reg.Captured() != 1 || len(reg.Paths()) != 1 {
		t.Errorf("Captured() = %d", reg.Captured())
	}

	reloaded, err := reg.Finish()
	if err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if reloaded.CountByLabel()["Carol"] != 1 {
		t.Errorf("expected 1 Carol embedding, got %v", reloaded.CountByLabel())
	}
	res, err := match.Classify([]float64{2, 2}, reloaded, 0.6)
	if err != nil || res.Label != "Carol" {
		t.Errorf("Classify() = %+v, %v", res, err)
	}
}

func TestRegistration_ExistingLabel(t *testing.T) {
	store := newStore(t, map[string][]float64{"Alice": {0, 0}})
	reg, err := NewRegistration(store, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reg.Existing() {
		t.Error("expected Existing() for a registered label")
	}
}

func TestHandleFaces_PersonDirectoryNamedUnknown(t *testing.T) {
	dir := t.TempDir()
	if _, err := identity.Save(dir, "Placeholder", []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(dir, "Placeholder"), filepath.Join(dir, match.Unknown)); err != nil {
		t.Fatal(err)
	}
	store, err := identity.Load(dir, 2)
	if err != nil {
		t.Fatal(err)
	}

	sink := &memorySink{}
	s := NewLogging(store, sink, defaultOpts)
	s.Start()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	var outcomes []Outcome
	for i := range 3 {
		res, err := s.HandleFaces([]encoder.Face{face(0, 0, image.Rect(0, 0, 1, 1))}, t0.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		outcomes = append(outcomes, res.Annotations[0].Outcome)
	}

	want := []Outcome{OutcomeLogged, OutcomeCooldown, OutcomeCooldown}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("frame %d outcome = %v, want %v", i, outcomes[i], want[i])
		}
	}
	if len(sink.records) != 1 || sink.records[0].Status != attendance.StatusRecognized {
		t.Errorf("expected one Recognized row, got %+v", sink.records)
	}
}
