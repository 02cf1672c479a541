// Package identity holds the registered face embeddings, one directory per
// person and one .npy file per captured sample.
package identity

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sbinet/npyio"
)

const embeddingExt = ".npy"

// ErrWrongDimension is returned when an embedding does not have the store's length.
var ErrWrongDimension = errors.New("embedding has wrong dimension")

// KnownEmbedding is one registered sample of a person.
type KnownEmbedding struct {
	Label     string
	Embedding []float64
	Path      string
}

// Store is the ordered, immutable set of known embeddings loaded from disk.
// Registration never patches a Store; callers Reload after Add.
type Store struct {
	dir        string
	dim        int
	embeddings []KnownEmbedding
}

// Load reads every label directory under dir. Directories and files are
// visited in name order, which makes the load order stable across runs.
// Files that cannot be parsed are skipped with a warning.
func Load(dir string, dim int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating faces directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading faces directory: %w", err)
	}

	s := &Store{dir: dir, dim: dim}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		personDir := filepath.Join(dir, label)
		if FoldLabel(label) == FoldLabel(UnknownLabel) {
			log.Printf("Warning: %q is reserved for unrecognized faces, its matches are logged as Recognized; rename the directory", personDir)
		}

		files, err := os.ReadDir(personDir)
		if err != nil {
			log.Printf("Warning: cannot read faces of %s: %v", label, err)
			continue
		}

		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), embeddingExt) {
				continue
			}
			path := filepath.Join(personDir, f.Name())
			vec, err := readEmbedding(path)
			if err != nil {
				log.Printf("Warning: error loading encoding for %s: %v", label, err)
				continue
			}
			if dim > 0 && len(vec) != dim {
				log.Printf("Warning: skipping %s: %v (got %d, want %d)", path, ErrWrongDimension, len(vec), dim)
				continue
			}
			s.embeddings = append(s.embeddings, KnownEmbedding{Label: label, Embedding: vec, Path: path})
		}
	}

	return s, nil
}

// Reload returns a freshly loaded copy of the store.
func (s *Store) Reload() (*Store, error) {
	return Load(s.dir, s.dim)
}

// Add persists one embedding under the label's directory and returns the
// written path. The receiver is not modified.
func (s *Store) Add(label string, embedding []float64) (string, error) {
	if s.dim > 0 && len(embedding) != s.dim {
		return "", fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(embedding), s.dim)
	}
	return Save(s.dir, label, embedding)
}

// Save writes one embedding file for label below dir.
func Save(dir, label string, embedding []float64) (string, error) {
	label, err := NormalizeLabel(label)
	if err != nil {
		return "", err
	}
	if len(embedding) == 0 {
		return "", fmt.Errorf("%w: empty embedding", ErrWrongDimension)
	}

	personDir := filepath.Join(dir, label)
	if err := os.MkdirAll(personDir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", label, err)
	}

	// UUIDv7 is time ordered, so name order matches registration order.
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating file name: %w", err)
	}
	path := filepath.Join(personDir, "face_"+id.String()+embeddingExt)

	if err := writeEmbedding(path, embedding); err != nil {
		return "", err
	}
	return path, nil
}

func readEmbedding(path string) ([]float64, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the faces directory listing
	if err != nil {
		return nil, fmt.Errorf("opening embedding file: %w", err)
	}
	defer f.Close()

	var vec []float64
	if err := npyio.Read(f, &vec); err != nil {
		return nil, fmt.Errorf("decoding embedding file: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding file is empty")
	}
	return vec, nil
}

func writeEmbedding(path string, embedding []float64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path is built from a validated label
	if err != nil {
		return fmt.Errorf("creating embedding file: %w", err)
	}
	if err := npyio.Write(f, embedding); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("encoding embedding file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing embedding file: %w", err)
	}
	return nil
}

// Dir returns the root directory the store was loaded from.
func (s *Store) Dir() string { return s.dir }

// Dim returns the required embedding length (0 means unchecked).
func (s *Store) Dim() int { return s.dim }

// Len returns the number of loaded embeddings.
func (s *Store) Len() int { return len(s.embeddings) }

// Embeddings returns the loaded embeddings in load order. The slice must not be modified.
func (s *Store) Embeddings() []KnownEmbedding { return s.embeddings }

// Labels returns the distinct labels in load order.
func (s *Store) Labels() []string {
	var labels []string
	seen := make(map[string]bool)
	for _, e := range s.embeddings {
		if !seen[e.Label] {
			seen[e.Label] = true
			labels = append(labels, e.Label)
		}
	}
	return labels
}

// CountByLabel returns the number of samples per label.
func (s *Store) CountByLabel() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.embeddings {
		counts[e.Label]++
	}
	return counts
}

// Exists reports whether a directory for label already exists, with or
// without loaded samples.
func (s *Store) Exists(label string) bool {
	info, err := os.Stat(filepath.Join(s.dir, label))
	return err == nil && info.IsDir()
}

// FindSimilarLabel returns an existing label that folds to the same name,
// e.g. "jiri" for "Jiří".
func (s *Store) FindSimilarLabel(label string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	folded := FoldLabel(label)
	for _, e := range entries {
		if e.IsDir() && FoldLabel(e.Name()) == folded {
			return e.Name(), true
		}
	}
	return "", false
}
