// Package attendance writes the append-only CSV log of recognized and
// detected faces.
package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// TimeLayout is the timestamp format of the Timestamp column.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the first row of every log file.
var Header = []string{"Timestamp", "Name", "Status"}

// Status is the outcome written for a face.
type Status string

const (
	StatusRecognized Status = "Recognized"
	StatusDetected   Status = "Detected"
)

// Record is one log row.
type Record struct {
	Time   time.Time `json:"time"`
	Name   string    `json:"name"`
	Status Status    `json:"status"`
}

func (r Record) row() []string {
	return []string{r.Time.Format(TimeLayout), r.Name, string(r.Status)}
}

// Logger appends records to a CSV file. The file is opened and closed on every
// write so a record survives a crash right after Append returns.
type Logger struct {
	path string
}

// NewLogger returns a logger for path. Nothing is created until the first Append.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Init creates the log with its header row if it does not exist yet.
func (l *Logger) Init() error {
	f, err := l.open()
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	return nil
}

// Append writes one record, creating the file with a header first when needed.
func (l *Logger) Append(rec Record) error {
	f, err := l.open()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(rec.row()); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing log record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flushing log record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	return nil
}

// open opens the log for appending and writes the header into an empty file.
func (l *Logger) open() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("checking log file: %w", err)
	}
	if info.Size() > 0 {
		return f, nil
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing log header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing log header: %w", err)
	}
	return f, nil
}

// ReadAll parses every record of the log in write order. A missing file is an
// empty log.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	var records []Record
	line := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing log file: %w", err)
		}
		line++
		if line == 1 && row[0] == Header[0] {
			continue
		}

		ts, err := time.ParseInLocation(TimeLayout, row[0], time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp on line %d: %w", line, err)
		}
		records = append(records, Record{Time: ts, Name: row[1], Status: Status(row[2])})
	}
	return records, nil
}

// Tail returns the last limit records, or all of them when limit <= 0.
func Tail(records []Record, limit int) []Record {
	if limit <= 0 || len(records) <= limit {
		return records
	}
	return records[len(records)-limit:]
}
