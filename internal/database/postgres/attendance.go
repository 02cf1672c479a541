package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-logger/internal/attendance"
)

const mirrorTimeout = 5 * time.Second

// AttendanceRepository mirrors attendance records into the attendance_log table.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Insert stores one record.
func (r *AttendanceRepository) Insert(ctx context.Context, rec attendance.Record) error {
	_, err := r.pool.exec(ctx,
		`INSERT INTO attendance_log (logged_at, name, status) VALUES ($1, $2, $3)`,
		rec.Time, rec.Name, string(rec.Status))
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// Append stores one record with a short timeout so a slow database does not
// stall the capture loop.
func (r *AttendanceRepository) Append(rec attendance.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	return r.Insert(ctx, rec)
}

// Recent returns the newest records, oldest first.
func (r *AttendanceRepository) Recent(ctx context.Context, limit int) ([]attendance.Record, error) {
	rows, err := r.pool.query(ctx, `
		SELECT logged_at, name, status FROM (
			SELECT id, logged_at, name, status
			FROM attendance_log
			ORDER BY logged_at DESC, id DESC
			LIMIT $1
		) recent
		ORDER BY logged_at, id
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var status string
		if err := rows.Scan(&rec.Time, &rec.Name, &status); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		rec.Status = attendance.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}
