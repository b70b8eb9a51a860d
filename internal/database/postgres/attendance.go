package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const recordColumns = `id, user_id, to_char(work_date, 'YYYY-MM-DD'), time_in, time_out, status, created_at, updated_at`

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// The (user_id, work_date) unique constraint and the conditional close-out
// make concurrent transitions on one key safe across processes.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func scanRecordRow(scanner interface{ Scan(...any) error }) (*attendance.Record, error) {
	var rec attendance.Record
	var timeIn sql.NullTime
	var timeOut sql.NullTime
	var status string

	err := scanner.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Date,
		&timeIn,
		&timeOut,
		&status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}

	rec.Status = attendance.Status(status)
	if timeIn.Valid {
		t := timeIn.Time
		rec.TimeIn = &t
	}
	if timeOut.Valid {
		t := timeOut.Time
		rec.TimeOut = &t
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*attendance.Record, error) {
	var records []*attendance.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// Get returns the record for (userID, date), or nil if none exists.
func (r *AttendanceRepository) Get(ctx context.Context, userID, date string) (*attendance.Record, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE user_id = $1 AND work_date = $2::date",
		userID, date)
	rec, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// GetRecord returns a record by ID.
func (r *AttendanceRepository) GetRecord(ctx context.Context, id string) (*attendance.Record, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+recordColumns+" FROM attendance_records WHERE id = $1", id)
	rec, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	return rec, err
}

// ListByDate returns the records of one date, or every record when date is empty.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]*attendance.Record, error) {
	query := "SELECT " + recordColumns + " FROM attendance_records"
	var args []any
	if date != "" {
		query += " WHERE work_date = $1::date"
		args = append(args, date)
	}
	query += " ORDER BY work_date DESC, time_in"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByUser returns a user's records within [from, to]. Empty bounds are open.
func (r *AttendanceRepository) ListByUser(ctx context.Context, userID, from, to string) ([]*attendance.Record, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	if from != "" {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("work_date >= $%d::date", len(args)))
	}
	if to != "" {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("work_date <= $%d::date", len(args)))
	}

	query := "SELECT " + recordColumns + " FROM attendance_records WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY work_date"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user attendance: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Create inserts a new record. It returns attendance.ErrConflict when the
// (user, date) key is already taken.
func (r *AttendanceRepository) Create(ctx context.Context, rec *attendance.Record) error {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, user_id, work_date, time_in, time_out, status, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, work_date) DO NOTHING
	`,
		rec.ID,
		rec.UserID,
		rec.Date,
		rec.TimeIn,
		rec.TimeOut,
		string(rec.Status),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return attendance.ErrConflict
	}
	return nil
}

// CloseOut sets the time-out only if it is still empty.
func (r *AttendanceRepository) CloseOut(ctx context.Context, rec *attendance.Record) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance_records
		SET time_out = $2, updated_at = $3
		WHERE id = $1 AND time_out IS NULL
	`, rec.ID, rec.TimeOut, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("close out attendance record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return attendance.ErrConflict
	}
	return nil
}

// Replace overwrites the mutable fields of an existing record.
func (r *AttendanceRepository) Replace(ctx context.Context, rec *attendance.Record) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance_records
		SET time_in = $2, time_out = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, rec.ID, rec.TimeIn, rec.TimeOut, string(rec.Status), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace attendance record: %w", err)
	}
	return requireAffected(result)
}

// Import inserts a record keeping its ID, skipping keys that already exist.
// It reports whether the row was inserted.
func (r *AttendanceRepository) Import(ctx context.Context, rec *attendance.Record) (bool, error) {
	err := r.Create(ctx, rec)
	if errors.Is(err, attendance.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}
