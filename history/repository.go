package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-blur/profiling"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DefaultListLimit is how many runs the history listing shows.
const DefaultListLimit = 20

// DefaultRetention is how many runs Prune keeps.
const DefaultRetention = 1000

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrDatabaseClosed = errors.New("history: database is closed")

// Run is one invocation of the blur pipeline.
type Run struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	InputFile  string
	OutputFile string

	Width    int
	Height   int
	Channels int

	FilterWidth int
	BandCount   int
	QueueCount  int
	DigitGroups int

	Status       string
	ErrorMessage string
	// Span is the time from first submission to last join.
	Span time.Duration

	Workloads []Workload
}

// Workload is the timing of one band or the digit workload within a run.
type Workload struct {
	Name       string
	Queue      int
	Device     string
	Wall       time.Duration
	DeviceTime time.Duration
}

// WorkloadsFromSummary converts recorded timings into history rows.
func WorkloadsFromSummary(s profiling.Summary) []Workload {
	out := make([]Workload, len(s.Workloads))
	for i, w := range s.Workloads {
		out[i] = Workload{
			Name:       w.Name,
			Queue:      w.Queue,
			Device:     w.Device,
			Wall:       w.Wall(),
			DeviceTime: w.DeviceElapsed(),
		}
	}
	return out
}

// Repository reads and writes runs.
type Repository struct {
	db *Database
}

// NewRepository creates a new Repository instance.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn() (*sql.DB, error) {
	if r.db == nil {
		return nil, ErrDatabaseClosed
	}
	conn := r.db.DB()
	if conn == nil {
		return nil, ErrDatabaseClosed
	}
	return conn, nil
}

// InsertRun stores run and its workloads in one transaction. A zero ID or
// CreatedAt is filled in.
func (r *Repository) InsertRun(ctx context.Context, run Run) (uuid.UUID, error) {
	conn, err := r.conn()
	if err != nil {
		return uuid.Nil, err
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, input_file, output_file, width, height, channels,
			filter_width, band_count, queue_count, digit_groups,
			status, error_message, span_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(),
		run.CreatedAt.UTC().Format(timeLayout),
		run.InputFile,
		run.OutputFile,
		run.Width,
		run.Height,
		run.Channels,
		run.FilterWidth,
		run.BandCount,
		run.QueueCount,
		run.DigitGroups,
		run.Status,
		nullString(run.ErrorMessage),
		int64(run.Span),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for _, w := range run.Workloads {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workloads (run_id, name, queue, device, wall_ns, device_ns)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID.String(), w.Name, w.Queue, w.Device, int64(w.Wall), int64(w.DeviceTime),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert workload %s: %w", w.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns up to limit runs, newest first, without workloads.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, created_at, input_file, output_file, width, height, channels,
			filter_width, band_count, queue_count, digit_groups,
			status, error_message, span_ns
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			id        string
			createdAt string
			errMsg    sql.NullString
			spanNS    int64
		)
		err := rows.Scan(
			&id, &createdAt, &run.InputFile, &run.OutputFile,
			&run.Width, &run.Height, &run.Channels,
			&run.FilterWidth, &run.BandCount, &run.QueueCount, &run.DigitGroups,
			&run.Status, &errMsg, &spanNS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		run.ErrorMessage = errMsg.String
		run.Span = time.Duration(spanNS)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// WorkloadsForRun returns the workloads of run id in insertion order.
func (r *Repository) WorkloadsForRun(ctx context.Context, id uuid.UUID) ([]Workload, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT name, queue, device, wall_ns, device_ns
		FROM workloads
		WHERE run_id = ?
		ORDER BY id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query workloads: %w", err)
	}
	defer rows.Close()

	var workloads []Workload
	for rows.Next() {
		var w Workload
		var wallNS, devNS int64
		if err := rows.Scan(&w.Name, &w.Queue, &w.Device, &wallNS, &devNS); err != nil {
			return nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		w.Wall = time.Duration(wallNS)
		w.DeviceTime = time.Duration(devNS)
		workloads = append(workloads, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workloads: %w", err)
	}
	return workloads, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
