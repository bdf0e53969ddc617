// Package journal records publish runs and their deliveries in SQLite.
//
// A run is one invocation of the publish loop; each scheduled send becomes a
// delivery row with its outcome, deadline and publish time. The schema lives
// in the migrations package.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout keeps sub-second precision so lateness stays measurable.
const timeLayout = time.RFC3339Nano

// Page size limits for ListDeliveries.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("journal: run not found")

// Status is the terminal state recorded for a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusDrained   Status = "drained"
	StatusFailed    Status = "failed"
)

// Run is one invocation of the publish loop.
type Run struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Topic      string    `json:"topic"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Status     Status    `json:"status"`
}

// Delivery is one scheduled publish.
type Delivery struct {
	RunID       string    `json:"run_id"`
	Seq         int       `json:"seq"`
	Topic       string    `json:"topic"`
	PayloadSize int       `json:"payload_size"`
	Outcome     string    `json:"outcome"` // delivered, resent or failed
	Error       string    `json:"error,omitempty"`
	Deadline    time.Time `json:"deadline"`
	PublishedAt time.Time `json:"published_at"`
}

// Filter controls which deliveries ListDeliveries returns.
type Filter struct {
	Outcome string // optional
	Limit   int    // default 100, max 1000
	Offset  int
}

// Repository defines the journal operations.
type Repository interface {
	StartRun(ctx context.Context, clientID, topic string) (*Run, error)
	RecordDelivery(ctx context.Context, d *Delivery) error
	FinishRun(ctx context.Context, runID string, sent, failed int, status Status) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListDeliveries(ctx context.Context, runID string, filter Filter) ([]Delivery, error)
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// StartRun inserts a new run in the running state.
func (r *SQLiteRepository) StartRun(ctx context.Context, clientID, topic string) (*Run, error) {
	run := &Run{
		ID:        "run-" + uuid.NewString(),
		ClientID:  clientID,
		Topic:     topic,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, client_id, topic, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ClientID, run.Topic, run.StartedAt.Format(timeLayout), string(run.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// RecordDelivery inserts one delivery row. PublishedAt defaults to now.
func (r *SQLiteRepository) RecordDelivery(ctx context.Context, d *Delivery) error {
	if d.PublishedAt.IsZero() {
		d.PublishedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deliveries (run_id, seq, topic, payload_size, outcome, error, deadline, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Seq, d.Topic, d.PayloadSize, d.Outcome,
		nullableString(d.Error),
		d.Deadline.UTC().Format(timeLayout),
		d.PublishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery %d: %w", d.Seq, err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (r *SQLiteRepository) FinishRun(ctx context.Context, runID string, sent, failed int, status Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, sent = ?, failed = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), sent, failed, string(status), runID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun loads a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var status string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, topic, started_at, finished_at, sent, failed, status FROM runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.ClientID, &run.Topic, &startedAt, &finishedAt, &run.Sent, &run.Failed, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	run.Status = Status(status)
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing run start %q: %w", startedAt, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt.String); err != nil {
			return nil, fmt.Errorf("parsing run finish %q: %w", finishedAt.String, err)
		}
	}
	return &run, nil
}

// ListDeliveries returns a run's deliveries in sequence order.
func (r *SQLiteRepository) ListDeliveries(ctx context.Context, runID string, filter Filter) ([]Delivery, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := `SELECT run_id, seq, topic, payload_size, outcome, error, deadline, published_at
		FROM deliveries WHERE run_id = ?`
	args := []any{runID}
	if filter.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	query += " ORDER BY seq LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var errText sql.NullString
		var deadline, publishedAt string

		if err := rows.Scan(&d.RunID, &d.Seq, &d.Topic, &d.PayloadSize, &d.Outcome,
			&errText, &deadline, &publishedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.Error = errText.String
		if d.Deadline, err = time.Parse(timeLayout, deadline); err != nil {
			return nil, fmt.Errorf("parsing deadline %q: %w", deadline, err)
		}
		if d.PublishedAt, err = time.Parse(timeLayout, publishedAt); err != nil {
			return nil, fmt.Errorf("parsing publish time %q: %w", publishedAt, err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// nullableString maps an empty string to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
