package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/signalhub/internal/signal"
)

const (
	// DefaultLimit is used when GetHistory is called with limit <= 0.
	DefaultLimit = 50

	// MaxLimit caps the number of rows GetHistory returns.
	MaxLimit = 200
)

// Stored value kinds.
const (
	kindNumber = "number"
	kindString = "string"
)

var (
	// ErrEmptyID is returned when a signal id is required but empty.
	ErrEmptyID = errors.New("history: signal id is required")

	// ErrInvalidValue is returned when recording a signal without a value.
	ErrInvalidValue = errors.New("history: signal has no value")

	// ErrInvalidRetention is returned by Prune for a non-positive duration.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)

// Entry is one recorded signal change.
type Entry struct {
	// Seq is the auto-incremented row id.
	Seq int64 `json:"seq"`

	signal.Signal
}

// Repository stores and retrieves signal history in SQLite.
// It is safe for concurrent use.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over an open database that has had the
// signal_history migration applied.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts one history row for sig.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sig: Accepted signal as delivered by the store
//
// Returns:
//   - error: ErrEmptyID, ErrInvalidValue, or the underlying database error
func (r *Repository) Record(ctx context.Context, sig signal.Signal) error {
	if sig.ID == "" {
		return ErrEmptyID
	}
	if !sig.Value.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidValue, sig.ID)
	}

	kind, text := encodeValue(sig.Value)
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signal_history (id, source, kind, value, unit, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sig.ID,
		sig.Source,
		kind,
		text,
		sig.Unit,
		ts.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting signal history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a signal, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Namespaced signal id
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: History entries, possibly empty
//   - error: ErrEmptyID or the underlying query error
func (r *Repository) GetHistory(ctx context.Context, id string, limit int) ([]Entry, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, source, kind, value, unit, timestamp
		 FROM signal_history
		 WHERE id = ?
		 ORDER BY timestamp DESC, seq DESC
		 LIMIT ?`,
		id,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying signal history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e     Entry
			kind  string
			value string
			nanos int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Source, &kind, &value, &e.Unit, &nanos); err != nil {
			return nil, fmt.Errorf("scanning signal history: %w", err)
		}
		e.Value, err = decodeValue(kind, value)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", e.Seq, err)
		}
		e.Timestamp = time.Unix(0, nanos).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signal history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries whose timestamp is older than now-olderThan.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention or the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().Add(-olderThan).UTC().UnixNano()
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM signal_history WHERE timestamp < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting signal history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func encodeValue(v signal.Value) (kind, text string) {
	if f, ok := v.Float(); ok {
		return kindNumber, strconv.FormatFloat(f, 'g', -1, 64)
	}
	return kindString, v.Text()
}

func decodeValue(kind, text string) (signal.Value, error) {
	switch kind {
	case kindNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return signal.Value{}, fmt.Errorf("parsing stored number %q: %w", text, err)
		}
		return signal.Number(f), nil
	case kindString:
		return signal.String(text), nil
	default:
		return signal.Value{}, fmt.Errorf("unknown stored kind %q", kind)
	}
}
