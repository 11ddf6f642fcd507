package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/smsleopard-intake/internal/db"
	"github.com/unclebandit/smsleopard-intake/internal/model"
)

// OutcomeBatch is one open batch transaction against the outcome table.
type OutcomeBatch interface {
	// TryInsert stores o unless its dedup key already exists. On insert the
	// assigned id is written back to o.
	TryInsert(ctx context.Context, o *model.MessageOutcome) (bool, error)
	Commit() error
	Rollback() error
}

type OutcomeRepositoryInterface interface {
	BeginBatch(ctx context.Context) (OutcomeBatch, error)
	ListAll(ctx context.Context) ([]model.MessageOutcome, error)
	ListRecent(ctx context.Context, limit int) ([]model.MessageOutcome, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	Snapshot(ctx context.Context, recentLimit int) (*OutcomeSnapshot, error)
	Ping(ctx context.Context) error
}

// OutcomeSnapshot is a status count and the newest outcomes read at one point in time.
type OutcomeSnapshot struct {
	Counts map[model.Status]int
	Recent []model.MessageOutcome
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type OutcomeRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewOutcomeRepository(conn *sql.DB, dialect db.Dialect) *OutcomeRepository {
	return &OutcomeRepository{DB: conn, Dialect: dialect}
}

func (r *OutcomeRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *OutcomeRepository) BeginBatch(ctx context.Context) (OutcomeBatch, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &outcomeBatch{tx: tx, insertQuery: db.Rebind(r.Dialect, insertOutcomeQuery)}, nil
}

// The unique constraint makes lookup and insert a single statement: a
// conflicting row yields no RETURNING row. Under postgres a concurrent
// uncommitted insert of the same key blocks this one until it resolves.
const insertOutcomeQuery = `
	INSERT INTO messages (phone_number, message, status, error_message)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (phone_number, message) DO NOTHING
	RETURNING id
`

type outcomeBatch struct {
	tx          *sql.Tx
	insertQuery string
}

func (b *outcomeBatch) TryInsert(ctx context.Context, o *model.MessageOutcome) (bool, error) {
	errMsg := sql.NullString{String: o.ErrorMessage, Valid: o.ErrorMessage != ""}

	var id int64
	err := b.tx.QueryRowContext(ctx, b.insertQuery, o.Destination, o.Message, string(o.Status), errMsg).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert outcome: %w", err)
	}
	o.ID = id
	return true, nil
}

func (b *outcomeBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback is safe to call after Commit.
func (b *outcomeBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

// ListAll returns every outcome in ascending id order.
func (r *OutcomeRepository) ListAll(ctx context.Context) ([]model.MessageOutcome, error) {
	return listOutcomes(ctx, r.DB, `
		SELECT id, phone_number, message, status, error_message
		FROM messages
		ORDER BY id ASC
	`)
}

// ListRecent returns the newest outcomes first.
func (r *OutcomeRepository) ListRecent(ctx context.Context, limit int) ([]model.MessageOutcome, error) {
	return r.listRecent(ctx, r.DB, limit)
}

func (r *OutcomeRepository) listRecent(ctx context.Context, q queryer, limit int) ([]model.MessageOutcome, error) {
	if limit <= 0 {
		return []model.MessageOutcome{}, nil
	}
	return listOutcomes(ctx, q, db.Rebind(r.Dialect, `
		SELECT id, phone_number, message, status, error_message
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`), limit)
}

func listOutcomes(ctx context.Context, q queryer, query string, args ...any) ([]model.MessageOutcome, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []model.MessageOutcome{}
	for rows.Next() {
		var (
			o      model.MessageOutcome
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Destination, &o.Message, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = model.Status(status)
		o.ErrorMessage = errMsg.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// CountByStatus returns a count for every known status, zero when absent.
func (r *OutcomeRepository) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	return countByStatus(ctx, r.DB)
}

func countByStatus(ctx context.Context, q queryer) (map[model.Status]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.Status]int, len(model.Statuses))
	for _, s := range model.Statuses {
		stats[s] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		stats[model.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return stats, nil
}

// Snapshot reads counts and the newest outcomes in one transaction so the two
// agree even while batches commit. Postgres needs repeatable read for that;
// SQLite transactions here take the write lock up front and already serialize.
func (r *OutcomeRepository) Snapshot(ctx context.Context, recentLimit int) (*OutcomeSnapshot, error) {
	var opts *sql.TxOptions
	if r.Dialect == db.DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	counts, err := countByStatus(ctx, tx)
	if err != nil {
		return nil, err
	}
	recent, err := r.listRecent(ctx, tx, recentLimit)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("end snapshot: %w", err)
	}
	return &OutcomeSnapshot{Counts: counts, Recent: recent}, nil
}

var _ OutcomeRepositoryInterface = (*OutcomeRepository)(nil)
