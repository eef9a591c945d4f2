package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store serves row queries, row writes, and procedure calls over a direct
// SQL connection.
type Store struct {
	conn    *Connection
	retrier *retry.Retrier
}

var (
	_ backend.RowQuerier      = (*Store)(nil)
	_ backend.RowWriter       = (*Store)(nil)
	_ backend.ProcedureCaller = (*Store)(nil)
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetrier overrides the default retry policy.
func WithRetrier(r *retry.Retrier) StoreOption {
	return func(s *Store) {
		s.retrier = r
	}
}

// NewStore creates a Store on top of an open connection pool.
func NewStore(conn *Connection, opts ...StoreOption) *Store {
	s := &Store{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select fetches the rows matching q and decodes the JSON array into dest.
func (s *Store) Select(ctx context.Context, q backend.Query, dest any) error {
	sqlText, args, err := renderSelect(q)
	if err != nil {
		return err
	}

	var payload []byte
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		return classify(s.conn.QueryRow(ctx, sqlText, args...).Scan(&payload))
	})
	if err != nil {
		return fmt.Errorf("select %s: %w", q.Table, err)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("select %s: decode rows: %w", q.Table, err)
	}
	return nil
}

// Count returns the exact number of rows matching q.
func (s *Store) Count(ctx context.Context, q backend.Query) (int, error) {
	sqlText, args, err := renderCount(q)
	if err != nil {
		return 0, err
	}

	var total int64
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		return classify(s.conn.QueryRow(ctx, sqlText, args...).Scan(&total))
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return int(total), nil
}

// Insert writes rows (a struct or a slice of structs) into table.
func (s *Store) Insert(ctx context.Context, table string, rows any, opts backend.InsertOptions) error {
	sqlText, args, err := renderInsert(table, rows, opts)
	if err != nil {
		return err
	}

	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		_, execErr := s.conn.Exec(ctx, sqlText, args...)
		return classify(execErr)
	})
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update patches the rows matching q with the given column values.
func (s *Store) Update(ctx context.Context, q backend.Query, values map[string]any) error {
	sqlText, args, err := renderUpdate(q, values)
	if err != nil {
		return err
	}

	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		_, execErr := s.conn.Exec(ctx, sqlText, args...)
		return classify(execErr)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", q.Table, err)
	}
	return nil
}

// Delete removes the rows matching q.
func (s *Store) Delete(ctx context.Context, q backend.Query) error {
	sqlText, args, err := renderDelete(q)
	if err != nil {
		return err
	}

	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		_, execErr := s.conn.Exec(ctx, sqlText, args...)
		return classify(execErr)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", q.Table, err)
	}
	return nil
}

// Call invokes the named server-side function. The result runs through the
// same failure-envelope check as the HTTP adapter.
func (s *Store) Call(ctx context.Context, fn string, args map[string]any, dest any) error {
	sqlText, bind, err := renderCall(fn, args)
	if err != nil {
		return err
	}

	var raw []byte
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		return classify(s.conn.QueryRow(ctx, sqlText, bind...).Scan(&raw))
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", fn, err)
	}
	if len(raw) == 0 {
		return nil
	}

	if err := backend.EnvelopeFailure(fn, raw); err != nil {
		return err
	}

	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("call %s: decode result: %w", fn, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR TRANSLATION
// ══════════════════════════════════════════════════════════════════════════════

// classify translates a pgx error into the backend error taxonomy and marks
// it for the retry loop.
func classify(err error) error {
	if err == nil {
		return nil
	}

	translated := translateError(err)
	if backend.IsRetryable(translated) {
		return retry.Retryable(translated)
	}
	return retry.Permanent(translated)
}

// translateError maps database errors onto *backend.APIError so callers see
// the same taxonomy regardless of adapter. The status codes mirror how the
// hosted REST gateway reports the same SQL states.
func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &backend.APIError{Status: http.StatusNotFound, Message: "no rows"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.APIError{
			Status:  statusForSQLState(pgErr.Code),
			Code:    pgErr.Code,
			Message: pgErr.Message,
		}
	}

	// Anything else is a connection-level failure worth retrying.
	return &backend.APIError{Status: http.StatusServiceUnavailable, Message: err.Error()}
}

// statusForSQLState maps SQLSTATE classes onto HTTP statuses. Class 23 is
// integrity violations, 42P01/42883 are missing relations and functions,
// and classes 53/57/58 are transient resource and operator conditions.
func statusForSQLState(code string) int {
	switch {
	case code == "23505":
		return http.StatusConflict
	case strings.HasPrefix(code, "23"):
		return http.StatusConflict
	case code == "42P01", code == "42883":
		return http.StatusNotFound
	case strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"), strings.HasPrefix(code, "58"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
