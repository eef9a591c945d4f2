// Package backendtest provides a scripted in-memory backend for tests.
// Unlike a live adapter it requires no server: tests queue JSON payloads
// and errors per table or procedure, run the code under test, and assert
// on the recorded calls. All methods are safe for concurrent use, since
// several stores fan requests out in parallel.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
)

// InsertCall records one Insert invocation.
type InsertCall struct {
	Table string
	Rows  any
	Opts  backend.InsertOptions
}

// UpdateCall records one Update invocation.
type UpdateCall struct {
	Query  backend.Query
	Values map[string]any
}

// ProcedureCall records one Call invocation.
type ProcedureCall struct {
	Procedure string
	Args      map[string]any
}

type outcome struct {
	payload string
	count   int
	err     error
}

// Fake is a scripted backend. The zero value is not usable; create one
// with New.
type Fake struct {
	mu sync.Mutex

	selectQueue map[string][]outcome
	countQueue  map[string][]outcome
	callQueue   map[string][]outcome
	writeQueue  map[string][]outcome

	selects  []backend.Query
	counts   []backend.Query
	inserts  []InsertCall
	updates  []UpdateCall
	deletes  []backend.Query
	rpcCalls []ProcedureCall

	authToken *backend.Token
	authErr   error
	signIns   []string
	refreshes []string
	signOuts  []string
}

var (
	_ backend.RowQuerier      = (*Fake)(nil)
	_ backend.RowWriter       = (*Fake)(nil)
	_ backend.ProcedureCaller = (*Fake)(nil)
	_ backend.Authenticator   = (*Fake)(nil)
	_ backend.ObjectStorage   = (*Fake)(nil)
)

// New creates an empty Fake. Unscripted selects return no rows, unscripted
// counts return zero, unscripted calls and writes succeed.
func New() *Fake {
	return &Fake{
		selectQueue: make(map[string][]outcome),
		countQueue:  make(map[string][]outcome),
		callQueue:   make(map[string][]outcome),
		writeQueue:  make(map[string][]outcome),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCRIPTING
// ══════════════════════════════════════════════════════════════════════════════

// QueueRows scripts the next Select on table to decode the given JSON array.
func (f *Fake) QueueRows(table, rowsJSON string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectQueue[table] = append(f.selectQueue[table], outcome{payload: rowsJSON})
}

// QueueSelectError scripts the next Select on table to fail.
func (f *Fake) QueueSelectError(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectQueue[table] = append(f.selectQueue[table], outcome{err: err})
}

// QueueCount scripts the next Count on table.
func (f *Fake) QueueCount(table string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countQueue[table] = append(f.countQueue[table], outcome{count: n})
}

// QueueCountError scripts the next Count on table to fail.
func (f *Fake) QueueCountError(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countQueue[table] = append(f.countQueue[table], outcome{err: err})
}

// QueueResult scripts the next Call of the procedure to return the given
// JSON payload. A {"success": false} payload surfaces as a procedure
// failure, exactly as the live adapters report it.
func (f *Fake) QueueResult(procedure, resultJSON string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callQueue[procedure] = append(f.callQueue[procedure], outcome{payload: resultJSON})
}

// QueueCallError scripts the next Call of the procedure to fail.
func (f *Fake) QueueCallError(procedure string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callQueue[procedure] = append(f.callQueue[procedure], outcome{err: err})
}

// QueueWriteError scripts the next Insert, Update, or Delete on table to
// fail.
func (f *Fake) QueueWriteError(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeQueue[table] = append(f.writeQueue[table], outcome{err: err})
}

func pop(queue map[string][]outcome, key string) (outcome, bool) {
	pending := queue[key]
	if len(pending) == 0 {
		return outcome{}, false
	}
	queue[key] = pending[1:]
	return pending[0], true
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW QUERIES AND WRITES
// ══════════════════════════════════════════════════════════════════════════════

// Select decodes the next queued payload for the table, or an empty row set.
func (f *Fake) Select(ctx context.Context, q backend.Query, dest any) error {
	f.mu.Lock()
	f.selects = append(f.selects, q)
	next, ok := pop(f.selectQueue, q.Table)
	f.mu.Unlock()

	if ok && next.err != nil {
		return next.err
	}

	payload := "[]"
	if ok {
		payload = next.payload
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return fmt.Errorf("backendtest: decode queued rows for %s: %w", q.Table, err)
	}
	return nil
}

// Count returns the next queued count for the table, or zero.
func (f *Fake) Count(ctx context.Context, q backend.Query) (int, error) {
	f.mu.Lock()
	f.counts = append(f.counts, q)
	next, ok := pop(f.countQueue, q.Table)
	f.mu.Unlock()

	if !ok {
		return 0, nil
	}
	return next.count, next.err
}

// Insert records the call and consumes a queued write error if present.
func (f *Fake) Insert(ctx context.Context, table string, rows any, opts backend.InsertOptions) error {
	f.mu.Lock()
	f.inserts = append(f.inserts, InsertCall{Table: table, Rows: rows, Opts: opts})
	next, ok := pop(f.writeQueue, table)
	f.mu.Unlock()

	if ok {
		return next.err
	}
	return nil
}

// Update records the call and consumes a queued write error if present.
func (f *Fake) Update(ctx context.Context, q backend.Query, values map[string]any) error {
	f.mu.Lock()
	f.updates = append(f.updates, UpdateCall{Query: q, Values: values})
	next, ok := pop(f.writeQueue, q.Table)
	f.mu.Unlock()

	if ok {
		return next.err
	}
	return nil
}

// Delete records the call and consumes a queued write error if present.
func (f *Fake) Delete(ctx context.Context, q backend.Query) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, q)
	next, ok := pop(f.writeQueue, q.Table)
	f.mu.Unlock()

	if ok {
		return next.err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCEDURES
// ══════════════════════════════════════════════════════════════════════════════

// Call decodes the next queued result for the procedure. Unscripted calls
// succeed without touching dest.
func (f *Fake) Call(ctx context.Context, fn string, args map[string]any, dest any) error {
	f.mu.Lock()
	f.rpcCalls = append(f.rpcCalls, ProcedureCall{Procedure: fn, Args: args})
	next, ok := pop(f.callQueue, fn)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	if next.err != nil {
		return next.err
	}

	raw := []byte(next.payload)
	if err := backend.EnvelopeFailure(fn, raw); err != nil {
		return err
	}
	if dest != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("backendtest: decode queued result for %s: %w", fn, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

// SetToken scripts the token returned by SignIn and RefreshToken. When
// unset, a token valid for an hour is returned.
func (f *Fake) SetToken(token *backend.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authToken = token
}

// SetAuthError scripts SignIn and RefreshToken to fail.
func (f *Fake) SetAuthError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authErr = err
}

func (f *Fake) token() *backend.Token {
	if f.authToken != nil {
		t := *f.authToken
		return &t
	}
	return &backend.Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// SignIn returns the scripted token or error and records the email.
func (f *Fake) SignIn(ctx context.Context, email, password string) (*backend.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns = append(f.signIns, email)

	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.token(), nil
}

// RefreshToken returns the scripted token or error and records the request.
func (f *Fake) RefreshToken(ctx context.Context, refreshToken string) (*backend.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, refreshToken)

	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.token(), nil
}

// SignOut records the request and succeeds.
func (f *Fake) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, accessToken)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OBJECT STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// PublicURL returns a deterministic URL so tests can assert on how assets
// were requested.
func (f *Fake) PublicURL(bucket, path string, transform *backend.ImageTransform, version int64) string {
	u := fmt.Sprintf("https://cdn.test/%s/%s", bucket, path)
	sep := "?"
	if transform != nil {
		u += fmt.Sprintf("%swidth=%d&height=%d", sep, transform.Width, transform.Height)
		sep = "&"
	}
	if version > 0 {
		u += fmt.Sprintf("%sv=%d", sep, version)
	}
	return u
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDED CALLS
// ══════════════════════════════════════════════════════════════════════════════

// Selects returns all recorded Select queries.
func (f *Fake) Selects() []backend.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Query(nil), f.selects...)
}

// SelectCount returns how many Selects hit the table.
func (f *Fake) SelectCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, q := range f.selects {
		if q.Table == table {
			n++
		}
	}
	return n
}

// Counts returns all recorded Count queries.
func (f *Fake) Counts() []backend.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Query(nil), f.counts...)
}

// Inserts returns all recorded Insert calls.
func (f *Fake) Inserts() []InsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InsertCall(nil), f.inserts...)
}

// Updates returns all recorded Update calls.
func (f *Fake) Updates() []UpdateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UpdateCall(nil), f.updates...)
}

// Deletes returns all recorded Delete queries.
func (f *Fake) Deletes() []backend.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Query(nil), f.deletes...)
}

// Calls returns all recorded procedure calls.
func (f *Fake) Calls() []ProcedureCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProcedureCall(nil), f.rpcCalls...)
}

// CallCount returns how many times the procedure was invoked.
func (f *Fake) CallCount(procedure string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.rpcCalls {
		if c.Procedure == procedure {
			n++
		}
	}
	return n
}

// SignIns returns the emails passed to SignIn.
func (f *Fake) SignIns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signIns...)
}

// Refreshes returns the refresh tokens passed to RefreshToken.
func (f *Fake) Refreshes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshes...)
}

// SignOuts returns the access tokens passed to SignOut.
func (f *Fake) SignOuts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signOuts...)
}
