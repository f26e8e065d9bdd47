package sqlbind

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// StatementMap is a registry of prepared statements keyed by name - prepare
// statements once, execute them by key, close them all in one place
//
// safe for concurrent use
type StatementMap struct {
	db    *sql.DB
	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewStatementMap creates an empty StatementMap over the given database
func NewStatementMap(db *sql.DB) *StatementMap {
	return &StatementMap{
		db:    db,
		stmts: make(map[string]*sql.Stmt),
	}
}

// Add prepares the query and registers it under the given name
//
// registering a name twice is an error - statements are owned by the map until Close
func (m *StatementMap) Add(ctx context.Context, name string, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stmts[name]; exists {
		return fmt.Errorf("sqlbind: statement %q already registered", name)
	}
	stmt, err := m.db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	m.stmts[name] = stmt
	return nil
}

// Extend prepares and registers each of the given name/query pairs
//
// registration stops at the first failure - earlier pairs remain registered
func (m *StatementMap) Extend(ctx context.Context, queries map[string]string) error {
	for name, query := range queries {
		if err := m.Add(ctx, name, query); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether a statement is registered under the given name
func (m *StatementMap) Contains(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.stmts[name]
	return exists
}

// Exec executes the named statement
func (m *StatementMap) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	stmt, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// Query executes the named statement, returning its rows
func (m *StatementMap) Query(ctx context.Context, name string, args ...any) (*sql.Rows, error) {
	stmt, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// QueryRow executes the named statement, returning its first row
func (m *StatementMap) QueryRow(ctx context.Context, name string, args ...any) (*sql.Row, error) {
	stmt, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return stmt.QueryRowContext(ctx, args...), nil
}

// Close closes all registered statements and empties the map
//
// the map remains usable - statements can be registered again after Close
func (m *StatementMap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, stmt := range m.stmts {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sqlbind: closing statement %q: %w", name, err)
		}
		delete(m.stmts, name)
	}
	return firstErr
}

func (m *StatementMap) get(name string) (*sql.Stmt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stmt, exists := m.stmts[name]
	if !exists {
		return nil, fmt.Errorf("sqlbind: no statement registered as %q", name)
	}
	return stmt, nil
}
