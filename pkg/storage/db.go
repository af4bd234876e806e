// Package storage is the uniform statement layer shared by every swarm
// component. Both backends are driven through ent's dialect driver; query
// templates are written once and translated per Dialect, and every value is
// bound as a parameter.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// DB is an open relational backend plus the dialect that knows its syntax.
type DB struct {
	driver  *entsql.Driver
	dialect Dialect
}

// New wraps an ent SQL driver with its dialect.
func New(driver *entsql.Driver, dialect Dialect) *DB {
	return &DB{
		driver:  driver,
		dialect: dialect,
	}
}

// Dialect returns the backend dialect.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Exec runs a raw statement (DDL or a one-off write) after translation.
func (db *DB) Exec(ctx context.Context, raw string) error {
	query := db.dialect.Translate(raw)
	if err := db.driver.Exec(ctx, query, []any{}, nil); err != nil {
		return wrap(err, query)
	}
	return nil
}

// Prepare translates a query template once. The returned Stmt can be
// executed any number of times and is safe for concurrent use.
func (db *DB) Prepare(template string) *Stmt {
	return &Stmt{
		db:    db,
		query: db.dialect.Translate(template),
	}
}

// Ping verifies the backend is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.driver.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.driver.Close()
}

// Result reports the effect of a write.
type Result struct {
	RowsAffected int64
}

// Stmt is a translated query template bound to a DB.
type Stmt struct {
	db    *DB
	query string
}

// Query returns the translated SQL text.
func (s *Stmt) Query() string {
	return s.query
}

// Run executes a write and reports the number of affected rows.
func (s *Stmt) Run(ctx context.Context, args ...any) (Result, error) {
	var res sql.Result
	if err := s.db.driver.Exec(ctx, s.query, normalize(args), &res); err != nil {
		return Result{}, wrap(err, s.query)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, wrap(err, s.query)
	}
	return Result{RowsAffected: affected}, nil
}

// Get executes a query expected to return at most one row. Scanning the
// returned Row yields ErrNoRows when nothing matched.
func (s *Stmt) Get(ctx context.Context, args ...any) *Row {
	rows, err := s.All(ctx, args...)
	return &Row{rows: rows, err: err}
}

// All executes a query and returns its rows. Callers must Close the rows
// before issuing another statement on a single-connection backend.
func (s *Stmt) All(ctx context.Context, args ...any) (*Rows, error) {
	var rows entsql.Rows
	if err := s.db.driver.Query(ctx, s.query, normalize(args), &rows); err != nil {
		return nil, wrap(err, s.query)
	}
	return &Rows{rows: &rows, query: s.query}, nil
}

// Row is the result of Stmt.Get.
type Row struct {
	rows *Rows
	err  error
}

// Scan copies the first row into dest and closes the result set.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// Rows iterates a result set.
type Rows struct {
	rows  *entsql.Rows
	query string
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	return r.rows.Next()
}

// Scan copies the current row into dest.
func (r *Rows) Scan(dest ...any) error {
	return wrap(r.rows.Scan(dest...), r.query)
}

// Err returns the error, if any, hit during iteration.
func (r *Rows) Err() error {
	return wrap(r.rows.Err(), r.query)
}

// Close releases the result set.
func (r *Rows) Close() error {
	return r.rows.Close()
}

// normalize guarantees the []any shape ent's driver expects, even when the
// statement takes no parameters.
func normalize(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
