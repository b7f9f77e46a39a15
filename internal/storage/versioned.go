package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Column maps one field of T to a table column.
type Column[T any] struct {
	Name  string
	Value func(T) any
	// Untracked columns are persisted but a change to them alone does not
	// produce a version row.
	Untracked bool
}

// Table describes a current-state table paired with a <name>_ver history
// table holding the same columns plus ver_id and ver_time.
type Table[T any] struct {
	Name string
	// Columns[0] is the key.
	Columns []Column[T]
	// AutoKey leaves the key to SQLite on insert.
	AutoKey bool
	Scan    func(s scanner) (T, error)
}

// Version is a superseded row and the time it was superseded.
type Version[T any] struct {
	VerID   int64
	VerTime time.Time
	Row     T
}

type scanner interface {
	Scan(dest ...any) error
}

// prefixScanner scans leading columns into prefix before handing the rest to T's scan.
type prefixScanner struct {
	s      scanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.s.Scan(append(p.prefix, dest...)...)
}

func (t *Table[T]) key() string {
	return t.Columns[0].Name
}

func (t *Table[T]) columnList() string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Insert stores a new current row. No version row is written.
// It returns the key, which SQLite assigns when AutoKey is set.
func (t *Table[T]) Insert(ctx context.Context, q Querier, row T) (int64, error) {
	cols := t.Columns
	if t.AutoKey {
		cols = cols[1:]
	}
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		args[i] = c.Value(row)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(names, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", t.Name, classify(err))
	}
	if !t.AutoKey {
		return t.Columns[0].Value(row).(int64), nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for %s: %w", t.Name, err)
	}
	return id, nil
}

// Get returns the current row for key, or nil if there is none.
func (t *Table[T]) Get(ctx context.Context, q Querier, key int64) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.columnList(), t.Name, t.key())
	row, err := t.Scan(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s %d: %w", t.Name, key, err)
	}
	return &row, nil
}

// Write replaces the current row for row's key. If a tracked column differs
// from what is stored, the stored row is first copied to the history table
// stamped with at. It reports whether a version row was written.
func (t *Table[T]) Write(ctx context.Context, q Querier, row T, at time.Time) (bool, error) {
	key := t.Columns[0].Value(row).(int64)
	cur, err := t.Get(ctx, q, key)
	if err != nil {
		return false, err
	}
	if cur == nil {
		return false, fmt.Errorf("%s %d: %w", t.Name, key, ErrNotFound)
	}

	trackedChanged, anyChanged := false, false
	for _, c := range t.Columns[1:] {
		if c.Value(*cur) == c.Value(row) {
			continue
		}
		anyChanged = true
		if !c.Untracked {
			trackedChanged = true
		}
	}
	if !anyChanged {
		return false, nil
	}

	if trackedChanged {
		if err := t.pushVersion(ctx, q, key, at); err != nil {
			return false, err
		}
	}

	sets := make([]string, 0, len(t.Columns)-1)
	args := make([]any, 0, len(t.Columns))
	for _, c := range t.Columns[1:] {
		sets = append(sets, c.Name+" = ?")
		args = append(args, c.Value(row))
	}
	args = append(args, key)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.Name, strings.Join(sets, ", "), t.key())
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to update %s %d: %w", t.Name, key, classify(err))
	}
	return trackedChanged, nil
}

// Delete copies the current row to history stamped with at and removes it.
func (t *Table[T]) Delete(ctx context.Context, q Querier, key int64, at time.Time) error {
	if err := t.pushVersion(ctx, q, key, at); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.Name, t.key())
	if _, err := q.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", t.Name, key, classify(err))
	}
	return nil
}

// Versions returns the superseded rows for key, newest first.
func (t *Table[T]) Versions(ctx context.Context, q Querier, key int64) ([]Version[T], error) {
	query := fmt.Sprintf("SELECT ver_id, ver_time, %s FROM %s_ver WHERE %s = ? ORDER BY ver_id DESC",
		t.columnList(), t.Name, t.key())
	rows, err := q.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s versions for %d: %w", t.Name, key, err)
	}
	defer rows.Close()

	var versions []Version[T]
	for rows.Next() {
		var v Version[T]
		var verTime int64
		row, err := t.Scan(prefixScanner{s: rows, prefix: []any{&v.VerID, &verTime}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s version row: %w", t.Name, err)
		}
		v.VerTime = fromMillis(verTime)
		v.Row = row
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (t *Table[T]) pushVersion(ctx context.Context, q Querier, key int64, at time.Time) error {
	cols := t.columnList()
	query := fmt.Sprintf("INSERT INTO %s_ver (ver_time, %s) SELECT ?, %s FROM %s WHERE %s = ?",
		t.Name, cols, cols, t.Name, t.key())
	res, err := q.ExecContext(ctx, query, millis(at), key)
	if err != nil {
		return fmt.Errorf("failed to version %s %d: %w", t.Name, key, classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %d: %w", t.Name, key, ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
