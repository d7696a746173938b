// Package dbtest provides a scripted in-memory db.Database for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"codejudge/internal/common/db"
)

// QueryFunc returns the rows a query produces, one []interface{} per row.
type QueryFunc func(args []interface{}) ([][]interface{}, error)

// ExecFunc returns the rows affected by a statement.
type ExecFunc func(args []interface{}) (int64, error)

// Call records one statement sent to the fake.
type Call struct {
	Query string
	Args  []interface{}
}

type queryHandler struct {
	match string
	fn    QueryFunc
}

type execHandler struct {
	match string
	fn    ExecFunc
}

// FakeDB dispatches statements to the first handler whose match string is contained in the SQL.
type FakeDB struct {
	mu      sync.Mutex
	queries []queryHandler
	execs   []execHandler
	calls   []Call
}

func New() *FakeDB {
	return &FakeDB{}
}

func (f *FakeDB) OnQuery(match string, fn QueryFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queryHandler{match: match, fn: fn})
}

func (f *FakeDB) OnExec(match string, fn ExecFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execHandler{match: match, fn: fn})
}

// Calls returns every statement seen so far.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts statements containing match.
func (f *FakeDB) CallCount(match string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.Query, match) {
			n++
		}
	}
	return n
}

func (f *FakeDB) record(query string, args []interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Query: query, Args: args})
}

func (f *FakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.record(query, args)
	f.mu.Lock()
	handlers := append([]queryHandler(nil), f.queries...)
	f.mu.Unlock()
	for _, h := range handlers {
		if strings.Contains(query, h.match) {
			data, err := h.fn(args)
			if err != nil {
				return nil, err
			}
			return &rows{data: data, pos: -1}, nil
		}
	}
	return nil, fmt.Errorf("dbtest: unexpected query %q", query)
}

func (f *FakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	r, err := f.Query(ctx, query, args...)
	if err != nil {
		return &row{err: err}
	}
	res := r.(*rows)
	if len(res.data) == 0 {
		return &row{err: fmt.Errorf("scan failed: %w", sql.ErrNoRows)}
	}
	return &row{values: res.data[0]}
}

func (f *FakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.record(query, args)
	f.mu.Lock()
	handlers := append([]execHandler(nil), f.execs...)
	f.mu.Unlock()
	for _, h := range handlers {
		if strings.Contains(query, h.match) {
			n, err := h.fn(args)
			if err != nil {
				return nil, err
			}
			return result(n), nil
		}
	}
	return nil, fmt.Errorf("dbtest: unexpected exec %q", query)
}

func (f *FakeDB) Ping(ctx context.Context) error { return nil }
func (f *FakeDB) Close() error                   { return nil }

type result int64

func (r result) LastInsertId() (int64, error) { return 0, nil }
func (r result) RowsAffected() (int64, error) { return int64(r), nil }

type rows struct {
	data [][]interface{}
	pos  int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *rows) Scan(dest ...interface{}) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return fmt.Errorf("dbtest: scan outside result set")
	}
	return assign(r.data[r.pos], dest)
}

func (r *rows) Close() error { return nil }
func (r *rows) Err() error   { return nil }

type row struct {
	values []interface{}
	err    error
}

func (r *row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		if scanner, ok := dest[i].(sql.Scanner); ok {
			if err := scanner.Scan(v); err != nil {
				return err
			}
			continue
		}
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("dbtest: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if v == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		src := reflect.ValueOf(v)
		if !src.Type().ConvertibleTo(elem.Type()) {
			return fmt.Errorf("dbtest: cannot assign %T to %s", v, elem.Type())
		}
		elem.Set(src.Convert(elem.Type()))
	}
	return nil
}

var _ db.Database = (*FakeDB)(nil)
