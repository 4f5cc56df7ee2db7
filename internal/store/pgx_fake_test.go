package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryExpectation answers one QueryRow (row) or Query (rows) call. Nil
// entries in args match any argument.
type queryExpectation struct {
	expect *regexp.Regexp
	args   []any
	row    []any
	rows   [][]any
	err    error
}

type execExpectation struct {
	expect *regexp.Regexp
	args   []any
	tag    string
	err    error
}

// fakeDB scripts the statements a repository call may run, in order.
type fakeDB struct {
	t       *testing.T
	queries []queryExpectation
	execs   []execExpectation
	txs     []*fakeTx
	txIdx   int
}

func (f *fakeDB) nextQuery(sql string, args []any) queryExpectation {
	f.t.Helper()
	return popQuery(f.t, &f.queries, sql, args)
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	exp := f.nextQuery(sql, args)
	return fakeRow{values: exp.row, err: exp.err}
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	exp := f.nextQuery(sql, args)
	if exp.err != nil {
		return nil, exp.err
	}
	return &fakeRows{rows: exp.rows}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.t.Helper()
	return popExec(f.t, &f.execs, sql, args)
}

func (f *fakeDB) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	if f.txIdx >= len(f.txs) {
		f.t.Fatalf("unexpected begin tx")
	}
	tx := f.txs[f.txIdx]
	f.txIdx++
	return tx, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func (f *fakeDB) assertDone() {
	f.t.Helper()
	if len(f.queries) != 0 {
		f.t.Fatalf("pending queries: %d", len(f.queries))
	}
	if len(f.execs) != 0 {
		f.t.Fatalf("pending execs: %d", len(f.execs))
	}
	if f.txIdx != len(f.txs) {
		f.t.Fatalf("expected %d transactions, got %d", len(f.txs), f.txIdx)
	}
}

type fakeTx struct {
	t          *testing.T
	queries    []queryExpectation
	execs      []execExpectation
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("unexpected nested begin")
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("unexpected CopyFrom")
}

func (f *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.t.Fatalf("unexpected SendBatch")
	return nil
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (f *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("unexpected Prepare")
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.t.Helper()
	return popExec(f.t, &f.execs, sql, args)
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.t.Helper()
	exp := popQuery(f.t, &f.queries, sql, args)
	if exp.err != nil {
		return nil, exp.err
	}
	return &fakeRows{rows: exp.rows}, nil
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.t.Helper()
	exp := popQuery(f.t, &f.queries, sql, args)
	return fakeRow{values: exp.row, err: exp.err}
}

func (f *fakeTx) Conn() *pgx.Conn { return nil }

func (f *fakeTx) assertDone() {
	f.t.Helper()
	if len(f.queries) != 0 {
		f.t.Fatalf("pending tx queries: %d", len(f.queries))
	}
	if len(f.execs) != 0 {
		f.t.Fatalf("pending tx execs: %d", len(f.execs))
	}
	if !f.committed && !f.rolledBack {
		f.t.Fatalf("transaction not finished")
	}
}

func popQuery(t *testing.T, queue *[]queryExpectation, sql string, args []any) queryExpectation {
	t.Helper()
	if len(*queue) == 0 {
		t.Fatalf("unexpected query: %s", sql)
	}
	exp := (*queue)[0]
	*queue = (*queue)[1:]
	if !exp.expect.MatchString(sql) {
		t.Fatalf("query mismatch: want %s, got %s", exp.expect, sql)
	}
	assertArgs(t, exp.args, args)
	return exp
}

func popExec(t *testing.T, queue *[]execExpectation, sql string, args []any) (pgconn.CommandTag, error) {
	t.Helper()
	if len(*queue) == 0 {
		t.Fatalf("unexpected exec: %s", sql)
	}
	exp := (*queue)[0]
	*queue = (*queue)[1:]
	if !exp.expect.MatchString(sql) {
		t.Fatalf("exec mismatch: want %s, got %s", exp.expect, sql)
	}
	assertArgs(t, exp.args, args)
	tag := exp.tag
	if tag == "" {
		tag = "MOCK"
	}
	return pgconn.NewCommandTag(tag), exp.err
}

func assertArgs(t *testing.T, expected, actual []any) {
	t.Helper()
	if len(expected) == 0 {
		return
	}
	if len(expected) != len(actual) {
		t.Fatalf("argument length mismatch: expected %d got %d", len(expected), len(actual))
	}
	for i, exp := range expected {
		if exp == nil {
			continue
		}
		if !reflect.DeepEqual(exp, actual[i]) {
			t.Fatalf("argument mismatch at %d: expected %#v got %#v", i, exp, actual[i])
		}
	}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanValues(dest, r.values)
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanValues(dest, r.rows[r.idx-1])
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

// scanValues assigns values to dest in order. A nil value zeroes the
// destination; named types convert from their underlying type.
func scanValues(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, value := range values {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if value == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(value)
		switch {
		case v.Type().AssignableTo(elem.Type()):
			elem.Set(v)
		case v.Kind() == elem.Kind() && v.Type().ConvertibleTo(elem.Type()):
			elem.Set(v.Convert(elem.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to destination %d (%s)", value, i, elem.Type())
		}
	}
	return nil
}
