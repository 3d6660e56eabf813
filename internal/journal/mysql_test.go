package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"AddonLoader/pkg/addon"
)

func TestMySQLStoreRecord(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(insertEntrySQL(), mockResult{lastInsertID: 42, rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: func() time.Time { return time.UnixMilli(1000) }}
	out := addon.Outcome{
		ScanID:     "scan",
		Descriptor: addon.Descriptor{FileName: "bar.so", BaseName: "bar", Extension: "so", Kind: addon.KindCodeModule},
		Reached:    addon.StateNotified,
	}
	if err := store.Record(context.Background(), out); err != nil {
		t.Fatalf("record failed: %v", err)
	}
}

func TestMySQLStoreAppendSetsID(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(insertEntrySQL(), mockResult{lastInsertID: 7, rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: time.Now}
	entry := &Entry{ScanID: "scan", FileName: "foo.pck", RecordedAt: time.Now()}
	if err := store.Append(context.Background(), entry); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.ID != 7 {
		t.Fatalf("expected id 7, got %d", entry.ID)
	}
}

func TestMySQLStoreListLatest(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: entryColumns(),
		values: [][]driver.Value{
			{int64(2), "scan", "bar.so", "bar", "code_module", "notified", int64(1), "", "", int64(1500), int64(2000)},
			{int64(1), "scan", "foo.pck", "foo", "resource_pack", "mounted", int64(0), "RESOURCE_MISS", "addon script not found", int64(800), int64(1000)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectColumns+` ORDER BY id DESC LIMIT ?`, rows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: time.Now}
	list, err := store.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || !list[0].Loaded {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].Kind != addon.KindResourcePack || list[1].Loaded || list[1].ErrorCode != "RESOURCE_MISS" {
		t.Fatalf("unexpected second entry: %+v", list[1])
	}
	if list[0].Duration != 1500*time.Microsecond {
		t.Fatalf("unexpected duration: %v", list[0].Duration)
	}
}

func TestMySQLStoreListScan(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: entryColumns(),
		values: [][]driver.Value{
			{int64(5), "scan-9", "a.so", "a", "code_module", "attached", int64(1), "NOTIFY_FAILURE", "notify", int64(10), int64(10)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectColumns+` WHERE scan_id = ? ORDER BY id ASC`, rows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: time.Now}
	list, err := store.ListScan(context.Background(), "scan-9")
	if err != nil {
		t.Fatalf("list scan failed: %v", err)
	}
	if len(list) != 1 || list[0].Reached != "attached" || list[0].ErrorCode != "NOTIFY_FAILURE" {
		t.Fatalf("unexpected entries: %+v", list)
	}
}

func TestMySQLStoreRunMigrations(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{files[0].version}},
		}),
	}
	for _, m := range files[1:] {
		ops = append(ops, beginOp())
		for _, stmt := range m.statements {
			ops = append(ops, execOp(stmt, mockResult{}))
		}
		ops = append(ops,
			execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
			commitOp(),
		)
	}

	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: time.Now}
	if err := store.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestMySQLStoreMigrationRollback(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		{typ: opExec, query: files[0].statements[0], err: fmt.Errorf("syntax error")},
		rollbackOp(),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db, now: time.Now}
	if err := store.runMigrations(context.Background()); err == nil {
		t.Fatalf("expected migration failure")
	}
}

func insertEntrySQL() string {
	return `INSERT INTO addon_loads
    (scan_id, file_name, base_name, kind, reached, loaded, error_code, error_message, duration_us, recorded_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func entryColumns() []string {
	return []string{"id", "scan_id", "file_name", "base_name", "kind", "reached", "loaded", "error_code", "error_message", "duration_us", "recorded_at"}
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-journal-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", op.typ, expected)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && query != "" {
		if want, got := normalizeSQL(op.query), normalizeSQL(query); want != got {
			return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
		}
	}
	return op, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
