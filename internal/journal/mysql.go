package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AddonLoader/internal/errors"
	"AddonLoader/pkg/addon"
)

// MySQLConfig configures the MySQL-backed journal.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	DialTimeout     time.Duration
}

// MySQLStore persists entries in the addon_loads table.
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore connects, migrates the schema and returns the store.
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &MySQLStore{db: db, now: time.Now}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "mysql dsn cannot be empty")
	}
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse mysql dsn")
	}
	if cfg.DialTimeout > 0 {
		dsn.Timeout = cfg.DialTimeout
	} else if dsn.Timeout == 0 {
		dsn.Timeout = 5 * time.Second
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create mysql connector")
	}
	db := sql.OpenDB(connector)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "ping mysql")
	}
	return db, nil
}

// Record implements addon.Recorder.
func (s *MySQLStore) Record(ctx context.Context, outcome addon.Outcome) error {
	entry := FromOutcome(outcome, s.now())
	return s.Append(ctx, &entry)
}

// Append inserts entry and sets its ID from the generated key.
func (s *MySQLStore) Append(ctx context.Context, entry *Entry) error {
	const stmt = `INSERT INTO addon_loads
    (scan_id, file_name, base_name, kind, reached, loaded, error_code, error_message, duration_us, recorded_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, stmt,
		entry.ScanID,
		entry.FileName,
		entry.BaseName,
		string(entry.Kind),
		entry.Reached,
		entry.Loaded,
		entry.ErrorCode,
		entry.ErrorMessage,
		entry.Duration.Microseconds(),
		entry.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert addon load")
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

const selectColumns = `SELECT id, scan_id, file_name, base_name, kind, reached, loaded, error_code, error_message, duration_us, recorded_at
    FROM addon_loads`

// ListLatest returns up to limit entries, newest first.
func (s *MySQLStore) ListLatest(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query addon loads")
	}
	return scanEntries(rows)
}

// ListScan returns the entries of one scan in dispatch order.
func (s *MySQLStore) ListScan(ctx context.Context, scanID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE scan_id = ? ORDER BY id ASC`, scanID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query scan entries")
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			durationUS int64
			recordedMS int64
		)
		if err := rows.Scan(&e.ID, &e.ScanID, &e.FileName, &e.BaseName, &kind, &e.Reached, &e.Loaded,
			&e.ErrorCode, &e.ErrorMessage, &durationUS, &recordedMS); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan addon load")
		}
		e.Kind = addon.Kind(kind)
		e.Duration = time.Duration(durationUS) * time.Microsecond
		e.RecordedAt = time.UnixMilli(recordedMS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate addon loads")
	}
	return entries, nil
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open builds the store selected by driver: "memory", "mysql" or "none".
// "none" returns a nil Store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(1024), nil
	case "none":
		return nil, nil
	case "mysql":
		return NewMySQLStore(ctx, MySQLConfig{DSN: dsn})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown journal driver %q", driver))
	}
}
