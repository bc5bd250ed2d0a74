package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type DBDialect string

const (
	dialectSQLite   DBDialect = "sqlite"
	dialectPostgres DBDialect = "postgres"
	dialectRedis    DBDialect = "redis"
	dialectMemory   DBDialect = "memory"

	persistTimeout    = 5 * time.Second
	maxPersistRetries = 2
)

// Repository persists the whole store snapshot.
type Repository interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}

type SQLRepository struct {
	dialect DBDialect
	db      *sql.DB
}

// openRepository picks the snapshot backend from config. The memory dialect
// returns a nil repository and nothing is persisted.
func openRepository(ctx context.Context, cfg Config) (Repository, error) {
	dialect := DBDialect(strings.TrimSpace(strings.ToLower(cfg.DBDialect)))
	if dialect == "" {
		dialect = dialectSQLite
	}
	switch dialect {
	case dialectMemory:
		return nil, nil
	case dialectRedis:
		return openRedisRepository(ctx, cfg)
	case dialectSQLite, dialectPostgres:
		return openSQLRepository(ctx, dialect, cfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", cfg.DBDialect)
	}
}

func openSQLRepository(ctx context.Context, dialect DBDialect, cfg Config) (*SQLRepository, error) {
	var driverName string
	var dsn string
	switch dialect {
	case dialectSQLite:
		driverName = "sqlite"
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = filepath.Join("tmp", "precinct.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = path
	case dialectPostgres:
		driverName = "pgx"
		dsn = strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			dsn = strings.TrimSpace(cfg.DatabaseURL)
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires PRECINCT_DB_POSTGRES_DSN or DATABASE_URL")
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	repo := &SQLRepository{dialect: dialect, db: db}
	if err := repo.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database ready", zap.String("dialect", string(dialect)))
	return repo, nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) bind(pos int) string {
	if r.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (r *SQLRepository) insertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = r.bind(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(ph, ", "),
	)
}

func (r *SQLRepository) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	err := queryRows(ctx, r.db, "SELECT version FROM schema_migrations", func(rows *sql.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		applied[v] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	pattern := fmt.Sprintf("migrations/%s/*.sql", r.dialect)
	files, err := fs.Glob(migrationFS, pattern)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		q := r.insertQuery("schema_migrations", []string{"version", "applied_at"})
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// persistLocked saves the snapshot. A failed save is retried with the
// saved copy's history and active log halved; the store itself keeps
// everything. The final failure is logged and play continues.
func (store *Store) persistLocked() {
	if store.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	snap := store.snapshotLocked()
	err := store.repo.Save(ctx, snap)
	for attempt := 1; err != nil && attempt <= maxPersistRetries; attempt++ {
		logger.Warn("persist snapshot failed, trimming history", zap.Int("attempt", attempt), zap.Error(err))
		snap = trimSnapshot(snap)
		err = store.repo.Save(ctx, snap)
	}
	if err != nil {
		logger.Error("persist snapshot failed", zap.Error(err))
	}
}

// trimSnapshot halves the history and the active log of a copy of snap.
func trimSnapshot(snap Snapshot) Snapshot {
	snap.History = append([]ArchivedShift(nil), snap.History[:len(snap.History)/2]...)
	if snap.Active != nil {
		active := *snap.Active
		active.Log = append([]LogEntry(nil), active.Log[:len(active.Log)/2]...)
		snap.Active = &active
	}
	return snap
}

func (r *SQLRepository) Save(ctx context.Context, snap Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	if err := r.saveWithTx(ctx, tx, snap); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

func (r *SQLRepository) saveWithTx(ctx context.Context, tx *sql.Tx, snap Snapshot) error {
	for _, tbl := range []string{"settings_state", "active_session", "ui_state", "shift_history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl); err != nil {
			return fmt.Errorf("clear %s: %w", tbl, err)
		}
	}
	now := time.Now().UTC()

	settings, err := json.Marshal(snap.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.insertRow(ctx, tx, "settings_state", []string{"id", "version", "payload", "updated_at"}, []any{1, snap.Version, string(settings), now}); err != nil {
		return err
	}

	dice, err := json.Marshal(snap.Dice)
	if err != nil {
		return fmt.Errorf("encode dice: %w", err)
	}
	if err := r.insertRow(ctx, tx, "ui_state", []string{"id", "payload"}, []any{1, string(dice)}); err != nil {
		return err
	}

	if snap.Active != nil {
		active, err := json.Marshal(snap.Active)
		if err != nil {
			return fmt.Errorf("encode active session: %w", err)
		}
		cols := []string{"id", "case_file", "started_at", "payload"}
		if err := r.insertRow(ctx, tx, "active_session", cols, []any{1, snap.Active.CaseFile, snap.Active.StartedAt, string(active)}); err != nil {
			return err
		}
	}

	cols := []string{"case_file", "position", "outcome", "ended_at", "payload"}
	for i, a := range snap.History {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode shift %s: %w", a.CaseFile, err)
		}
		if err := r.insertRow(ctx, tx, "shift_history", cols, []any{a.CaseFile, i, string(a.Outcome), nullableTime(a.EndedAt), string(payload)}); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLRepository) insertRow(ctx context.Context, tx *sql.Tx, table string, cols []string, vals []any) error {
	q := r.insertQuery(table, cols)
	if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Load reads the snapshot back. An empty database returns
// errSnapshotNotFound; undecodable rows return errSnapshotCorrupt.
func (r *SQLRepository) Load(ctx context.Context) (Snapshot, error) {
	snap := defaultSnapshot()

	var settings string
	err := r.db.QueryRowContext(ctx, "SELECT payload FROM settings_state WHERE id = 1").Scan(&settings)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, errSnapshotNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("load settings_state: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &snap.Settings); err != nil {
		return defaultSnapshot(), fmt.Errorf("%w: settings: %v", errSnapshotCorrupt, err)
	}

	var dice string
	err = r.db.QueryRowContext(ctx, "SELECT payload FROM ui_state WHERE id = 1").Scan(&dice)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("load ui_state: %w", err)
	}
	if dice != "" {
		if err := json.Unmarshal([]byte(dice), &snap.Dice); err != nil {
			return defaultSnapshot(), fmt.Errorf("%w: dice: %v", errSnapshotCorrupt, err)
		}
	}

	var active string
	err = r.db.QueryRowContext(ctx, "SELECT payload FROM active_session WHERE id = 1").Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("load active_session: %w", err)
	}
	if active != "" {
		var stats SessionStats
		if err := json.Unmarshal([]byte(active), &stats); err != nil {
			return defaultSnapshot(), fmt.Errorf("%w: active session: %v", errSnapshotCorrupt, err)
		}
		snap.Active = &stats
	}

	err = queryRows(ctx, r.db, "SELECT payload FROM shift_history ORDER BY position", func(rows *sql.Rows) error {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var a ArchivedShift
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return fmt.Errorf("%w: shift history: %v", errSnapshotCorrupt, err)
		}
		snap.History = append(snap.History, a)
		return nil
	})
	if err != nil {
		if errors.Is(err, errSnapshotCorrupt) {
			return defaultSnapshot(), err
		}
		return snap, fmt.Errorf("load shift_history: %w", err)
	}

	normalizeSnapshot(&snap)
	return snap, nil
}

func queryRows(ctx context.Context, db *sql.DB, q string, fn func(rows *sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
