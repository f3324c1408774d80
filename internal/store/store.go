package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"schema-miner/internal/logging"
)

const driverName = "sqlite"

// ErrNotFound 按 ID 更新时目标不存在
var ErrNotFound = errors.New("entity not found")

// Store 实体库，底层为单连接 SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open 打开（必要时创建）实体库并执行迁移；path 为 ":memory:" 时使用内存库
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if clean != ":memory:" {
		if info, err := os.Stat(clean); err == nil && info.IsDir() {
			return nil, fmt.Errorf("store path %q is a directory, expected file", clean)
		}
		if dir := filepath.Dir(clean); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory %q: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", clean)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", clean, err)
	}
	// 单连接即单写者
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store %q: %w", clean, err)
	}

	s := &Store{db: db, logger: logging.OrNop(logger).Named("store")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("store opened", zap.String("path", clean))
	return s, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		path TEXT NOT NULL,
		language TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		line_count INTEGER NOT NULL DEFAULT 0,
		last_parsed_at TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		UNIQUE(project, path)
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		package TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		extends TEXT NOT NULL DEFAULT '',
		implements TEXT NOT NULL DEFAULT '[]',
		annotations TEXT NOT NULL DEFAULT '[]',
		modifiers TEXT NOT NULL DEFAULT '[]',
		is_interface INTEGER NOT NULL DEFAULT 0,
		is_abstract INTEGER NOT NULL DEFAULT 0,
		line INTEGER NOT NULL DEFAULT 0,
		certainty TEXT NOT NULL,
		confidence REAL NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_classes_file ON classes(file_id)`,
	`CREATE TABLE IF NOT EXISTS methods (
		id TEXT PRIMARY KEY,
		class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		class_name TEXT NOT NULL,
		name TEXT NOT NULL,
		return_type TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL DEFAULT '[]',
		modifiers TEXT NOT NULL DEFAULT '[]',
		annotations TEXT NOT NULL DEFAULT '[]',
		throws TEXT NOT NULL DEFAULT '[]',
		is_constructor INTEGER NOT NULL DEFAULT 0,
		line INTEGER NOT NULL DEFAULT 0,
		certainty TEXT NOT NULL,
		confidence REAL NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_methods_class ON methods(class_id)`,
	`CREATE TABLE IF NOT EXISTS sql_units (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		statement_key TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		statement_type TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		resolved_text TEXT NOT NULL,
		has_dynamic INTEGER NOT NULL DEFAULT 0,
		parse_confidence REAL NOT NULL,
		line INTEGER NOT NULL DEFAULT 0,
		method_name TEXT NOT NULL DEFAULT '',
		tables TEXT NOT NULL DEFAULT '[]',
		columns TEXT NOT NULL DEFAULT '[]',
		joins TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '',
		UNIQUE(file_id, statement_key)
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		project TEXT NOT NULL,
		src_type TEXT NOT NULL,
		src_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		dst_type TEXT NOT NULL,
		dst_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		file_id TEXT REFERENCES files(id) ON DELETE CASCADE,
		derived INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(project, src_type, src_id, kind, dst_type, dst_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(file_id)`,
	`CREATE TABLE IF NOT EXISTS db_tables (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		UNIQUE(owner, name)
	)`,
	`CREATE TABLE IF NOT EXISTS db_columns (
		id TEXT PRIMARY KEY,
		table_id TEXT NOT NULL REFERENCES db_tables(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		data_type TEXT NOT NULL DEFAULT '',
		nullable INTEGER NOT NULL DEFAULT 1,
		comment TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		summary TEXT NOT NULL DEFAULT '',
		UNIQUE(table_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS db_pk (
		table_id TEXT NOT NULL REFERENCES db_tables(id) ON DELETE CASCADE,
		column_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY(table_id, column_name)
	)`,
	`CREATE TABLE IF NOT EXISTS joins (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		left_table TEXT NOT NULL,
		left_column TEXT NOT NULL,
		right_table TEXT NOT NULL,
		right_column TEXT NOT NULL,
		source_sql_unit_id TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		inferred_pkfk INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		join_type TEXT NOT NULL DEFAULT '',
		occurrences INTEGER NOT NULL DEFAULT 1,
		evidence TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_joins_project ON joins(project)`,
	`CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		file_id TEXT REFERENCES files(id) ON DELETE CASCADE,
		scope TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		line INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_diagnostics_project ON diagnostics(project, scope)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// inTx 在事务中执行 fn，出错回滚
func (s *Store) inTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", what, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", what, err)
	}
	return nil
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func decodeJSON[T any](s string) T {
	var v T
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
