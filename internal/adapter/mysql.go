package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"schema-miner/internal/model"
)

// MySQLSource 从 INFORMATION_SCHEMA 读取 MySQL 目录
type MySQLSource struct {
	db     *sql.DB
	schema string
}

const (
	mysqlTablesQuery = `
		SELECT TABLE_NAME, COALESCE(TABLE_COMMENT, '')
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	// 只取基表的列，视图列不进入目录
	mysqlColumnsQuery = `
		SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.COLUMN_TYPE,
			c.IS_NULLABLE = 'YES',
			c.ORDINAL_POSITION,
			COALESCE(c.COLUMN_COMMENT, '')
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION
	`

	mysqlPrimaryKeysQuery = `
		SELECT TABLE_NAME, COLUMN_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION
	`
)

// NewMySQLSource 创建 MySQL 来源；schema 为空时使用连接的默认库
func NewMySQLSource(ctx context.Context, dsn, schema string) (*MySQLSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	src, err := newMySQLSource(ctx, db, schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

func newMySQLSource(ctx context.Context, db *sql.DB, schema string) (*MySQLSource, error) {
	if schema == "" {
		if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&schema); err != nil {
			return nil, fmt.Errorf("failed to resolve current database: %w", err)
		}
	}
	return &MySQLSource{db: db, schema: schema}, nil
}

// Name 实现 Source
func (s *MySQLSource) Name() string { return "mysql:" + s.schema }

// Load 读取表、列与主键
func (s *MySQLSource) Load(ctx context.Context) ([]model.DbTable, error) {
	b := newBuilder(s.schema)

	if err := s.tables(ctx, b); err != nil {
		return nil, err
	}
	if err := s.columns(ctx, b); err != nil {
		return nil, err
	}
	if err := s.primaryKeys(ctx, b); err != nil {
		return nil, err
	}
	return b.build(), nil
}

func (s *MySQLSource) tables(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, mysqlTablesQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return err
		}
		b.table(s.schema, name).Comment = comment
	}
	return rows.Err()
}

func (s *MySQLSource) columns(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, mysqlColumnsQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		var c model.DbColumn
		if err := rows.Scan(&table, &c.Name, &c.DataType, &c.Nullable, &c.Position, &c.Comment); err != nil {
			return err
		}
		b.column(s.schema, table, c)
	}
	return rows.Err()
}

func (s *MySQLSource) primaryKeys(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, mysqlPrimaryKeysQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		var pos int
		if err := rows.Scan(&table, &column, &pos); err != nil {
			return err
		}
		b.primaryKey(s.schema, table, column, pos)
	}
	return rows.Err()
}

// Close 关闭连接
func (s *MySQLSource) Close() error {
	return s.db.Close()
}
