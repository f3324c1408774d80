package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"

	"schema-miner/internal/model"
)

// SQLServerSource 从 INFORMATION_SCHEMA 读取 SQL Server 目录
type SQLServerSource struct {
	db     *sql.DB
	schema string // 为空时读取所有 schema
}

const (
	sqlserverTablesQuery = `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND (@p1 = '' OR TABLE_SCHEMA = @p1)
		ORDER BY TABLE_SCHEMA, TABLE_NAME
	`

	sqlserverColumnsQuery = `
		SELECT
			c.TABLE_SCHEMA,
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE t.TABLE_TYPE = 'BASE TABLE' AND (@p1 = '' OR c.TABLE_SCHEMA = @p1)
		ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
	`

	sqlserverPrimaryKeysQuery = `
		SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME, ku.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
			ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = ku.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND (@p1 = '' OR tc.TABLE_SCHEMA = @p1)
		ORDER BY ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.ORDINAL_POSITION
	`
)

// NewSQLServerSource 创建 SQL Server 来源
func NewSQLServerSource(ctx context.Context, dsn, schema string) (*SQLServerSource, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlserver: %w", err)
	}
	return &SQLServerSource{db: db, schema: schema}, nil
}

// Name 实现 Source
func (s *SQLServerSource) Name() string {
	if s.schema == "" {
		return "sqlserver"
	}
	return "sqlserver:" + s.schema
}

// Load 读取表、列与主键
func (s *SQLServerSource) Load(ctx context.Context) ([]model.DbTable, error) {
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

func (s *SQLServerSource) tables(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, sqlserverTablesQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, name string
		if err := rows.Scan(&owner, &name); err != nil {
			return err
		}
		b.table(owner, name)
	}
	return rows.Err()
}

func (s *SQLServerSource) columns(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, sqlserverColumnsQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, table string
		var nullable int
		var c model.DbColumn
		if err := rows.Scan(&owner, &table, &c.Name, &c.DataType, &nullable, &c.Position); err != nil {
			return err
		}
		c.Nullable = nullable == 1
		b.column(owner, table, c)
	}
	return rows.Err()
}

func (s *SQLServerSource) primaryKeys(ctx context.Context, b *builder) error {
	rows, err := s.db.QueryContext(ctx, sqlserverPrimaryKeysQuery, s.schema)
	if err != nil {
		return fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, table, column string
		var pos int
		if err := rows.Scan(&owner, &table, &column, &pos); err != nil {
			return err
		}
		b.primaryKey(owner, table, column, pos)
	}
	return rows.Err()
}

// Close 关闭连接
func (s *SQLServerSource) Close() error {
	return s.db.Close()
}
