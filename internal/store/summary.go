package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// 可写入摘要的实体种类
const (
	KindFile     = "file"
	KindClass    = "class"
	KindMethod   = "method"
	KindSQLUnit  = "sql_unit"
	KindDbTable  = "db_table"
	KindDbColumn = "db_column"
)

// summaryTables 种类 -> 表名、展示字段与项目范围
//
// scope 为按项目过滤的 FROM 子句，实体表别名 e；目录实体不分项目，scope 为空。
var summaryTables = map[string]struct {
	table string
	label string
	scope string
}{
	KindFile:  {"files", "e.path", "files e WHERE e.project = ?"},
	KindClass: {"classes", "e.name", "classes e JOIN files f ON f.id = e.file_id WHERE f.project = ?"},
	KindMethod: {"methods", "e.class_name || '#' || e.name",
		"methods e JOIN classes c ON c.id = e.class_id JOIN files f ON f.id = c.file_id WHERE f.project = ?"},
	KindSQLUnit:  {"sql_units", "e.statement_key", "sql_units e JOIN files f ON f.id = e.file_id WHERE f.project = ?"},
	KindDbTable:  {"db_tables", "e.owner || '.' || e.name", ""},
	KindDbColumn: {"db_columns", "e.name", ""},
}

// SummaryKinds 支持的种类
func SummaryKinds() []string {
	return []string{KindFile, KindClass, KindMethod, KindSQLUnit, KindDbTable, KindDbColumn}
}

// SummaryTarget 待补充摘要的实体
type SummaryTarget struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

// EntitiesLackingSummary 项目内尚无摘要的实体，按 ID 排序；表与列属于共享目录
func (s *Store) EntitiesLackingSummary(ctx context.Context, project, kind string, limit int) ([]SummaryTarget, error) {
	t, ok := summaryTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if limit <= 0 {
		limit = -1
	}
	var (
		query string
		args  []any
	)
	if t.scope != "" {
		query = fmt.Sprintf(`SELECT e.id, %s FROM %s AND e.summary = '' ORDER BY e.id LIMIT ?`, t.label, t.scope)
		args = []any{project, limit}
	} else {
		query = fmt.Sprintf(`SELECT e.id, %s FROM %s e WHERE e.summary = '' ORDER BY e.id LIMIT ?`, t.label, t.table)
		args = []any{limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s lacking summary: %w", kind, err)
	}
	defer rows.Close()

	var out []SummaryTarget
	for rows.Next() {
		st := SummaryTarget{Kind: kind}
		if err := rows.Scan(&st.ID, &st.Label); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SetSummary 按 ID 写入摘要
func (s *Store) SetSummary(ctx context.Context, kind, id, text string) error {
	t, ok := summaryTables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET summary = ? WHERE id = ?`, t.table), text, id)
	if err != nil {
		return fmt.Errorf("set summary on %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// Summary 读取摘要
func (s *Store) Summary(ctx context.Context, kind, id string) (string, error) {
	t, ok := summaryTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	var text string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT summary FROM %s WHERE id = ?`, t.table), id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read summary of %s %s: %w", kind, id, err)
	}
	return text, nil
}

// Counts 实体数量统计
type Counts struct {
	Files       int `json:"files"`
	Classes     int `json:"classes"`
	Methods     int `json:"methods"`
	SQLUnits    int `json:"sql_units"`
	Edges       int `json:"edges"`
	Tables      int `json:"tables"`
	Columns     int `json:"columns"`
	Joins       int `json:"joins"`
	Diagnostics int `json:"diagnostics"`
}

// Counts 项目的实体数量；目录表为全局
func (s *Store) Counts(ctx context.Context, project string) (Counts, error) {
	var c Counts
	queries := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&c.Files, `SELECT COUNT(*) FROM files WHERE project = ?`, []any{project}},
		{&c.Classes, `SELECT COUNT(*) FROM classes c JOIN files f ON f.id = c.file_id WHERE f.project = ?`, []any{project}},
		{&c.Methods, `SELECT COUNT(*) FROM methods m JOIN classes c ON c.id = m.class_id JOIN files f ON f.id = c.file_id WHERE f.project = ?`, []any{project}},
		{&c.SQLUnits, `SELECT COUNT(*) FROM sql_units u JOIN files f ON f.id = u.file_id WHERE f.project = ?`, []any{project}},
		{&c.Edges, `SELECT COUNT(*) FROM edges WHERE project = ?`, []any{project}},
		{&c.Tables, `SELECT COUNT(*) FROM db_tables`, nil},
		{&c.Columns, `SELECT COUNT(*) FROM db_columns`, nil},
		{&c.Joins, `SELECT COUNT(*) FROM joins WHERE project = ?`, []any{project}},
		{&c.Diagnostics, `SELECT COUNT(*) FROM diagnostics WHERE project = ?`, []any{project}},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count: %w", err)
		}
	}
	return c, nil
}
