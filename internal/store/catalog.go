package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"schema-miner/internal/catalog"
	"schema-miner/internal/model"
)

// UpsertCatalog 按自然键写入表、列与主键，已有摘要保留
//
// 不在 tables 中的旧表被删除；prune 为 false 时只做增量写入。
func (s *Store) UpsertCatalog(ctx context.Context, tables []model.DbTable, prune bool) error {
	err := s.inTx(ctx, "upsert catalog", func(tx *sql.Tx) error {
		keep := make(map[string]bool, len(tables))
		for _, t := range tables {
			if t.ID == "" {
				t.ID = model.TableID(t.Owner, t.Name)
			}
			keep[t.ID] = true
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO db_tables (id, owner, name, status, comment) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					owner = excluded.owner, name = excluded.name,
					status = excluded.status, comment = excluded.comment`,
				t.ID, t.Owner, t.Name, t.Status, t.Comment); err != nil {
				return fmt.Errorf("upsert table %s: %w", t.Qualified(), err)
			}
			if err := upsertColumns(ctx, tx, t); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM db_pk WHERE table_id = ?`, t.ID); err != nil {
				return fmt.Errorf("clear primary key of %s: %w", t.Qualified(), err)
			}
			seen := make(map[string]bool, len(t.PrimaryKey))
			for _, col := range t.PrimaryKey {
				col = strings.ToUpper(strings.TrimSpace(col))
				if col == "" || seen[col] {
					continue
				}
				seen[col] = true
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO db_pk (table_id, column_name, position) VALUES (?, ?, ?)
					ON CONFLICT(table_id, column_name) DO NOTHING`,
					t.ID, col, len(seen)); err != nil {
					return fmt.Errorf("insert primary key %s.%s: %w", t.Qualified(), col, err)
				}
			}
		}
		if !prune {
			return nil
		}
		ids, err := queryStrings(ctx, tx, `SELECT id FROM db_tables`)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if keep[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM db_tables WHERE id = ?`, id); err != nil {
				return fmt.Errorf("prune table %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("catalog stored", zap.Int("tables", len(tables)), zap.Bool("prune", prune))
	return nil
}

func upsertColumns(ctx context.Context, tx *sql.Tx, t model.DbTable) error {
	keep := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		id := c.ID
		if id == "" {
			id = model.ColumnID(t.ID, c.Name)
		}
		keep[id] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO db_columns (id, table_id, name, data_type, nullable, comment, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				data_type = excluded.data_type, nullable = excluded.nullable,
				comment = excluded.comment, position = excluded.position`,
			id, t.ID, c.Name, c.DataType, boolInt(c.Nullable), c.Comment, c.Position); err != nil {
			return fmt.Errorf("upsert column %s.%s: %w", t.Qualified(), c.Name, err)
		}
	}
	ids, err := queryStrings(ctx, tx, `SELECT id FROM db_columns WHERE table_id = ?`, t.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !keep[id] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM db_columns WHERE id = ?`, id); err != nil {
				return fmt.Errorf("drop column %s: %w", id, err)
			}
		}
	}
	return nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FetchTables 全部表（不含列），按 OWNER.NAME 排序
func (s *Store) FetchTables(ctx context.Context) ([]model.DbTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, name, status, comment FROM db_tables ORDER BY owner, name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var out []model.DbTable
	for rows.Next() {
		var t model.DbTable
		if err := rows.Scan(&t.ID, &t.Owner, &t.Name, &t.Status, &t.Comment); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FetchColumns 全部列，按表与位置排序
func (s *Store) FetchColumns(ctx context.Context) ([]model.DbColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.table_id, c.name, c.data_type, c.nullable, c.comment, c.position
		FROM db_columns c JOIN db_tables t ON t.id = c.table_id
		ORDER BY t.owner, t.name, c.position, c.name`)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var out []model.DbColumn
	for rows.Next() {
		var c model.DbColumn
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.DataType, &c.Nullable, &c.Comment, &c.Position); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchPK 全部主键列
func (s *Store) FetchPK(ctx context.Context) ([]model.PrimaryKeyColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.owner, t.name, p.column_name, p.position
		FROM db_pk p JOIN db_tables t ON t.id = p.table_id
		ORDER BY t.owner, t.name, p.position`)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	var out []model.PrimaryKeyColumn
	for rows.Next() {
		var p model.PrimaryKeyColumn
		if err := rows.Scan(&p.Owner, &p.Table, &p.Column, &p.Position); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadCatalog 从库中组装目录
func (s *Store) LoadCatalog(ctx context.Context, defaultOwner string) (*catalog.Catalog, error) {
	tables, err := s.FetchTables(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(tables))
	for i, t := range tables {
		idx[t.ID] = i
	}

	columns, err := s.FetchColumns(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range columns {
		if i, ok := idx[c.TableID]; ok {
			tables[i].Columns = append(tables[i].Columns, c)
		}
	}

	pks, err := s.FetchPK(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pks {
		if i, ok := idx[model.TableID(p.Owner, p.Table)]; ok {
			tables[i].PrimaryKey = append(tables[i].PrimaryKey, p.Column)
		}
	}
	return catalog.New(defaultOwner, tables), nil
}
