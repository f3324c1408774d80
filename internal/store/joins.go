package store

import (
	"context"
	"database/sql"
	"fmt"

	"schema-miner/internal/model"
)

// ReplaceJoins 以推断结果整体替换项目的连接边
func (s *Store) ReplaceJoins(ctx context.Context, project string, joins []model.Join) error {
	return s.inTx(ctx, "replace joins", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM joins WHERE project = ?`, project); err != nil {
			return fmt.Errorf("clear joins: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO joins (id, project, left_table, left_column, right_table, right_column,
				source_sql_unit_id, confidence, inferred_pkfk, kind, join_type, occurrences, evidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare join insert: %w", err)
		}
		defer stmt.Close()

		for _, j := range joins {
			if _, err := stmt.ExecContext(ctx, j.ID, project, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn,
				j.SourceSQLUnitID, j.Confidence, boolInt(j.InferredPKFK), string(j.Kind), j.JoinType,
				j.Occurrences, encodeJSON(j.Evidence)); err != nil {
				return fmt.Errorf("insert join %s.%s-%s.%s: %w", j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn, err)
			}
		}
		return nil
	})
}

// FetchJoins 项目的连接边，按置信度降序
func (s *Store) FetchJoins(ctx context.Context, project string) ([]model.Join, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, left_table, left_column, right_table, right_column, source_sql_unit_id,
			confidence, inferred_pkfk, kind, join_type, occurrences, evidence
		FROM joins WHERE project = ?
		ORDER BY confidence DESC, left_table, left_column, right_table, right_column`, project)
	if err != nil {
		return nil, fmt.Errorf("query joins: %w", err)
	}
	defer rows.Close()

	var out []model.Join
	for rows.Next() {
		var j model.Join
		var kind, evidence string
		if err := rows.Scan(&j.ID, &j.Project, &j.LeftTable, &j.LeftColumn, &j.RightTable, &j.RightColumn,
			&j.SourceSQLUnitID, &j.Confidence, &j.InferredPKFK, &kind, &j.JoinType, &j.Occurrences, &evidence); err != nil {
			return nil, err
		}
		j.Kind = model.JoinKind(kind)
		j.Evidence = decodeJSON[[]model.Evidence](evidence)
		out = append(out, j)
	}
	return out, rows.Err()
}

// DerivedEdge 推断产生的边及其所属文件
type DerivedEdge struct {
	FileID string
	Edge   model.Edge
}

// ReplaceDerivedEdges 整体替换推断产生的边（reads/writes）
func (s *Store) ReplaceDerivedEdges(ctx context.Context, project string, edges []DerivedEdge) error {
	return s.inTx(ctx, "replace derived edges", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE project = ? AND derived = 1`, project); err != nil {
			return fmt.Errorf("clear derived edges: %w", err)
		}
		for _, d := range edges {
			if err := insertEdges(ctx, tx, project, d.FileID, true, []model.Edge{d.Edge}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceDiagnostics 替换项目在某个作用域下不属于任何文件的诊断
func (s *Store) ReplaceDiagnostics(ctx context.Context, project, scope string, diags []model.Diagnostic) error {
	return s.inTx(ctx, "replace diagnostics", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM diagnostics WHERE project = ? AND scope = ? AND file_id IS NULL`,
			project, scope); err != nil {
			return fmt.Errorf("clear diagnostics: %w", err)
		}
		return insertDiagnostics(ctx, tx, project, "", diags)
	})
}

// FetchDiagnostics 项目下的诊断；scope 为空时返回全部
func (s *Store) FetchDiagnostics(ctx context.Context, project, scope string) ([]model.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, path, subject, severity, code, message, line
		FROM diagnostics WHERE project = ? AND (? = '' OR scope = ?)
		ORDER BY path, line, id`, project, scope, scope)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []model.Diagnostic
	for rows.Next() {
		var d model.Diagnostic
		var severity string
		if err := rows.Scan(&d.Scope, &d.Path, &d.Subject, &severity, &d.Code, &d.Message, &d.Line); err != nil {
			return nil, err
		}
		d.Severity = model.Severity(severity)
		out = append(out, d)
	}
	return out, rows.Err()
}
