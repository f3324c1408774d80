package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schema-miner/internal/model"
)

// ReplaceFileExtraction 以单个事务替换文件及其拥有的全部实体
//
// fx 必须已经过 model.Finalize。旧实体中 ID 未变的摘要会被保留。
func (s *Store) ReplaceFileExtraction(ctx context.Context, fx *model.FileExtraction) error {
	f := fx.File
	if f.ID == "" {
		return fmt.Errorf("file %s has no id: extraction not finalized", f.Path)
	}
	if f.LastParsedAt.IsZero() {
		f.LastParsedAt = time.Now().UTC()
	}

	return s.inTx(ctx, "replace file", func(tx *sql.Tx) error {
		kept, err := ownedSummaries(ctx, tx, f.ID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (id, project, path, language, content_hash, line_count, last_parsed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				language = excluded.language,
				content_hash = excluded.content_hash,
				line_count = excluded.line_count,
				last_parsed_at = excluded.last_parsed_at`,
			f.ID, f.Project, f.Path, string(f.Language), f.ContentHash, f.LineCount,
			f.LastParsedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upsert file %s: %w", f.Path, err)
		}

		for _, stmt := range []string{
			`DELETE FROM classes WHERE file_id = ?`,
			`DELETE FROM sql_units WHERE file_id = ?`,
			`DELETE FROM edges WHERE file_id = ?`,
			`DELETE FROM diagnostics WHERE file_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, f.ID); err != nil {
				return fmt.Errorf("clear entities of %s: %w", f.Path, err)
			}
		}

		for _, c := range fx.Classes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO classes (id, file_id, name, package, kind, extends, implements, annotations,
					modifiers, is_interface, is_abstract, line, certainty, confidence, note, summary)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, f.ID, c.Name, c.Package, string(c.Kind), c.Extends, encodeJSON(c.Implements),
				encodeJSON(c.Annotations), encodeJSON(c.Modifiers), boolInt(c.IsInterface), boolInt(c.IsAbstract),
				c.Line, c.Extraction.Certainty.String(), c.Extraction.Confidence, c.Extraction.Note, kept[c.ID]); err != nil {
				return fmt.Errorf("insert class %s: %w", c.Name, err)
			}
		}
		for _, m := range fx.Methods {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO methods (id, class_id, class_name, name, return_type, parameters, modifiers,
					annotations, throws, is_constructor, line, certainty, confidence, note, summary)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.ClassID, m.ClassName, m.Name, m.ReturnType, encodeJSON(m.Parameters), encodeJSON(m.Modifiers),
				encodeJSON(m.Annotations), encodeJSON(m.Throws), boolInt(m.IsConstructor), m.Line,
				m.Extraction.Certainty.String(), m.Extraction.Confidence, m.Extraction.Note, kept[m.ID]); err != nil {
				return fmt.Errorf("insert method %s: %w", m.Name, err)
			}
		}
		for _, u := range fx.SQLUnits {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sql_units (id, file_id, statement_key, source_kind, statement_type, raw_text,
					resolved_text, has_dynamic, parse_confidence, line, method_name, tables, columns, joins, summary)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				u.ID, f.ID, u.StatementKey, string(u.SourceKind), string(u.StatementType), u.RawText,
				u.ResolvedText, boolInt(u.HasDynamicContent), u.ParseConfidence, u.Line, u.MethodName,
				encodeJSON(u.Tables), encodeJSON(u.Columns), encodeJSON(u.Joins), kept[u.ID]); err != nil {
				return fmt.Errorf("insert sql unit %s: %w", u.StatementKey, err)
			}
		}
		if err := insertEdges(ctx, tx, f.Project, f.ID, false, fx.Edges); err != nil {
			return err
		}

		diags := append([]model.Diagnostic(nil), fx.Diagnostics...)
		for _, u := range fx.SQLUnits {
			diags = append(diags, u.Diagnostics...)
		}
		return insertDiagnostics(ctx, tx, f.Project, f.ID, diags)
	})
}

// ownedSummaries 文件下已有实体的摘要，ID -> 文本
func ownedSummaries(ctx context.Context, tx *sql.Tx, fileID string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, summary FROM classes WHERE file_id = ?1 AND summary <> ''
		UNION ALL
		SELECT m.id, m.summary FROM methods m JOIN classes c ON c.id = m.class_id
			WHERE c.file_id = ?1 AND m.summary <> ''
		UNION ALL
		SELECT id, summary FROM sql_units WHERE file_id = ?1 AND summary <> ''`, fileID)
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		out[id] = text
	}
	return out, rows.Err()
}

func insertEdges(ctx context.Context, tx *sql.Tx, project, fileID string, derived bool, edges []model.Edge) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO edges (project, src_type, src_id, kind, dst_type, dst_id, metadata, file_id, derived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		meta := "{}"
		if len(e.Metadata) > 0 {
			b, _ := json.Marshal(e.Metadata)
			meta = string(b)
		}
		var owner any
		if fileID != "" {
			owner = fileID
		}
		if _, err := stmt.ExecContext(ctx, project, e.SrcType, e.SrcID, e.Kind, e.DstType, e.DstID,
			meta, owner, boolInt(derived)); err != nil {
			return fmt.Errorf("insert edge %s %s->%s: %w", e.Kind, e.SrcID, e.DstID, err)
		}
	}
	return nil
}

func insertDiagnostics(ctx context.Context, tx *sql.Tx, project, fileID string, diags []model.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diagnostics (project, file_id, scope, path, subject, severity, code, message, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer stmt.Close()

	var owner any
	if fileID != "" {
		owner = fileID
	}
	for _, d := range diags {
		if _, err := stmt.ExecContext(ctx, project, owner, d.Scope, d.Path, d.Subject,
			string(d.Severity), d.Code, d.Message, d.Line); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}
	return nil
}

// PurgeFiles 删除已不存在的文件及其拥有的实体
func (s *Store) PurgeFiles(ctx context.Context, project string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	n := 0
	err := s.inTx(ctx, "purge files", func(tx *sql.Tx) error {
		for _, p := range paths {
			res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project = ? AND path = ?`, project, p)
			if err != nil {
				return fmt.Errorf("purge %s: %w", p, err)
			}
			affected, _ := res.RowsAffected()
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("files purged", zap.String("project", project), zap.Int("count", n))
	return n, nil
}

// FileHashes 路径 -> 内容哈希
func (s *Store) FileHashes(ctx context.Context, project string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, content_hash FROM files WHERE project = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("query file hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// FetchFiles 项目下的文件，按路径排序
func (s *Store) FetchFiles(ctx context.Context, project string) ([]model.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, path, language, content_hash, line_count, last_parsed_at
		FROM files WHERE project = ? ORDER BY path`, project)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		var f model.File
		var lang, parsed string
		if err := rows.Scan(&f.ID, &f.Project, &f.Path, &lang, &f.ContentHash, &f.LineCount, &parsed); err != nil {
			return nil, err
		}
		f.Language = model.Language(lang)
		f.LastParsedAt, _ = time.Parse(time.RFC3339Nano, parsed)
		out = append(out, f)
	}
	return out, rows.Err()
}

// FetchClasses 项目下的类
func (s *Store) FetchClasses(ctx context.Context, project string) ([]model.ClassEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_id, c.name, c.package, c.kind, c.extends, c.implements, c.annotations,
			c.modifiers, c.is_interface, c.is_abstract, c.line, c.certainty, c.confidence, c.note
		FROM classes c JOIN files f ON f.id = c.file_id
		WHERE f.project = ? ORDER BY f.path, c.line, c.name`, project)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var out []model.ClassEntity
	for rows.Next() {
		var c model.ClassEntity
		var kind, impl, ann, mods, certainty string
		if err := rows.Scan(&c.ID, &c.FileID, &c.Name, &c.Package, &kind, &c.Extends, &impl, &ann,
			&mods, &c.IsInterface, &c.IsAbstract, &c.Line, &certainty, &c.Extraction.Confidence, &c.Extraction.Note); err != nil {
			return nil, err
		}
		c.Kind = model.ClassKind(kind)
		c.Implements = decodeJSON[[]string](impl)
		c.Annotations = decodeJSON[[]string](ann)
		c.Modifiers = decodeJSON[[]string](mods)
		c.Extraction.Certainty = model.ParseCertainty(certainty)
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchMethods 项目下的方法
func (s *Store) FetchMethods(ctx context.Context, project string) ([]model.MethodEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.class_id, m.class_name, m.name, m.return_type, m.parameters, m.modifiers,
			m.annotations, m.throws, m.is_constructor, m.line, m.certainty, m.confidence, m.note
		FROM methods m JOIN classes c ON c.id = m.class_id JOIN files f ON f.id = c.file_id
		WHERE f.project = ? ORDER BY f.path, m.line, m.name`, project)
	if err != nil {
		return nil, fmt.Errorf("query methods: %w", err)
	}
	defer rows.Close()

	var out []model.MethodEntity
	for rows.Next() {
		var m model.MethodEntity
		var params, mods, ann, throws, certainty string
		if err := rows.Scan(&m.ID, &m.ClassID, &m.ClassName, &m.Name, &m.ReturnType, &params, &mods,
			&ann, &throws, &m.IsConstructor, &m.Line, &certainty, &m.Extraction.Confidence, &m.Extraction.Note); err != nil {
			return nil, err
		}
		m.Parameters = decodeJSON[[]model.Parameter](params)
		m.Modifiers = decodeJSON[[]string](mods)
		m.Annotations = decodeJSON[[]string](ann)
		m.Throws = decodeJSON[[]string](throws)
		m.Extraction.Certainty = model.ParseCertainty(certainty)
		out = append(out, m)
	}
	return out, rows.Err()
}

// FetchSQLUnits 项目下的 SQL 单元，按文件路径与行号排序
func (s *Store) FetchSQLUnits(ctx context.Context, project string) ([]model.SQLUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.file_id, u.statement_key, u.source_kind, u.statement_type, u.raw_text,
			u.resolved_text, u.has_dynamic, u.parse_confidence, u.line, u.method_name,
			u.tables, u.columns, u.joins
		FROM sql_units u JOIN files f ON f.id = u.file_id
		WHERE f.project = ? ORDER BY f.path, u.line, u.statement_key`, project)
	if err != nil {
		return nil, fmt.Errorf("query sql units: %w", err)
	}
	defer rows.Close()

	var out []model.SQLUnit
	for rows.Next() {
		var u model.SQLUnit
		var kind, typ, tables, columns, joins string
		if err := rows.Scan(&u.ID, &u.FileID, &u.StatementKey, &kind, &typ, &u.RawText,
			&u.ResolvedText, &u.HasDynamicContent, &u.ParseConfidence, &u.Line, &u.MethodName,
			&tables, &columns, &joins); err != nil {
			return nil, err
		}
		u.SourceKind = model.SourceKind(kind)
		u.StatementType = model.StatementType(typ)
		u.Tables = decodeJSON[[]model.TableRef](tables)
		u.Columns = decodeJSON[[]model.ColumnRef](columns)
		u.Joins = decodeJSON[[]model.JoinTriple](joins)
		out = append(out, u)
	}
	return out, rows.Err()
}

// FetchEdges 项目下的所有边
func (s *Store) FetchEdges(ctx context.Context, project string) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src_type, src_id, kind, dst_type, dst_id, metadata
		FROM edges WHERE project = ?
		ORDER BY src_type, src_id, kind, dst_type, dst_id`, project)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []model.Edge
	for rows.Next() {
		var e model.Edge
		var meta string
		if err := rows.Scan(&e.SrcType, &e.SrcID, &e.Kind, &e.DstType, &e.DstID, &meta); err != nil {
			return nil, err
		}
		if meta != "{}" {
			e.Metadata = decodeJSON[map[string]string](meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
