package sqlparse

import (
	"context"
	"fmt"
	"strings"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
)

// Parser 原始 .sql 文件解析器
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser { return &Parser{} }

// Language 实现 parser.Parser
func (p *Parser) Language() model.Language { return model.LanguageSQL }

// Parse 切分语句，过程块再拆出其中的 DML
func (p *Parser) Parse(ctx context.Context, in parser.FileInput) (*model.FileExtraction, error) {
	fx := parser.NewExtraction(in)
	src := string(in.Content)

	for n, stmt := range Split(src) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("stmt:%d", n+1)
		line := parser.LineAt(in.Content, stmt.Offset)

		if stmt.Block {
			inner := InnerStatements(stmt.Text)
			if len(inner) == 0 {
				fx.SQLUnits = append(fx.SQLUnits, BuildUnit(key, model.SourceRawSQLFile, stmt.Text, line))
				continue
			}
			for m, st := range inner {
				innerLine := parser.LineAt(in.Content, stmt.Offset+st.Offset)
				fx.SQLUnits = append(fx.SQLUnits, BuildUnit(fmt.Sprintf("%s.%d", key, m+1), model.SourceRawSQLFile, st.Text, innerLine))
			}
			continue
		}
		fx.SQLUnits = append(fx.SQLUnits, BuildUnit(key, model.SourceRawSQLFile, stmt.Text, line))
	}
	return fx, nil
}

// BuildUnit 分析文本并生成 SQLUnit，各语言解析器共用
func BuildUnit(key string, kind model.SourceKind, raw string, line int) model.SQLUnit {
	return BuildUnitResolved(key, kind, raw, raw, false, line)
}

// BuildUnitResolved resolved 为拼接/展开后的文本，dynamic 由调用方给出
func BuildUnitResolved(key string, kind model.SourceKind, raw, resolved string, dynamic bool, line int) model.SQLUnit {
	an := Analyze(resolved)
	unit := model.SQLUnit{
		StatementKey:      key,
		SourceKind:        kind,
		StatementType:     an.Type,
		RawText:           raw,
		ResolvedText:      strings.TrimSpace(resolved),
		HasDynamicContent: dynamic || an.Dynamic,
		Line:              line,
		Tables:            an.Tables,
		Columns:           an.Columns,
		Joins:             an.Joins,
	}

	ext := an.Extraction
	if dynamic && ext.Certainty == model.Definite {
		ext = ext.Downgrade(confidenceDynamic, "dynamic fragment")
	}
	unit.ParseConfidence = ext.Confidence

	if ext.Certainty == model.Unparsed {
		unit.Diagnostics = append(unit.Diagnostics, model.Warn(model.ScopeParse, "", model.CodeUnparsedSQL, "statement could not be parsed: %s", ext.Note))
	} else if ext.Certainty == model.Probable {
		unit.Diagnostics = append(unit.Diagnostics, model.Diagnostic{
			Scope:    model.ScopeParse,
			Severity: model.SeverityInfo,
			Code:     model.CodeLowConfidence,
			Message:  fmt.Sprintf("statement parsed with confidence %.2f: %s", ext.Confidence, ext.Note),
		})
	}
	for _, note := range an.Notes {
		unit.Diagnostics = append(unit.Diagnostics, model.Diagnostic{
			Scope:    model.ScopeParse,
			Severity: model.SeverityInfo,
			Code:     model.CodeLowConfidence,
			Message:  note,
		})
	}
	for i := range unit.Diagnostics {
		unit.Diagnostics[i].Line = line
	}
	return unit
}
