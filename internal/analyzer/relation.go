package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schema-miner/internal/catalog"
	"schema-miner/internal/config"
	"schema-miner/internal/logging"
	"schema-miner/internal/model"
)

// 证据类型
const (
	EvidenceExplicit   = "explicit_join"
	EvidenceImplicit   = "implicit_join"
	EvidenceDeclaredFK = "declared_fk"
	EvidenceNaming     = "fk_naming"
	EvidencePrimaryKey = "primary_key"
)

// JoinTypeDeclared DDL 中 FOREIGN KEY / REFERENCES 产生的三元组
const JoinTypeDeclared = "FK"

// Input 一次推断的全部输入
type Input struct {
	Project string
	Units   []model.SQLUnit
	Paths   map[string]string // file ID -> 路径，用于诊断
	Catalog *catalog.Catalog
}

// TableEdge sql_unit -> db_table 的读写边
type TableEdge struct {
	FileID string
	Edge   model.Edge
}

// Result 推断结果，全部按确定顺序排列
type Result struct {
	Joins       []model.Join
	TableEdges  []TableEdge
	Lookups     []LookupTable
	Diagnostics []model.Diagnostic
	Triples     int // 输入三元组数
	Dropped     int // 无法解析而丢弃的三元组数
}

// JoinInferer 连接推断引擎
type JoinInferer struct {
	cfg       config.InferenceConfig
	heuristic FKHeuristic
	logger    *zap.Logger
}

// NewJoinInferer 创建推断引擎；heuristic 为空时使用 NamingHeuristic
func NewJoinInferer(cfg config.InferenceConfig, heuristic FKHeuristic, logger *zap.Logger) *JoinInferer {
	if heuristic == nil {
		heuristic = NewNamingHeuristic(cfg)
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	return &JoinInferer{cfg: cfg, heuristic: heuristic, logger: logging.OrNop(logger).Named("inference")}
}

// side 已解析的一侧
type side struct {
	table  *model.DbTable
	column string
	pk     bool
}

func (s side) key() string {
	return s.table.Qualified() + "." + s.column
}

// contribution 单个三元组对某一列对的贡献
type contribution struct {
	unitID     string
	confidence float64
	kind       model.JoinKind
	joinType   string
	evidence   []model.Evidence
	naming     bool
	left       side
	right      side
}

// accumulator 同一无序列对的合并状态
type accumulator struct {
	best        contribution
	occurrences int
	naming      bool
}

func (a *accumulator) add(c contribution) {
	a.occurrences++
	a.naming = a.naming || c.naming
	if a.occurrences == 1 || c.confidence > a.best.confidence ||
		(c.confidence == a.best.confidence && c.unitID < a.best.unitID) {
		a.best = c
	}
}

func (a *accumulator) merge(o *accumulator) {
	n := a.occurrences + o.occurrences
	a.add(o.best)
	a.occurrences = n
	a.naming = a.naming || o.naming
}

type shardResult struct {
	pairs   map[string]*accumulator
	edges   []TableEdge
	diags   []model.Diagnostic
	triples int
	dropped int
}

// Infer 解析、打分并合并所有三元组；结果与分片数和输入顺序无关
func (r *JoinInferer) Infer(ctx context.Context, in Input) (*Result, error) {
	if in.Catalog == nil {
		in.Catalog = catalog.New("", nil)
	}
	units := append([]model.SQLUnit(nil), in.Units...)
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	shards := r.cfg.Shards
	if shards > len(units) {
		shards = len(units)
	}
	if shards < 1 {
		shards = 1
	}
	results := make([]*shardResult, shards)

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		g.Go(func() error {
			res := &shardResult{pairs: make(map[string]*accumulator)}
			for i := s; i < len(units); i += shards {
				if err := gctx.Err(); err != nil {
					return err
				}
				r.processUnit(in, &units[i], res)
			}
			results[s] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("join inference: %w", err)
	}

	merged := make(map[string]*accumulator)
	out := &Result{}
	for _, res := range results {
		for id, acc := range res.pairs {
			if prev, ok := merged[id]; ok {
				prev.merge(acc)
			} else {
				merged[id] = acc
			}
		}
		out.TableEdges = append(out.TableEdges, res.edges...)
		out.Diagnostics = append(out.Diagnostics, res.diags...)
		out.Triples += res.triples
		out.Dropped += res.dropped
	}

	for id, acc := range merged {
		out.Joins = append(out.Joins, r.finish(in.Project, id, acc))
	}
	sort.Slice(out.Joins, func(i, j int) bool {
		a, b := out.Joins[i], out.Joins[j]
		if a.LeftTable != b.LeftTable {
			return a.LeftTable < b.LeftTable
		}
		if a.LeftColumn != b.LeftColumn {
			return a.LeftColumn < b.LeftColumn
		}
		if a.RightTable != b.RightTable {
			return a.RightTable < b.RightTable
		}
		return a.RightColumn < b.RightColumn
	})
	out.TableEdges = dedupeTableEdges(out.TableEdges)
	sortDiagnostics(out.Diagnostics)
	out.Lookups = DetectLookupTables(in.Catalog, out.Joins)

	r.logger.Info("join inference complete",
		zap.String("project", in.Project),
		zap.Int("units", len(units)),
		zap.Int("triples", out.Triples),
		zap.Int("dropped", out.Dropped),
		zap.Int("joins", len(out.Joins)),
		zap.Int("lookups", len(out.Lookups)),
		zap.Int("shards", shards))
	return out, nil
}

func (r *JoinInferer) processUnit(in Input, u *model.SQLUnit, res *shardResult) {
	path := in.Paths[u.FileID]
	diag := func(code, format string, args ...any) {
		d := model.Warn(model.ScopeInference, path, code, format, args...)
		d.Subject = u.ID
		d.Line = u.Line
		res.diags = append(res.diags, d)
	}

	for _, ref := range u.Tables {
		e := model.Edge{SrcType: model.NodeSQLUnit, SrcID: u.ID, Kind: model.EdgeReads}
		if ref.Write {
			e.Kind = model.EdgeWrites
		}
		if t, found := in.Catalog.Resolve(ref.Qualified()); found == catalog.Found {
			e.DstType, e.DstID = model.NodeDbTable, t.ID
		} else {
			e.DstType, e.DstID = model.NodeTableName, strings.ToUpper(ref.Qualified())
		}
		res.edges = append(res.edges, TableEdge{FileID: u.FileID, Edge: e})
	}

	for _, t := range u.Joins {
		res.triples++
		left, ok := r.resolve(in.Catalog, t.LeftTable, t.LeftColumn, diag)
		if !ok {
			res.dropped++
			continue
		}
		right, ok := r.resolve(in.Catalog, t.RightTable, t.RightColumn, diag)
		if !ok {
			res.dropped++
			continue
		}
		if left.table.ID == right.table.ID && left.column == right.column {
			continue
		}
		c := r.score(u.ID, t, left, right)
		id := model.JoinID(in.Project, left.table.Qualified(), left.column, right.table.Qualified(), right.column)
		acc, ok := res.pairs[id]
		if !ok {
			acc = &accumulator{}
			res.pairs[id] = acc
		}
		acc.add(c)
	}
}

func (r *JoinInferer) resolve(cat *catalog.Catalog, written, column string,
	diag func(code, format string, args ...any)) (side, bool) {
	t, res := cat.Resolve(written)
	switch res {
	case catalog.Ambiguous:
		diag(model.CodeAmbiguousTable, "table %q matches several owners", written)
		return side{}, false
	case catalog.NotFound:
		diag(model.CodeUnresolvedAlias, "table or alias %q not found in catalog", written)
		return side{}, false
	}
	col := strings.ToUpper(column)
	// 目录只有表没有列时不校验列名
	if len(t.Columns) > 0 {
		c, ok := cat.Column(t, col)
		if !ok {
			diag(model.CodeUnknownColumn, "column %s not found in %s", col, t.Qualified())
			return side{}, false
		}
		col = c.Name
	}
	return side{table: t, column: col, pk: cat.IsPrimaryKey(t, col)}, true
}

// score 单个三元组的置信度与证据
func (r *JoinInferer) score(unitID string, t model.JoinTriple, left, right side) contribution {
	c := contribution{unitID: unitID, kind: t.Kind, joinType: t.JoinType, left: left, right: right}

	base, evType := r.cfg.ImplicitBase, EvidenceImplicit
	if t.Kind == model.JoinExplicit {
		base, evType = r.cfg.ExplicitBase, EvidenceExplicit
	}
	if t.JoinType == JoinTypeDeclared {
		evType = EvidenceDeclaredFK
	}
	c.evidence = append(c.evidence, model.Evidence{Type: evType, Score: base})
	total := base

	// 恰好一侧为主键时该侧视为被引用方
	switch {
	case left.pk && !right.pk:
		c.left, c.right = left, right
	case right.pk && !left.pk:
		c.left, c.right = right, left
	default:
		if left.key() > right.key() {
			c.left, c.right = right, left
		}
	}

	if m, ok := r.heuristic.Match(c.right.table, c.right.column, c.left.table, c.left.column); ok {
		c.naming = true
		c.evidence = append(c.evidence, model.Evidence{Type: EvidenceNaming, Score: r.cfg.NamingBoost, Detail: m.Detail})
		total += r.cfg.NamingBoost
	} else if !left.pk && !right.pk {
		// 无主键信息时反向再试一次，命中则以命名指向的一侧为被引用方
		if m, ok := r.heuristic.Match(c.left.table, c.left.column, c.right.table, c.right.column); ok {
			c.left, c.right = c.right, c.left
			c.naming = true
			c.evidence = append(c.evidence, model.Evidence{Type: EvidenceNaming, Score: r.cfg.NamingBoost, Detail: m.Detail})
			total += r.cfg.NamingBoost
		}
	}

	if left.pk || right.pk {
		c.evidence = append(c.evidence, model.Evidence{
			Type: EvidencePrimaryKey, Score: r.cfg.PrimaryKeyBoost, Detail: c.left.key(),
		})
		total += r.cfg.PrimaryKeyBoost
	}
	c.confidence = model.Clamp(total)
	return c
}

func (r *JoinInferer) finish(project, id string, acc *accumulator) model.Join {
	b := acc.best
	return model.Join{
		ID:              id,
		Project:         project,
		LeftTable:       b.left.table.Qualified(),
		LeftColumn:      b.left.column,
		RightTable:      b.right.table.Qualified(),
		RightColumn:     b.right.column,
		SourceSQLUnitID: b.unitID,
		Confidence:      b.confidence,
		InferredPKFK:    acc.naming,
		Kind:            b.kind,
		JoinType:        b.joinType,
		Occurrences:     acc.occurrences,
		Evidence:        b.evidence,
	}
}

// dedupeTableEdges 按边的自然键排序去重
func dedupeTableEdges(edges []TableEdge) []TableEdge {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Edge.Key() < edges[j].Edge.Key() })
	var out []TableEdge
	for _, e := range edges {
		if len(out) > 0 && out[len(out)-1].Edge.Key() == e.Edge.Key() {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortDiagnostics(diags []model.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}
