package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schema-miner/internal/catalog"
	"schema-miner/internal/config"
	"schema-miner/internal/model"
)

func testCatalog() *catalog.Catalog {
	cols := func(names ...string) []model.DbColumn {
		out := make([]model.DbColumn, len(names))
		for i, n := range names {
			out[i] = model.DbColumn{Name: n, Position: i + 1}
		}
		return out
	}
	return catalog.New("APP", []model.DbTable{
		{Owner: "APP", Name: "CUSTOMERS", PrimaryKey: []string{"CUSTOMER_ID"}, Columns: cols("CUSTOMER_ID", "NAME")},
		{Owner: "APP", Name: "ORDERS", PrimaryKey: []string{"ORDER_ID"}, Columns: cols("ORDER_ID", "CUSTOMER_ID", "STATUS_CD")},
		{Owner: "APP", Name: "ORDER_ITEMS", Columns: cols("ORDER_ID", "ITEM_NO", "STATUS_CD")},
		{Owner: "APP", Name: "STATUS_CODE", PrimaryKey: []string{"STATUS_CD"}, Columns: cols("STATUS_CD", "STATUS_NAME")},
		{Owner: "HR", Name: "DUP", Columns: cols("ID")},
		{Owner: "FIN", Name: "DUP", Columns: cols("ID")},
		{Owner: "APP", Name: "A_LOG", Columns: cols("REF", "CODE")},
		{Owner: "APP", Name: "B_LOG", Columns: cols("REF", "CODE")},
	})
}

func inferCfg(t *testing.T) config.InferenceConfig {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg.Inference
}

func unit(id string, joins ...model.JoinTriple) model.SQLUnit {
	return model.SQLUnit{ID: id, FileID: "f1", StatementKey: id, Line: 7, Joins: joins}
}

func explicit(lt, lc, rt, rc string) model.JoinTriple {
	return model.JoinTriple{LeftTable: lt, LeftColumn: lc, RightTable: rt, RightColumn: rc, Kind: model.JoinExplicit, JoinType: "INNER"}
}

func implicit(lt, lc, rt, rc string) model.JoinTriple {
	return model.JoinTriple{LeftTable: lt, LeftColumn: lc, RightTable: rt, RightColumn: rc, Kind: model.JoinImplicit, JoinType: "INNER"}
}

func infer(t *testing.T, cfg config.InferenceConfig, units ...model.SQLUnit) *Result {
	t.Helper()
	r := NewJoinInferer(cfg, nil, zap.NewNop())
	res, err := r.Infer(context.Background(), Input{
		Project: "p",
		Units:   units,
		Paths:   map[string]string{"f1": "src/OrderDao.java"},
		Catalog: testCatalog(),
	})
	require.NoError(t, err)
	return res
}

func TestInferExplicitJoin(t *testing.T) {
	res := infer(t, inferCfg(t), unit("u1", explicit("ORDERS", "CUSTOMER_ID", "customers", "customer_id")))
	require.Len(t, res.Joins, 1)
	j := res.Joins[0]

	assert.Equal(t, "APP.CUSTOMERS", j.LeftTable, "primary key side on the left")
	assert.Equal(t, "CUSTOMER_ID", j.LeftColumn)
	assert.Equal(t, "APP.ORDERS", j.RightTable)
	assert.Equal(t, model.JoinExplicit, j.Kind)
	assert.True(t, j.InferredPKFK)
	assert.InDelta(t, 1.0, j.Confidence, 1e-9)
	assert.Equal(t, "u1", j.SourceSQLUnitID)
	assert.Equal(t, 1, j.Occurrences)
	assert.Equal(t, model.JoinID("p", "APP.ORDERS", "CUSTOMER_ID", "APP.CUSTOMERS", "CUSTOMER_ID"), j.ID)

	types := make([]string, len(j.Evidence))
	for i, e := range j.Evidence {
		types[i] = e.Type
	}
	assert.Equal(t, []string{EvidenceExplicit, EvidenceNaming, EvidencePrimaryKey}, types)
	assert.Empty(t, res.Diagnostics)
}

func TestInferImplicitJoin(t *testing.T) {
	res := infer(t, inferCfg(t), unit("u1", implicit("ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID")))
	require.Len(t, res.Joins, 1)
	assert.Equal(t, model.JoinImplicit, res.Joins[0].Kind)
	assert.InDelta(t, 0.7, res.Joins[0].Confidence, 1e-9)
}

func TestInferMergesByUnorderedPair(t *testing.T) {
	res := infer(t, inferCfg(t),
		unit("u2", implicit("CUSTOMERS", "CUSTOMER_ID", "ORDERS", "CUSTOMER_ID")),
		unit("u3", explicit("ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID")),
		unit("u1", explicit("CUSTOMERS", "CUSTOMER_ID", "ORDERS", "CUSTOMER_ID")),
	)
	require.Len(t, res.Joins, 1)
	j := res.Joins[0]
	assert.Equal(t, 3, j.Occurrences)
	assert.InDelta(t, 1.0, j.Confidence, 1e-9)
	assert.Equal(t, "u1", j.SourceSQLUnitID, "ties go to the smallest unit id")
	assert.Equal(t, model.JoinExplicit, j.Kind)
}

func TestInferDropsUnresolvable(t *testing.T) {
	tests := []struct {
		name   string
		triple model.JoinTriple
		code   string
	}{
		{"unknown alias", explicit("x", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID"), model.CodeUnresolvedAlias},
		{"unknown column", explicit("ORDERS", "NOPE", "CUSTOMERS", "CUSTOMER_ID"), model.CodeUnknownColumn},
		{"ambiguous table", implicit("DUP", "ID", "CUSTOMERS", "CUSTOMER_ID"), model.CodeAmbiguousTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := infer(t, inferCfg(t), unit("u1", tt.triple))
			assert.Empty(t, res.Joins)
			assert.Equal(t, 1, res.Triples)
			assert.Equal(t, 1, res.Dropped)
			require.Len(t, res.Diagnostics, 1)
			d := res.Diagnostics[0]
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, model.ScopeInference, d.Scope)
			assert.Equal(t, "u1", d.Subject)
			assert.Equal(t, "src/OrderDao.java", d.Path)
			assert.Equal(t, 7, d.Line)
		})
	}
}

func TestInferWithoutKeysOrdersLexicographically(t *testing.T) {
	res := infer(t, inferCfg(t), unit("u1", implicit("B_LOG", "REF", "A_LOG", "REF")))
	require.Len(t, res.Joins, 1)
	j := res.Joins[0]
	assert.Equal(t, "APP.A_LOG", j.LeftTable)
	assert.Equal(t, "APP.B_LOG", j.RightTable)
	assert.False(t, j.InferredPKFK)
	assert.InDelta(t, 0.6, j.Confidence, 1e-9)
}

func TestInferConfidenceClamped(t *testing.T) {
	cfg := inferCfg(t)
	cfg.ExplicitBase = 1
	cfg.NamingBoost = 1
	cfg.PrimaryKeyBoost = 1
	res := infer(t, cfg, unit("u1", explicit("ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID")))
	require.Len(t, res.Joins, 1)
	assert.LessOrEqual(t, res.Joins[0].Confidence, 1.0)
	assert.GreaterOrEqual(t, res.Joins[0].Confidence, 0.0)
}

func TestInferDeterministicAcrossShards(t *testing.T) {
	units := []model.SQLUnit{
		unit("u1", explicit("ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID")),
		unit("u2", implicit("ORDER_ITEMS", "ORDER_ID", "ORDERS", "ORDER_ID")),
		unit("u3", implicit("ORDERS", "STATUS_CD", "STATUS_CODE", "STATUS_CD")),
		unit("u4", explicit("ORDER_ITEMS", "STATUS_CD", "STATUS_CODE", "STATUS_CD")),
		unit("u5", explicit("x", "A", "y", "B")),
		unit("u6", implicit("CUSTOMERS", "CUSTOMER_ID", "ORDERS", "CUSTOMER_ID")),
	}
	reversed := make([]model.SQLUnit, len(units))
	for i, u := range units {
		reversed[len(units)-1-i] = u
	}

	one := inferCfg(t)
	one.Shards = 1
	many := inferCfg(t)
	many.Shards = 4

	a := infer(t, one, units...)
	b := infer(t, many, reversed...)
	assert.Equal(t, a.Joins, b.Joins)
	assert.Equal(t, a.Diagnostics, b.Diagnostics)
	assert.Equal(t, a.Lookups, b.Lookups)
	assert.Len(t, a.Joins, 4)
}

func TestInferTableEdges(t *testing.T) {
	u := unit("u1")
	u.Tables = []model.TableRef{
		{Name: "ORDERS", Write: true},
		{Name: "customers"},
		{Owner: "X", Name: "GONE"},
		{Name: "customers"},
	}
	res := infer(t, inferCfg(t), u)
	require.Len(t, res.TableEdges, 3)

	byKind := map[string][]model.Edge{}
	for _, e := range res.TableEdges {
		assert.Equal(t, "f1", e.FileID)
		byKind[e.Edge.Kind] = append(byKind[e.Edge.Kind], e.Edge)
	}
	require.Len(t, byKind[model.EdgeWrites], 1)
	assert.Equal(t, model.TableID("APP", "ORDERS"), byKind[model.EdgeWrites][0].DstID)
	require.Len(t, byKind[model.EdgeReads], 2)

	var unresolved int
	for _, e := range byKind[model.EdgeReads] {
		if e.DstType == model.NodeTableName {
			unresolved++
			assert.Equal(t, "X.GONE", e.DstID)
		}
	}
	assert.Equal(t, 1, unresolved)
}

func TestDetectLookupTables(t *testing.T) {
	res := infer(t, inferCfg(t),
		unit("u1", explicit("ORDERS", "STATUS_CD", "STATUS_CODE", "STATUS_CD")),
		unit("u2", explicit("ORDER_ITEMS", "STATUS_CD", "STATUS_CODE", "STATUS_CD")),
		unit("u3", explicit("ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID")),
	)
	require.Len(t, res.Lookups, 1)
	l := res.Lookups[0]
	assert.Equal(t, "APP.STATUS_CODE", l.Table)
	assert.Equal(t, "STATUS_CD", l.KeyColumn)
	assert.Equal(t, "STATUS_NAME", l.ValueColumn)
	assert.Equal(t, []string{"APP.ORDERS", "APP.ORDER_ITEMS"}, l.ReferencedBy)
	assert.Greater(t, l.Confidence, lookupThreshold)
}

func TestNamingHeuristic(t *testing.T) {
	h := NewNamingHeuristic(inferCfg(t))
	table := func(name string) *model.DbTable {
		return &model.DbTable{ID: model.TableID("APP", name), Owner: "APP", Name: name}
	}

	tests := []struct {
		fkTable, fkCol, pkTable, pkCol string
		want                           bool
	}{
		{"ORDERS", "CUSTOMER_ID", "CUSTOMERS", "CUSTOMER_ID", true},
		{"EMP", "DEPT_NO", "TB_DEPT", "DEPT_NO", true},
		{"PRODUCTS", "CATEGORY_ID", "CATEGORIES", "ID", true},
		{"ORDERS", "CUSTMER_ID", "CUSTOMERS", "CUSTOMER_ID", true},
		{"ORDERS", "CUSTOMERID", "CUSTOMER", "ID", true},
		{"ORDERS", "STATUS", "STATUS_CODE", "STATUS_CD", false},
		{"ORDERS", "OWNER_ID", "CUSTOMERS", "CUSTOMER_ID", false},
	}
	for _, tt := range tests {
		t.Run(tt.fkTable+"."+tt.fkCol+"->"+tt.pkTable, func(t *testing.T) {
			m, ok := h.Match(table(tt.fkTable), tt.fkCol, table(tt.pkTable), tt.pkCol)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.NotEmpty(t, m.Detail)
				assert.Greater(t, m.Score, 0.0)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("DEPCODE", "DEPCODE"), 1e-9)
	assert.Equal(t, 0.0, similarity("", ""))
	assert.Less(t, similarity("DEPARTMENT", "DEP"), 0.8)
}
