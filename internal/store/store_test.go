package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schema-miner/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "entities.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func extraction(path, hash string, withHelper bool) *model.FileExtraction {
	return extractionIn("p", path, hash, withHelper)
}

func extractionIn(project, path, hash string, withHelper bool) *model.FileExtraction {
	fx := &model.FileExtraction{
		File:    model.File{Path: path, Language: model.LanguageJava, ContentHash: hash, LineCount: 10},
		Package: "com.acme",
		Imports: []string{"java.util.List"},
		Classes: []model.ClassEntity{
			{Name: "OrderDao", Package: "com.acme", Kind: model.ClassKindClass, Line: 3, Extraction: model.DefiniteMatch(0.95)},
		},
		Methods: []model.MethodEntity{
			{ClassName: "OrderDao", Name: "find", Parameters: []model.Parameter{{Type: "long", Name: "id"}},
				Line: 5, Extraction: model.DefiniteMatch(0.95)},
		},
		SQLUnits: []model.SQLUnit{{
			StatementKey: "OrderDao#find(long)@1", MethodName: "OrderDao#find(long)",
			SourceKind: model.SourceInlineLiteral, StatementType: model.StatementSelect,
			RawText: "SELECT * FROM ORDERS", ResolvedText: "SELECT * FROM ORDERS", ParseConfidence: 0.95,
			Line: 6, Tables: []model.TableRef{{Name: "ORDERS"}},
			Diagnostics: []model.Diagnostic{model.Warn(model.ScopeParse, "", model.CodeLowConfidence, "x")},
		}},
		Edges: []model.Edge{{DstType: model.NodeTypeName, DstID: "com.acme.Order", Kind: model.EdgeMapsTo}},
	}
	if withHelper {
		fx.Methods = append(fx.Methods, model.MethodEntity{
			ClassName: "OrderDao", Name: "helper", Line: 8, Extraction: model.DefiniteMatch(0.95),
		})
	}
	model.Finalize(project, fx)
	return fx
}

func TestReplaceFileExtractionIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	fx := extraction("src/OrderDao.java", "h1", true)
	require.NoError(t, s.ReplaceFileExtraction(ctx, fx))
	first, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Files)
	assert.Equal(t, 1, first.Classes)
	assert.Equal(t, 2, first.Methods)
	assert.Equal(t, 1, first.SQLUnits)
	assert.Equal(t, 1, first.Diagnostics)

	require.NoError(t, s.ReplaceFileExtraction(ctx, extraction("src/OrderDao.java", "h1", true)))
	second, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 内容变化后旧实体被替换
	require.NoError(t, s.ReplaceFileExtraction(ctx, extraction("src/OrderDao.java", "h2", false)))
	third, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, third.Methods)

	hashes, err := s.FileHashes(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src/OrderDao.java": "h2"}, hashes)
}

func TestFetchRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	fx := extraction("src/OrderDao.java", "h1", false)
	require.NoError(t, s.ReplaceFileExtraction(ctx, fx))

	files, err := s.FetchFiles(ctx, "p")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, fx.File.ID, files[0].ID)
	assert.False(t, files[0].LastParsedAt.IsZero())

	classes, err := s.FetchClasses(ctx, "p")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, fx.Classes[0].ID, classes[0].ID)
	assert.Equal(t, model.Definite, classes[0].Extraction.Certainty)

	methods, err := s.FetchMethods(ctx, "p")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, []model.Parameter{{Type: "long", Name: "id"}}, methods[0].Parameters)

	units, err := s.FetchSQLUnits(ctx, "p")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, []model.TableRef{{Name: "ORDERS"}}, units[0].Tables)

	edges, err := s.FetchEdges(ctx, "p")
	require.NoError(t, err)
	kinds := map[string]int{}
	for _, e := range edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[model.EdgeEmbeds])
	assert.Equal(t, 1, kinds[model.EdgeMapsTo])
	assert.Equal(t, 1, kinds[model.EdgeImports])

	diags, err := s.FetchDiagnostics(ctx, "p", model.ScopeParse)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, units[0].ID, diags[0].Subject)
}

func TestSummaryPreservedAcrossReparse(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	fx := extraction("src/OrderDao.java", "h1", false)
	require.NoError(t, s.ReplaceFileExtraction(ctx, fx))

	methodID := fx.Methods[0].ID
	require.NoError(t, s.SetSummary(ctx, KindMethod, methodID, "loads one order"))

	targets, err := s.EntitiesLackingSummary(ctx, "p", KindMethod, 10)
	require.NoError(t, err)
	assert.Empty(t, targets)

	require.NoError(t, s.ReplaceFileExtraction(ctx, extraction("src/OrderDao.java", "h2", true)))
	text, err := s.Summary(ctx, KindMethod, methodID)
	require.NoError(t, err)
	assert.Equal(t, "loads one order", text)

	targets, err = s.EntitiesLackingSummary(ctx, "p", KindMethod, 10)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "OrderDao#helper", targets[0].Label)

	assert.ErrorIs(t, s.SetSummary(ctx, KindMethod, "missing", "x"), ErrNotFound)
	assert.Error(t, s.SetSummary(ctx, "widget", methodID, "x"))
}

func TestEntitiesLackingSummaryByProject(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceFileExtraction(ctx, extractionIn("p", "src/OrderDao.java", "h1", false)))
	require.NoError(t, s.ReplaceFileExtraction(ctx, extractionIn("q", "src/OrderDao.java", "h1", true)))
	require.NoError(t, s.UpsertCatalog(ctx, []model.DbTable{{Owner: "APP", Name: "ORDERS"}}, false))

	tests := []struct {
		project string
		kind    string
		want    []string
	}{
		{project: "p", kind: KindFile, want: []string{"src/OrderDao.java"}},
		{project: "p", kind: KindMethod, want: []string{"OrderDao#find"}},
		{project: "q", kind: KindMethod, want: []string{"OrderDao#find", "OrderDao#helper"}},
		{project: "q", kind: KindClass, want: []string{"OrderDao"}},
		{project: "q", kind: KindSQLUnit, want: []string{"OrderDao#find(long)@1"}},
		{project: "none", kind: KindMethod, want: nil},
		{project: "none", kind: KindDbTable, want: []string{"APP.ORDERS"}},
	}
	for _, tt := range tests {
		t.Run(tt.project+"/"+tt.kind, func(t *testing.T) {
			targets, err := s.EntitiesLackingSummary(ctx, tt.project, tt.kind, 0)
			require.NoError(t, err)
			var labels []string
			for _, target := range targets {
				assert.Equal(t, tt.kind, target.Kind)
				labels = append(labels, target.Label)
			}
			assert.ElementsMatch(t, tt.want, labels)
		})
	}

	_, err := s.EntitiesLackingSummary(ctx, "p", "widget", 0)
	assert.Error(t, err)
}

func TestPurgeFilesCascades(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceFileExtraction(ctx, extraction("a/A.java", "h", false)))
	require.NoError(t, s.ReplaceFileExtraction(ctx, extraction("b/B.java", "h", false)))

	n, err := s.PurgeFiles(ctx, "p", []string{"a/A.java", "missing.java"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Files)
	assert.Equal(t, 1, c.Classes)
	assert.Equal(t, 1, c.SQLUnits)
	assert.Equal(t, 1, c.Diagnostics)
}

func TestUpsertCatalogPreservesSummaries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tables := []model.DbTable{
		{Owner: "APP", Name: "ORDERS", PrimaryKey: []string{"ORDER_ID"}, Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "NUMBER", Position: 1},
			{Name: "STATUS", DataType: "VARCHAR2", Nullable: true, Position: 2},
		}},
		{Owner: "APP", Name: "OLD"},
	}
	require.NoError(t, s.UpsertCatalog(ctx, tables, true))

	ordersID := model.TableID("APP", "ORDERS")
	require.NoError(t, s.SetSummary(ctx, KindDbTable, ordersID, "customer orders"))

	tables[0].Comment = "orders"
	tables[0].Columns = tables[0].Columns[:1]
	require.NoError(t, s.UpsertCatalog(ctx, tables[:1], true))

	text, err := s.Summary(ctx, KindDbTable, ordersID)
	require.NoError(t, err)
	assert.Equal(t, "customer orders", text)

	cat, err := s.LoadCatalog(ctx, "APP")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
	orders, ok := cat.Table("APP.ORDERS")
	require.True(t, ok)
	assert.Equal(t, "orders", orders.Comment)
	assert.Len(t, orders.Columns, 1)
	assert.True(t, cat.IsPrimaryKey(orders, "ORDER_ID"))

	pks, err := s.FetchPK(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PrimaryKeyColumn{{Owner: "APP", Table: "ORDERS", Column: "ORDER_ID", Position: 1}}, pks)
}

func TestUpsertCatalogDuplicatePrimaryKey(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tables := []model.DbTable{
		{Owner: "SAMPLE", Name: "ORDERS", PrimaryKey: []string{"ORDER_ID", "ORDER_ID", "order_id"}, Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "NUMBER", Position: 1},
		}},
		{Owner: "SAMPLE", Name: "CUSTOMERS", PrimaryKey: []string{"CUSTOMER_ID"}},
	}
	require.NoError(t, s.UpsertCatalog(ctx, tables, false))

	pks, err := s.FetchPK(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PrimaryKeyColumn{
		{Owner: "SAMPLE", Table: "CUSTOMERS", Column: "CUSTOMER_ID", Position: 1},
		{Owner: "SAMPLE", Table: "ORDERS", Column: "ORDER_ID", Position: 1},
	}, pks)
}

func TestReplaceJoinsAndDerived(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	fx := extraction("src/OrderDao.java", "h1", false)
	require.NoError(t, s.ReplaceFileExtraction(ctx, fx))

	joins := []model.Join{{
		ID: model.JoinID("p", "APP.CUSTOMERS", "CUSTOMER_ID", "APP.ORDERS", "CUSTOMER_ID"), Project: "p",
		LeftTable: "APP.CUSTOMERS", LeftColumn: "CUSTOMER_ID", RightTable: "APP.ORDERS", RightColumn: "CUSTOMER_ID",
		Confidence: 0.95, Kind: model.JoinExplicit, JoinType: "INNER", Occurrences: 2,
		Evidence: []model.Evidence{{Type: "explicit_join", Score: 0.9}},
	}}
	require.NoError(t, s.ReplaceJoins(ctx, "p", joins))
	require.NoError(t, s.ReplaceJoins(ctx, "p", joins))

	got, err := s.FetchJoins(ctx, "p")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, joins[0], got[0])

	derived := []DerivedEdge{{FileID: fx.File.ID, Edge: model.Edge{
		SrcType: model.NodeSQLUnit, SrcID: fx.SQLUnits[0].ID, DstType: model.NodeDbTable, DstID: "t", Kind: model.EdgeReads,
	}}}
	require.NoError(t, s.ReplaceDerivedEdges(ctx, "p", derived))
	require.NoError(t, s.ReplaceDerivedEdges(ctx, "p", derived))
	c, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	before := c.Edges

	require.NoError(t, s.ReplaceDerivedEdges(ctx, "p", nil))
	c, err = s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, before-1, c.Edges)

	require.NoError(t, s.ReplaceDiagnostics(ctx, "p", model.ScopeInference, []model.Diagnostic{
		model.Warn(model.ScopeInference, "", model.CodeUnresolvedAlias, "a"),
	}))
	require.NoError(t, s.ReplaceDiagnostics(ctx, "p", model.ScopeInference, []model.Diagnostic{
		model.Warn(model.ScopeInference, "", model.CodeUnresolvedAlias, "b"),
	}))
	diags, err := s.FetchDiagnostics(ctx, "p", model.ScopeInference)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "b", diags[0].Message)
}
