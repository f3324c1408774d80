package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableIDDeterministic(t *testing.T) {
	assert.Equal(t, FileID("p", "a/B.java"), FileID("p", "a/B.java"))
	assert.NotEqual(t, FileID("p", "a/B.java"), FileID("q", "a/B.java"))
	assert.Equal(t, TableID("sample", "orders"), TableID("SAMPLE", "ORDERS"))
}

func TestJoinIDOrderIndependent(t *testing.T) {
	a := JoinID("p", "S.ORDERS", "ORDER_ID", "S.ORDER_ITEMS", "ORDER_ID")
	b := JoinID("p", "S.ORDER_ITEMS", "ORDER_ID", "S.ORDERS", "ORDER_ID")
	assert.Equal(t, a, b)
}

func TestFinalizeAssignsIDsAndEdges(t *testing.T) {
	fx := &FileExtraction{
		File:    File{Path: "src/Dao.java", Language: LanguageJava},
		Imports: []string{"java.util.List"},
		Classes: []ClassEntity{{Name: "Dao", Extends: "Base", Extraction: DefiniteMatch(0.95)}},
		Methods: []MethodEntity{
			{ClassName: "Dao", Name: "find", Parameters: []Parameter{{Type: "long", Name: "id"}}, Extraction: DefiniteMatch(0.95)},
		},
		SQLUnits: []SQLUnit{
			{StatementKey: "inline:1", MethodName: "Dao#find(long)", ParseConfidence: 0.9},
			{StatementKey: "inline:2", ParseConfidence: 0.9},
		},
	}

	Finalize("demo", fx)

	require.Len(t, fx.Classes, 1)
	require.Len(t, fx.Methods, 1)
	assert.Equal(t, fx.Classes[0].ID, fx.Methods[0].ClassID)
	assert.Equal(t, FileID("demo", "src/Dao.java"), fx.File.ID)

	kinds := map[string]int{}
	for _, e := range fx.Edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[EdgeImports])
	assert.Equal(t, 2, kinds[EdgeDeclares])
	assert.Equal(t, 1, kinds[EdgeExtends])
	assert.Equal(t, 1, kinds[EdgeEmbeds])
	assert.Equal(t, 1, kinds[EdgeContains])
}

func TestFinalizeCollisionWinner(t *testing.T) {
	fx := &FileExtraction{
		File: File{Path: "A.java"},
		Classes: []ClassEntity{
			{Name: "A", Extraction: DefiniteMatch(0.95)},
		},
		Methods: []MethodEntity{
			{ClassName: "A", Name: "run", ReturnType: "int", Extraction: DefiniteMatch(0.95)},
			{ClassName: "A", Name: "run", ReturnType: "long", Extraction: ProbableMatch(0.5, "")},
			{ClassName: "A", Name: "stop", ReturnType: "void", Extraction: ProbableMatch(0.5, "")},
			{ClassName: "A", Name: "stop", ReturnType: "boolean", Extraction: ProbableMatch(0.5, "")},
		},
	}

	Finalize("p", fx)

	require.Len(t, fx.Methods, 2)
	byName := map[string]MethodEntity{}
	for _, m := range fx.Methods {
		byName[m.Name] = m
	}
	// 高置信度胜出
	assert.Equal(t, "int", byName["run"].ReturnType)
	// 置信度相同取后出现者
	assert.Equal(t, "boolean", byName["stop"].ReturnType)

	collisions := 0
	for _, d := range fx.Diagnostics {
		if d.Code == CodeKeyCollision {
			collisions++
		}
	}
	assert.Equal(t, 2, collisions)
}

func TestFinalizeDropsOrphanMethod(t *testing.T) {
	fx := &FileExtraction{
		File:    File{Path: "A.java"},
		Methods: []MethodEntity{{ClassName: "Missing", Name: "x"}},
	}
	Finalize("p", fx)
	assert.Empty(t, fx.Methods)
	require.Len(t, fx.Diagnostics, 1)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.2))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.4, Clamp(0.4))
}
