package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/analyzer"
	"schema-miner/internal/model"
)

func sampleTables() []model.DbTable {
	return []model.DbTable{
		{Owner: "APP", Name: "CUSTOMERS", PrimaryKey: []string{"CUSTOMER_ID"}, Columns: []model.DbColumn{
			{Name: "CUSTOMER_ID", DataType: "NUMBER(10)", Position: 1},
			{Name: "NAME", DataType: "VARCHAR2(100)", Position: 2},
		}},
		{Owner: "APP", Name: "ORDERS", PrimaryKey: []string{"ORDER_ID"}, Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "NUMBER", Position: 1},
			{Name: "CUSTOMER_ID", DataType: "NUMBER", Position: 2},
			{Name: "STATUS_CD", DataType: "CHAR(2)", Position: 3},
			{Name: "NOTE", DataType: "CLOB", Position: 4},
		}},
		{Owner: "APP", Name: "ORDER_ITEMS", Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "NUMBER", Position: 1},
		}},
		{Owner: "APP", Name: "STATUS_CODE", PrimaryKey: []string{"STATUS_CD"}, Columns: []model.DbColumn{
			{Name: "STATUS_CD", DataType: "CHAR(2)", Position: 1},
		}},
		{Owner: "APP", Name: "AUDIT_LOG", Columns: []model.DbColumn{
			{Name: "REF", DataType: "NUMBER", Position: 1},
		}},
	}
}

func sampleJoins() []model.Join {
	return []model.Join{
		{ID: "j1", LeftTable: "APP.CUSTOMERS", LeftColumn: "CUSTOMER_ID", RightTable: "APP.ORDERS", RightColumn: "CUSTOMER_ID",
			Confidence: 1, InferredPKFK: true, Kind: model.JoinExplicit, JoinType: "INNER", Occurrences: 3},
		{ID: "j2", LeftTable: "APP.ORDERS", LeftColumn: "ORDER_ID", RightTable: "APP.ORDER_ITEMS", RightColumn: "ORDER_ID",
			Confidence: 0.95, Kind: model.JoinExplicit, JoinType: analyzer.JoinTypeDeclared, Occurrences: 1},
		{ID: "j3", LeftTable: "APP.STATUS_CODE", LeftColumn: "STATUS_CD", RightTable: "APP.ORDERS", RightColumn: "STATUS_CD",
			Confidence: 0.65, Kind: model.JoinImplicit, JoinType: "INNER", Occurrences: 2},
		{ID: "j4", LeftTable: "APP.AUDIT_LOG", LeftColumn: "REF", RightTable: "APP.ORDERS", RightColumn: "ORDER_ID",
			Confidence: 0.2, Kind: model.JoinImplicit, JoinType: "INNER", Occurrences: 1},
	}
}

func TestBuild(t *testing.T) {
	lookups := []analyzer.LookupTable{{Table: "APP.STATUS_CODE", KeyColumn: "STATUS_CD"}}
	g := Build(sampleTables(), sampleJoins(), lookups, BuildOptions{MinConfidence: 0.5})

	assert.Len(t, g.SortedNodes(NodeTypeTable), 5)
	assert.True(t, g.GetNode("APP.STATUS_CODE").Bool("lookup"))

	// 只保留主键列与参与连接的列
	assert.Nil(t, g.GetNode("APP.ORDERS.NOTE"))
	assert.Nil(t, g.GetNode("APP.CUSTOMERS.NAME"))
	assert.Nil(t, g.GetNode("APP.AUDIT_LOG.REF"), "below threshold join does not keep the column")
	col := g.GetNode("APP.ORDERS.CUSTOMER_ID")
	require.NotNil(t, col)
	assert.Equal(t, "APP.ORDERS", col.String("table"))
	assert.False(t, col.Bool("is_primary_key"))
	assert.True(t, g.GetNode("APP.CUSTOMERS.CUSTOMER_ID").Bool("is_primary_key"))

	edges := g.SortedEdges()
	require.Len(t, edges, 3)
	types := map[string]EdgeType{}
	for _, e := range edges {
		types[e.ID] = e.Type
	}
	assert.Equal(t, map[string]EdgeType{
		"j1": EdgeTypeInferredFK,
		"j2": EdgeTypeFK,
		"j3": EdgeTypeEnum,
	}, types)

	e := g.Edges["j1"]
	assert.Equal(t, "APP.ORDERS.CUSTOMER_ID", e.From)
	assert.Equal(t, "APP.CUSTOMERS.CUSTOMER_ID", e.To)
	assert.Equal(t, 3, e.Properties["occurrences"])
}

func TestBuildOnlyJoined(t *testing.T) {
	g := Build(sampleTables(), sampleJoins(), nil, BuildOptions{MinConfidence: 0.5, OnlyJoined: true})
	var names []string
	for _, n := range g.SortedNodes(NodeTypeTable) {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"APP.CUSTOMERS", "APP.ORDERS", "APP.ORDER_ITEMS", "APP.STATUS_CODE"}, names)
	assert.Equal(t, EdgeTypeJoin, g.Edges["j3"].Type)
}

func TestSortedColumnsByTableAndPosition(t *testing.T) {
	g := Build(sampleTables(), sampleJoins(), nil, BuildOptions{})
	var ids []string
	for _, n := range g.SortedNodes(NodeTypeColumn) {
		if n.String("table") == "APP.ORDERS" {
			ids = append(ids, n.ID)
		}
	}
	assert.Equal(t, []string{"APP.ORDERS.ORDER_ID", "APP.ORDERS.CUSTOMER_ID", "APP.ORDERS.STATUS_CD"}, ids)
}

func TestToJSON(t *testing.T) {
	g := Build(sampleTables(), sampleJoins()[:1], nil, BuildOptions{})
	data, err := g.ToJSON()
	require.NoError(t, err)

	var decoded struct {
		Nodes map[string]Node `json:"nodes"`
		Edges map[string]Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Edges, 1)
	assert.Equal(t, NodeTypeTable, decoded.Nodes["APP.ORDERS"].Type)
}
