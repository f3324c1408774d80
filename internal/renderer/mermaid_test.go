package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"schema-miner/internal/analyzer"
	"schema-miner/internal/graph"
	"schema-miner/internal/model"
)

func sampleGraph() *graph.SchemaGraph {
	tables := []model.DbTable{
		{Owner: "APP", Name: "ORDERS", PrimaryKey: []string{"ORDER_ID"}, Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "NUMBER(10)", Position: 1},
			{Name: "CUSTOMER_ID", DataType: "NUMBER(10)", Position: 2},
		}},
		{Owner: "APP", Name: "CUSTOMERS", PrimaryKey: []string{"CUSTOMER_ID"}, Columns: []model.DbColumn{
			{Name: "CUSTOMER_ID", DataType: "", Position: 1},
		}},
		{Owner: "APP", Name: "ORDER_ITEMS", Columns: []model.DbColumn{
			{Name: "ORDER_ID", DataType: "DOUBLE PRECISION", Position: 1},
		}},
	}
	joins := []model.Join{
		{ID: "a", LeftTable: "APP.CUSTOMERS", LeftColumn: "CUSTOMER_ID", RightTable: "APP.ORDERS", RightColumn: "CUSTOMER_ID",
			Confidence: 0.7, InferredPKFK: true},
		{ID: "b", LeftTable: "APP.ORDERS", LeftColumn: "ORDER_ID", RightTable: "APP.ORDER_ITEMS", RightColumn: "ORDER_ID",
			Confidence: 1, JoinType: analyzer.JoinTypeDeclared},
	}
	return graph.Build(tables, joins, nil, graph.BuildOptions{})
}

func TestMermaidRender(t *testing.T) {
	out := NewMermaidRenderer().Render(sampleGraph())

	want := `erDiagram
    APP_CUSTOMERS {
        unknown CUSTOMER_ID PK
    }
    APP_ORDERS {
        NUMBER ORDER_ID PK
        NUMBER CUSTOMER_ID
    }
    APP_ORDER_ITEMS {
        DOUBLE_PRECISION ORDER_ID
    }

    APP_CUSTOMERS ||..o{ APP_ORDERS : "CUSTOMER_ID 0.70"
    APP_ORDERS ||--o{ APP_ORDER_ITEMS : "ORDER_ID 1.00"
`
	assert.Equal(t, want, out)
}

func TestMermaidRenderDeterministic(t *testing.T) {
	first := NewMermaidRenderer().Render(sampleGraph())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, NewMermaidRenderer().Render(sampleGraph()))
	}
}

func TestEntitySanitized(t *testing.T) {
	assert.Equal(t, "dbo_Order_Lines", entity("dbo.Order Lines"))
	assert.Equal(t, "VARCHAR", mermaidType("VARCHAR(20)"))
	assert.False(t, strings.Contains(mermaidType("decimal(10, 2)"), "("))
}
