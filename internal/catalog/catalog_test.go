package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
)

func sample() *Catalog {
	return New("app", []model.DbTable{
		{Owner: "app", Name: "orders", PrimaryKey: []string{"order_id"}, Columns: []model.DbColumn{
			{Name: "STATUS", Position: 2},
			{Name: "ORDER_ID", Position: 1},
			{Name: "CUSTOMER_ID", Position: 3},
		}},
		{Owner: "APP", Name: "CUSTOMERS", PrimaryKey: []string{"CUSTOMER_ID"}, Columns: []model.DbColumn{
			{Name: "CUSTOMER_ID"},
			{Name: "NAME"},
		}},
		{Owner: "HR", Name: "CODES"},
		{Owner: "FIN", Name: "CODES"},
		{Owner: "HR", Name: "EMP"},
	})
}

func TestResolve(t *testing.T) {
	c := sample()

	tests := []struct {
		written string
		want    string
		res     Resolution
	}{
		{"ORDERS", "APP.ORDERS", Found},
		{"orders", "APP.ORDERS", Found},
		{"app.Orders", "APP.ORDERS", Found},
		{"\"APP\".\"ORDERS\"", "APP.ORDERS", Found},
		{"[app].[orders]", "APP.ORDERS", Found},
		{"ORDERS@remote", "APP.ORDERS", Found},
		{"EMP", "HR.EMP", Found},
		{"CODES", "", Ambiguous},
		{"HR.CODES", "HR.CODES", Found},
		{"NOPE", "", NotFound},
		{"HR.ORDERS", "", NotFound},
		{"", "", NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.written, func(t *testing.T) {
			tbl, res := c.Resolve(tt.written)
			assert.Equal(t, tt.res, res)
			if tt.want != "" {
				require.NotNil(t, tbl)
				assert.Equal(t, tt.want, tbl.Qualified())
			} else {
				assert.Nil(t, tbl)
			}
		})
	}
}

func TestColumnsAndKeys(t *testing.T) {
	c := sample()
	orders, ok := c.Table("app.orders")
	require.True(t, ok)

	assert.Equal(t, model.TableID("APP", "ORDERS"), orders.ID)
	assert.Equal(t, "ORDER_ID", orders.Columns[0].Name, "columns ordered by position")

	col, ok := c.Column(orders, "customer_id")
	require.True(t, ok)
	assert.Equal(t, model.ColumnID(orders.ID, "CUSTOMER_ID"), col.ID)
	assert.Equal(t, orders.ID, col.TableID)

	_, ok = c.Column(orders, "MISSING")
	assert.False(t, ok)

	assert.True(t, c.IsPrimaryKey(orders, "order_id"))
	assert.True(t, c.HasSinglePrimaryKey(orders, "ORDER_ID"))
	assert.False(t, c.IsPrimaryKey(orders, "CUSTOMER_ID"))

	assert.Equal(t, 5, c.Len())
	assert.Equal(t, "APP.CUSTOMERS", c.Tables()[0].Qualified())
	assert.Len(t, c.PrimaryKeys(), 2)
}

func TestDefaultOwnerApplied(t *testing.T) {
	c := New("scott", []model.DbTable{{Name: "dept"}})
	tbl, res := c.Resolve("DEPT")
	require.Equal(t, Found, res)
	assert.Equal(t, "SCOTT.DEPT", tbl.Qualified())
}

func TestDuplicateTablesMerge(t *testing.T) {
	c := New("", []model.DbTable{
		{Owner: "A", Name: "T", Columns: []model.DbColumn{{Name: "X", Position: 1}}},
		{Owner: "a", Name: "t", Columns: []model.DbColumn{{Name: "Y", Position: 2}}, PrimaryKey: []string{"X"}},
	})
	require.Equal(t, 1, c.Len())
	tbl := c.Tables()[0]
	assert.Len(t, tbl.Columns, 2)
	assert.True(t, c.IsPrimaryKey(tbl, "x"))
}
