package jsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
)

const orderListJSP = `<%@ page import="java.sql.*, com.acme.Util" contentType="text/html" %>
<%@ include file="header.jsp" %>
<%-- <% String ignored = "SELECT * FROM NOPE"; %> --%>
<html>
<%
  String sql = "SELECT * FROM ORDERS o, CUSTOMERS c WHERE o.CUSTOMER_ID = c.CUSTOMER_ID";
  ResultSet rs = stmt.executeQuery(sql);
%>
<sql:query var="items" dataSource="${ds}">
  SELECT * FROM ORDER_ITEMS WHERE ORDER_ID = ?
  <sql:param value="${param.id}"/>
</sql:query>
<jsp:include page="/common/footer.jsp"/>
</html>
`

func TestParseJSP(t *testing.T) {
	fx, err := NewParser().Parse(context.Background(), parser.FileInput{
		Path:     "web/order/list.jsp",
		Language: model.LanguageJSP,
		Content:  []byte(orderListJSP),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"java.sql.*", "com.acme.Util"}, fx.Imports)

	var includes []string
	for _, e := range fx.Edges {
		if e.Kind == model.EdgeIncludes {
			includes = append(includes, e.DstID)
		}
	}
	assert.Equal(t, []string{"web/order/header.jsp", "common/footer.jsp"}, includes)

	require.Len(t, fx.SQLUnits, 2)
	scriptlet := fx.SQLUnits[0]
	assert.Equal(t, "scriptlet@1", scriptlet.StatementKey)
	assert.Equal(t, 6, scriptlet.Line)
	require.Len(t, scriptlet.Joins, 1)
	assert.Equal(t, model.JoinImplicit, scriptlet.Joins[0].Kind)

	jstl := fx.SQLUnits[1]
	assert.Equal(t, "jstl@1", jstl.StatementKey)
	assert.Equal(t, "SELECT * FROM ORDER_ITEMS WHERE ORDER_ID = ?", jstl.ResolvedText)
	assert.Equal(t, []model.TableRef{{Name: "ORDER_ITEMS"}}, jstl.Tables)
}

func TestParseJSPUnterminatedScriptlet(t *testing.T) {
	fx, err := NewParser().Parse(context.Background(), parser.FileInput{
		Path:    "a.jsp",
		Content: []byte("<html>\n<% String s = \"x\";\n"),
	})
	require.NoError(t, err)
	require.Len(t, fx.Diagnostics, 1)
	assert.Equal(t, model.CodeUnbalanced, fx.Diagnostics[0].Code)
	assert.Equal(t, 2, fx.Diagnostics[0].Line)
}
