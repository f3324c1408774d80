package java

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
)

const orderDao = `package com.acme.order;

import java.sql.Connection;
import static com.acme.Util.*;

/** Order persistence. */
@Repository
public class OrderDao extends BaseDao<Order> implements Serializable, Closeable {
    private static final String TABLE = "ORDERS";
    private static final String FIND_ALL = "SELECT * FROM ORDERS o " +
        "INNER JOIN ORDER_ITEMS oi ON o.ORDER_ID = oi.ORDER_ID";

    private final Connection conn;

    public OrderDao(Connection conn) {
        this.conn = conn;
    }

    public List<Order> findByCustomer(String customerId, int limit) throws SQLException {
        StringBuilder sb = new StringBuilder();
        sb.append("SELECT o.ORDER_ID FROM ORDERS o, CUSTOMERS c ");
        sb.append("WHERE o.CUSTOMER_ID = c.CUSTOMER_ID ");
        if (customerId != null) {
            sb.append("AND c.CUSTOMER_ID = ").append(customerId);
        }
        return query(sb.toString());
    }

    int count() {
        return jdbc.queryForInt("SELECT COUNT(*) FROM " + TABLE);
    }

    static class Row {
        private String id;
        public String getId() { return id; }
    }
}

interface Finder {
    Order find(String id);
}
`

func parse(t *testing.T, src string) *model.FileExtraction {
	t.Helper()
	fx, err := NewParser().Parse(context.Background(), parser.FileInput{
		Path:     "src/OrderDao.java",
		Language: model.LanguageJava,
		Content:  []byte(src),
	})
	require.NoError(t, err)
	return fx
}

func TestParseStructure(t *testing.T) {
	fx := parse(t, orderDao)

	assert.Equal(t, "com.acme.order", fx.Package)
	assert.Equal(t, []string{"java.sql.Connection", "com.acme.Util.*"}, fx.Imports)

	require.Len(t, fx.Classes, 3)
	dao := fx.Classes[0]
	assert.Equal(t, "OrderDao", dao.Name)
	assert.Equal(t, "com.acme.order.OrderDao", dao.QualifiedName())
	assert.Equal(t, "BaseDao", dao.Extends)
	assert.Equal(t, []string{"Serializable", "Closeable"}, dao.Implements)
	assert.Equal(t, []string{"Repository"}, dao.Annotations)
	assert.Equal(t, model.Definite, dao.Extraction.Certainty)
	assert.Equal(t, 8, dao.Line)

	assert.Equal(t, "OrderDao.Row", fx.Classes[1].Name)
	assert.Equal(t, model.Probable, fx.Classes[1].Extraction.Certainty)
	assert.Equal(t, "Finder", fx.Classes[2].Name)
	assert.True(t, fx.Classes[2].IsInterface)

	names := make([]string, len(fx.Methods))
	for i, m := range fx.Methods {
		names[i] = model.MethodRef(m.ClassName, m.Name, m.Signature())
	}
	assert.Equal(t, []string{
		"OrderDao#OrderDao(Connection)",
		"OrderDao#findByCustomer(String,int)",
		"OrderDao#count()",
		"OrderDao.Row#getId()",
		"Finder#find(String)",
	}, names)

	find := fx.Methods[1]
	assert.Equal(t, "List<Order>", find.ReturnType)
	assert.Equal(t, []string{"SQLException"}, find.Throws)
	assert.Equal(t, model.Definite, find.Extraction.Certainty)
	assert.InDelta(t, 0.95, find.Extraction.Confidence, 1e-9)

	assert.True(t, fx.Methods[0].IsConstructor)
	assert.Equal(t, model.Probable, fx.Methods[2].Extraction.Certainty)
	assert.InDelta(t, 0.5, fx.Methods[2].Extraction.Confidence, 1e-9)
	assert.InDelta(t, 0.8, fx.Methods[4].Extraction.Confidence, 1e-9)
	assert.Empty(t, fx.Diagnostics)
}

func TestParseEmbeddedSQL(t *testing.T) {
	fx := parse(t, orderDao)
	require.Len(t, fx.SQLUnits, 3)

	field := fx.SQLUnits[0]
	assert.Equal(t, "OrderDao@1", field.StatementKey)
	assert.Equal(t, model.SourceInlineLiteral, field.SourceKind)
	assert.Empty(t, field.MethodName)
	require.Len(t, field.Joins, 1)
	assert.Equal(t, model.JoinExplicit, field.Joins[0].Kind)

	builder := fx.SQLUnits[1]
	assert.Equal(t, "OrderDao#findByCustomer(String,int)@1", builder.StatementKey)
	assert.Equal(t, "OrderDao#findByCustomer(String,int)", builder.MethodName)
	assert.Equal(t, model.SourceStringBuilder, builder.SourceKind)
	assert.True(t, builder.HasDynamicContent)
	assert.Equal(t, "SELECT o.ORDER_ID FROM ORDERS o, CUSTOMERS c WHERE o.CUSTOMER_ID = c.CUSTOMER_ID AND c.CUSTOMER_ID = ?", builder.ResolvedText)
	require.Len(t, builder.Joins, 1)
	assert.Equal(t, model.JoinImplicit, builder.Joins[0].Kind)

	count := fx.SQLUnits[2]
	assert.Equal(t, "SELECT COUNT(*) FROM ORDERS", count.ResolvedText, "constants are inlined")
	assert.False(t, count.HasDynamicContent)
	assert.Equal(t, model.StatementSelect, count.StatementType)
}

func TestParseKeywordsAreNotMembers(t *testing.T) {
	fx := parse(t, `class B {
    if (x) { foo(); }
    void ok() {}
}`)
	require.Len(t, fx.Methods, 1)
	assert.Equal(t, "ok", fx.Methods[0].Name)
	assert.Equal(t, "B", fx.Methods[0].ClassName)
}

func TestParseUnbalancedBraces(t *testing.T) {
	fx := parse(t, `public class A {
    public void f() {
        if (x) {
    }
`)
	require.Len(t, fx.Classes, 1)
	assert.Equal(t, model.Probable, fx.Classes[0].Extraction.Certainty)
	require.Len(t, fx.Methods, 1)
	assert.Equal(t, model.Probable, fx.Methods[0].Extraction.Certainty)
	require.NotEmpty(t, fx.Diagnostics)
	assert.Equal(t, model.CodeUnbalanced, fx.Diagnostics[0].Code)
}

func TestParseEnumAndAnnotationSQL(t *testing.T) {
	fx := parse(t, `public enum Status {
    OPEN("O"), CLOSED("C") {
        @Override public String label() { return "closed"; }
    };
    private final String code;
    Status(String code) { this.code = code; }
}

public interface OrderMapper {
    @Select("SELECT * FROM ORDERS WHERE ORDER_ID = #{id}")
    Order selectById(long id);
}`)
	require.Len(t, fx.Classes, 2)
	assert.Equal(t, model.ClassKindEnum, fx.Classes[0].Kind)

	var ctor, selectByID bool
	for _, m := range fx.Methods {
		if m.IsConstructor && m.ClassName == "Status" {
			ctor = true
		}
		if m.Name == "selectById" {
			selectByID = true
		}
	}
	assert.True(t, ctor)
	assert.True(t, selectByID)

	require.Len(t, fx.SQLUnits, 1)
	assert.Equal(t, "OrderMapper#selectById(long)", fx.SQLUnits[0].MethodName)
}

func TestTokenizeTextBlock(t *testing.T) {
	tk := Tokenize("String q = \"\"\"\n    SELECT *\n    FROM T\n    \"\"\";\nint x;", 1)
	require.False(t, tk.Unterminated)
	var str Token
	for _, tok := range tk.Tokens {
		if tok.Kind == String {
			str = tok
		}
	}
	assert.Equal(t, "SELECT *\nFROM T\n", str.Text)
	assert.Equal(t, 5, tk.Tokens[len(tk.Tokens)-2].Line)
}
