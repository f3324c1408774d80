package sqlparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
)

const plsqlScript = `SELECT 1 FROM DUAL;
INSERT INTO T VALUES ('a;b');
/
CREATE OR REPLACE PROCEDURE P IS
BEGIN
  UPDATE T SET X = 1;
  DELETE FROM U WHERE Y = 2;
END;
/
SELECT * FROM V
GO
`

func TestSplit(t *testing.T) {
	stmts := Split(plsqlScript)
	require.Len(t, stmts, 4)
	assert.Equal(t, "SELECT 1 FROM DUAL", stmts[0].Text)
	assert.Equal(t, "INSERT INTO T VALUES ('a;b')", stmts[1].Text)
	assert.True(t, stmts[2].Block)
	assert.Contains(t, stmts[2].Text, "DELETE FROM U")
	assert.Equal(t, "SELECT * FROM V", stmts[3].Text)

	inner := InnerStatements(stmts[2].Text)
	require.Len(t, inner, 2)
	assert.Equal(t, "UPDATE T SET X = 1", inner[0].Text)
	assert.Equal(t, "DELETE FROM U WHERE Y = 2", inner[1].Text)
}

func TestSplitIgnoresCommentSemicolons(t *testing.T) {
	stmts := Split("-- drop; this\nSELECT a FROM b /* ; */ WHERE c = 1;")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].Text, "WHERE c = 1")
}

func TestLooksLikeSQL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"SELECT NAME FROM USERS", true},
		{" select * from orders o where o.id = ?", true},
		{"INSERT INTO LOG (MSG) VALUES (?)", true},
		{"UPDATE ORDERS SET STATUS = ?", true},
		{"DELETE FROM ORDERS", true},
		{"WITH x AS (SELECT 1 FROM t) SELECT * FROM x", true},
		{"UPDATE failed", false},
		{"Please select a row", false},
		{"select", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeSQL(tt.in), tt.in)
	}
}

func TestParserRawFile(t *testing.T) {
	p := NewParser()
	fx, err := p.Parse(context.Background(), parser.FileInput{
		Path:     "db/proc.sql",
		Language: model.LanguageSQL,
		Content:  []byte(plsqlScript),
	})
	require.NoError(t, err)

	keys := make([]string, len(fx.SQLUnits))
	for i, u := range fx.SQLUnits {
		keys[i] = u.StatementKey
		assert.Equal(t, model.SourceRawSQLFile, u.SourceKind)
	}
	assert.Equal(t, []string{"stmt:1", "stmt:2", "stmt:3.1", "stmt:3.2", "stmt:4"}, keys)
	assert.Equal(t, model.StatementUpdate, fx.SQLUnits[2].StatementType)
	assert.Equal(t, 6, fx.SQLUnits[2].Line)
	assert.Equal(t, 10, fx.SQLUnits[4].Line)
}

func TestBuildUnitUnparsedHasDiagnostic(t *testing.T) {
	u := BuildUnit("stmt:1", model.SourceRawSQLFile, "GRANT ALL", 3)
	assert.Equal(t, model.StatementUnknown, u.StatementType)
	assert.Zero(t, u.ParseConfidence)
	require.NotEmpty(t, u.Diagnostics)
	assert.Equal(t, model.CodeUnparsedSQL, u.Diagnostics[0].Code)
	assert.Equal(t, 3, u.Diagnostics[0].Line)

	u = BuildUnitResolved("k", model.SourceStringBuilder, "SELECT * FROM T WHERE A = \" + a", "SELECT * FROM T WHERE A = ?", true, 1)
	assert.True(t, u.HasDynamicContent)
	assert.InDelta(t, confidenceDynamic, u.ParseConfidence, 1e-9)
}
