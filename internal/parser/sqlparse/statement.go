package sqlparse

import (
	"strings"

	"schema-miner/internal/model"
)

// Statement 原始 SQL 文件中切分出的一条语句
type Statement struct {
	Text   string
	Offset int  // 在文件中的字节偏移
	Block  bool // PL/SQL / T-SQL 过程块
}

var blockHeads = map[string]bool{
	"PROCEDURE": true, "FUNCTION": true, "PACKAGE": true, "TRIGGER": true, "TYPE": true,
}

// isBlockHeader 语句是否以过程块开头，块内的 ';' 不切分
func isBlockHeader(text string) bool {
	toks := Lex(text).Tokens
	if len(toks) == 0 {
		return false
	}
	if toks[0].Is("BEGIN") || toks[0].Is("DECLARE") {
		return true
	}
	if !toks[0].Is("CREATE") {
		return false
	}
	for _, t := range toks[1:] {
		switch {
		case t.Is("OR"), t.Is("REPLACE"), t.Is("EDITIONABLE"), t.Is("NONEDITIONABLE"), t.Is("DEFINER"), t.IsSymbol("="), t.IsSymbol("@"), t.Kind == TokQuoted:
			continue
		case t.Kind == TokIdent && blockHeads[t.Upper]:
			return true
		default:
			return false
		}
	}
	return false
}

// Split 按 ';'、独占一行的 '/' 与 GO 切分
func Split(src string) []Statement {
	var out []Statement
	start := 0
	block := -1 // -1 未判定，0 否，1 是

	emit := func(end, next int) {
		text := strings.TrimSpace(src[start:end])
		if text != "" {
			off := start + strings.Index(src[start:end], text)
			out = append(out, Statement{Text: text, Offset: off, Block: block == 1})
		}
		start = next
		block = -1
	}

	i := 0
	lineStart := true
	for i < len(src) {
		if lineStart {
			eol := strings.IndexByte(src[i:], '\n')
			if eol < 0 {
				eol = len(src) - i
			}
			line := strings.TrimSpace(src[i : i+eol])
			if line == "/" || strings.EqualFold(line, "GO") {
				emit(i, i+eol)
				i += eol
				continue
			}
		}
		lineStart = false

		c := src[i]
		switch {
		case c == '\n':
			lineStart = true
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += end + 4
			}
		case c == '\'':
			i++
			for i < len(src) {
				if src[i] == '\'' {
					if i+1 < len(src) && src[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++
		case c == ';':
			if block < 0 {
				block = 0
				if isBlockHeader(src[start:i]) {
					block = 1
				}
			}
			if block == 1 {
				i++
				continue
			}
			emit(i, i+1)
			i++
		default:
			i++
		}
	}
	if start < len(src) {
		if block < 0 && isBlockHeader(src[start:]) {
			block = 1
		}
		emit(len(src), len(src))
	}
	return out
}

var dmlStarters = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "WITH": true,
}

// InnerStatements 过程块中的 DML 语句
func InnerStatements(block string) []Statement {
	var out []Statement
	lexed := Lex(block)
	toks := lexed.Tokens

	depth := 0
	begin := -1
	for k, t := range toks {
		switch {
		case t.IsSymbol("("):
			depth++
		case t.IsSymbol(")"):
			depth--
		case t.IsSymbol(";") && begin >= 0 && depth <= 0:
			out = append(out, Statement{Text: strings.TrimSpace(block[toks[begin].Pos:t.Pos]), Offset: toks[begin].Pos})
			begin = -1
		case begin < 0 && t.Kind == TokIdent && dmlStarters[t.Upper] && startsStatement(toks, k):
			begin = k
			depth = 0
		}
	}
	if begin >= 0 {
		out = append(out, Statement{Text: strings.TrimSpace(block[toks[begin].Pos:]), Offset: toks[begin].Pos})
	}
	return out
}

// startsStatement DML 关键字前是否为语句边界
func startsStatement(toks []Token, k int) bool {
	if k == 0 {
		return true
	}
	prev := toks[k-1]
	if prev.IsSymbol(";") {
		return true
	}
	switch prev.Upper {
	case "BEGIN", "THEN", "ELSE", "LOOP", "IS", "AS", "DECLARE", "EXCEPTION":
		return prev.Kind == TokIdent
	}
	// FOR r IN (SELECT ...) 游标
	return prev.IsSymbol("(") && k >= 2 && toks[k-2].Is("IN")
}

// LooksLikeSQL 判断字符串是否像一条 SQL 语句
func LooksLikeSQL(s string) bool {
	toks := Lex(s).Tokens
	if len(toks) < 2 {
		return false
	}
	i := 0
	for i < len(toks) && toks[i].IsSymbol("(") {
		i++
	}
	if i >= len(toks) || toks[i].Kind != TokIdent {
		return false
	}
	rest := toks[i+1:]
	has := func(kw string) bool {
		for _, t := range rest {
			if t.Is(kw) {
				return true
			}
		}
		return false
	}
	switch toks[i].Upper {
	case "SELECT":
		return has("FROM")
	case "INSERT":
		return has("INTO")
	case "UPDATE":
		return has("SET")
	case "DELETE":
		return has("FROM") || (len(rest) > 1 && rest[0].IsName())
	case "MERGE":
		return has("INTO")
	case "WITH":
		return has("AS") && has("SELECT")
	}
	return false
}

// ddl CREATE/ALTER TABLE 中的表、列和外键约束
func (a *analyzer) ddl() {
	toks := a.toks
	k := 1
	for k < len(toks) && !toks[k].Is("TABLE") && !toks[k].Is("VIEW") && !toks[k].Is("INDEX") {
		k++
	}
	if k >= len(toks) {
		return
	}
	kind := toks[k].Upper
	k++
	for k < len(toks) && (toks[k].Is("IF") || toks[k].Is("NOT") || toks[k].Is("EXISTS") || toks[k].Is("ONLY")) {
		k++
	}

	switch kind {
	case "VIEW":
		for ; k < len(toks); k++ {
			if toks[k].Is("AS") {
				for _, r := range a.splitCompound(k+1, len(toks)) {
					a.block(r[0], r[1], nil)
				}
				return
			}
		}
		return
	case "INDEX":
		for ; k < len(toks); k++ {
			if toks[k].Is("ON") {
				s := newScope(nil)
				a.tableItem(k+1, len(toks), s, new([][2]int), false)
				return
			}
		}
		return
	}

	name, next := a.dottedName(k)
	if name.Name == "" {
		return
	}
	name.Write = true
	a.addTable(name)
	k = next

	if k < len(toks) && toks[k].Is("AS") {
		for _, r := range a.splitCompound(k+1, len(toks)) {
			a.block(r[0], r[1], nil)
		}
		return
	}

	depth := 0
	itemStart := -1
	for ; k < len(toks); k++ {
		t := toks[k]
		switch {
		case t.IsSymbol("("):
			depth++
			if depth == 1 {
				itemStart = k + 1
			}
		case t.IsSymbol(")"):
			depth--
		case depth == 1 && t.IsSymbol(","):
			itemStart = k + 1
		case depth <= 1 && t.Is("REFERENCES"):
			var src []string
			lo := itemStart
			if depth == 0 {
				lo = 0
			}
			if fk := a.fkColumns(lo, k); len(fk) > 0 {
				src = fk
			} else if depth == 1 && itemStart >= 0 && itemStart < k && toks[itemStart].IsName() {
				src = []string{toks[itemStart].Text}
			}
			target, after := a.dottedName(k + 1)
			var dst []string
			if after < len(toks) && toks[after].IsSymbol("(") {
				end := a.closeParen(after, len(toks))
				for j := after + 1; j < end; j++ {
					if toks[j].IsName() {
						dst = append(dst, toks[j].Text)
					}
				}
				after = end
			}
			for j := range src {
				if j >= len(dst) {
					break
				}
				a.addJoin(model.JoinTriple{
					LeftTable: target.Qualified(), LeftColumn: dst[j],
					RightTable: name.Qualified(), RightColumn: src[j],
					Kind: model.JoinExplicit, JoinType: "FK",
				})
			}
			if target.Name != "" {
				a.addTable(target)
			}
			k = after
		case depth == 1 && k == itemStart && t.IsName() && !isConstraintWord(t):
			a.addColumn(model.ColumnRef{Table: name.Qualified(), Column: t.Text})
		}
	}
}

func isConstraintWord(t Token) bool {
	if t.Kind != TokIdent {
		return false
	}
	switch t.Upper {
	case "CONSTRAINT", "PRIMARY", "FOREIGN", "UNIQUE", "CHECK", "KEY", "INDEX", "PERIOD", "EXCLUDE":
		return true
	}
	return false
}

// fkColumns FOREIGN KEY (a, b) 中的列
func (a *analyzer) fkColumns(lo, hi int) []string {
	if lo < 0 {
		lo = 0
	}
	for k := lo; k+2 < hi; k++ {
		if a.toks[k].Is("FOREIGN") && a.toks[k+1].Is("KEY") && a.toks[k+2].IsSymbol("(") {
			end := a.closeParen(k+2, hi)
			var cols []string
			for j := k + 3; j < end; j++ {
				if a.toks[j].IsName() {
					cols = append(cols, a.toks[j].Text)
				}
			}
			return cols
		}
	}
	return nil
}

func (a *analyzer) dottedName(k int) (model.TableRef, int) {
	var parts []string
	for k < len(a.toks) && a.toks[k].IsName() {
		parts = append(parts, a.toks[k].Text)
		a.tableTok[k] = true
		k++
		if k+1 < len(a.toks) && a.toks[k].IsSymbol(".") {
			k++
			continue
		}
		break
	}
	if len(parts) == 0 {
		return model.TableRef{}, k
	}
	ref := model.TableRef{Name: parts[len(parts)-1]}
	if len(parts) > 1 {
		ref.Owner = parts[len(parts)-2]
	}
	return ref, k
}
