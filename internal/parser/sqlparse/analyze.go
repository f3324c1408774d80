package sqlparse

import (
	"strings"

	"schema-miner/internal/model"
)

// Analysis 单条语句的分析结果
type Analysis struct {
	Type       model.StatementType
	Tables     []model.TableRef
	Columns    []model.ColumnRef
	Joins      []model.JoinTriple
	Dynamic    bool // 含 ${} 等运行期拼接
	Extraction model.Extraction
	Notes      []string
}

// 置信度
const (
	confidenceDefinite   = 0.95
	confidenceDynamic    = 0.7
	confidenceUnbalanced = 0.5
	confidenceUnknown    = 0.4
)

// 在 FROM/条件中终止当前子句的关键字
var clauseTerminators = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true,
	"CONNECT": true, "START": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "FOR": true, "SET": true, "VALUES": true,
	"RETURNING": true, "WINDOW": true, "WHEN": true, "SELECT": true,
	"ON": true, "USING": true, "MODEL": true, "QUALIFY": true,
}

var joinStarters = map[string]bool{
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "CROSS": true, "NATURAL": true, "OUTER": true,
	"STRAIGHT_JOIN": true,
}

// 不能作为表别名的关键字
var notAlias = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true,
	"GROUP": true, "ORDER": true, "HAVING": true, "UNION": true, "SET": true,
	"VALUES": true, "SELECT": true, "WITH": true, "CONNECT": true, "START": true,
	"LIMIT": true, "FETCH": true, "FOR": true, "OUTER": true, "MINUS": true,
	"INTERSECT": true, "EXCEPT": true, "WHEN": true, "THEN": true, "PARTITION": true,
	"SAMPLE": true, "RETURNING": true, "OFFSET": true, "WINDOW": true, "LATERAL": true,
	"APPLY": true, "STRAIGHT_JOIN": true, "AS": true, "MODEL": true, "PIVOT": true,
	"UNPIVOT": true, "QUALIFY": true, "FROM": true, "INTO": true, "AND": true, "OR": true,
}

var setOperators = map[string]bool{"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true}

// Analyze 分析一条 SQL 语句
func Analyze(text string) *Analysis {
	lexed := Lex(text)
	res := &Analysis{Type: Classify(lexed.Tokens)}
	if len(lexed.Tokens) == 0 {
		res.Extraction = model.UnparsedMatch("empty statement")
		return res
	}

	a := &analyzer{
		toks:     lexed.Tokens,
		res:      res,
		tableTok: make(map[int]bool),
		seen:     make(map[string]bool),
	}
	for _, t := range lexed.Tokens {
		if t.Dynamic() {
			res.Dynamic = true
		}
	}
	if res.Type == model.StatementCreate || res.Type == model.StatementAlter {
		a.ddl()
	} else {
		for _, r := range a.splitCompound(0, len(a.toks)) {
			a.block(r[0], r[1], nil)
		}
	}

	switch {
	case res.Type == model.StatementUnknown && len(res.Tables) == 0:
		res.Extraction = model.UnparsedMatch("unrecognised statement")
	case res.Type == model.StatementUnknown:
		res.Extraction = model.ProbableMatch(confidenceUnknown, "unrecognised leading keyword")
	case lexed.Unbalanced:
		res.Extraction = model.ProbableMatch(confidenceUnbalanced, "unbalanced parentheses or quotes")
	case res.Dynamic:
		res.Extraction = model.ProbableMatch(confidenceDynamic, "dynamic fragment")
	default:
		res.Extraction = model.DefiniteMatch(confidenceDefinite)
	}
	return res
}

// Classify 按首个关键字确定语句类型
func Classify(toks []Token) model.StatementType {
	i := 0
	for i < len(toks) && (toks[i].IsSymbol("(") || toks[i].IsSymbol("{")) {
		i++
	}
	if i >= len(toks) || toks[i].Kind != TokIdent {
		return model.StatementUnknown
	}
	switch toks[i].Upper {
	case "SELECT":
		return model.StatementSelect
	case "WITH":
		depth := 0
		for _, t := range toks[i+1:] {
			switch {
			case t.IsSymbol("("):
				depth++
			case t.IsSymbol(")"):
				depth--
			case depth == 0 && t.Kind == TokIdent:
				switch t.Upper {
				case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
					return Classify([]Token{t})
				}
			}
		}
		return model.StatementSelect
	case "INSERT", "REPLACE":
		return model.StatementInsert
	case "UPDATE":
		return model.StatementUpdate
	case "DELETE":
		return model.StatementDelete
	case "MERGE", "UPSERT":
		return model.StatementMerge
	case "CREATE":
		return model.StatementCreate
	case "ALTER":
		return model.StatementAlter
	case "DROP":
		return model.StatementDrop
	case "TRUNCATE":
		return model.StatementTruncate
	case "CALL", "EXEC", "EXECUTE", "BEGIN", "DECLARE":
		return model.StatementCall
	}
	return model.StatementUnknown
}

type tableEntry struct {
	ref     model.TableRef
	derived bool // 子查询或 CTE
}

type scope struct {
	parent  *scope
	entries []*tableEntry
	names   map[string]*tableEntry
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]*tableEntry)}
}

func (s *scope) add(e *tableEntry) {
	s.entries = append(s.entries, e)
	if e.ref.Alias != "" {
		s.names[strings.ToUpper(e.ref.Alias)] = e
	}
	// 同名表出现两次（自连接）时保留第一次
	name := strings.ToUpper(e.ref.Name)
	if _, ok := s.names[name]; !ok {
		s.names[name] = e
	}
	if e.ref.Owner != "" {
		q := strings.ToUpper(e.ref.Qualified())
		if _, ok := s.names[q]; !ok {
			s.names[q] = e
		}
	}
}

func (s *scope) resolve(qualifier string) *tableEntry {
	key := strings.ToUpper(qualifier)
	for cur := s; cur != nil; cur = cur.parent {
		if e, ok := cur.names[key]; ok {
			return e
		}
	}
	return nil
}

type condition struct {
	lo, hi   int
	kind     model.JoinKind
	joinType string
}

type analyzer struct {
	toks     []Token
	res      *Analysis
	tableTok map[int]bool // 作为表名/别名使用的 token，不参与列引用提取
	ctes     map[string]bool
	seen     map[string]bool
}

// splitCompound 在顶层集合运算符处切分
func (a *analyzer) splitCompound(lo, hi int) [][2]int {
	var out [][2]int
	depth := 0
	start := lo
	for i := lo; i < hi; i++ {
		t := a.toks[i]
		switch {
		case t.IsSymbol("("):
			depth++
		case t.IsSymbol(")"):
			depth--
		case depth == 0 && t.Kind == TokIdent && setOperators[t.Upper]:
			out = append(out, [2]int{start, i})
			start = i + 1
			if start < hi && (a.toks[start].Is("ALL") || a.toks[start].Is("DISTINCT")) {
				start++
			}
		}
	}
	return append(out, [2]int{start, hi})
}

// closeParen 返回与 open 处 "(" 匹配的 ")" 下标，未闭合时返回 hi
func (a *analyzer) closeParen(open, hi int) int {
	depth := 0
	for i := open; i < hi; i++ {
		switch {
		case a.toks[i].IsSymbol("("):
			depth++
		case a.toks[i].IsSymbol(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return hi
}

func (a *analyzer) isSubquery(lo, hi int) bool {
	for lo < hi && a.toks[lo].IsSymbol("(") {
		lo++
	}
	return lo < hi && (a.toks[lo].Is("SELECT") || a.toks[lo].Is("WITH"))
}

// findSubqueries 收集非子查询括号内更深层的子查询
func (a *analyzer) findSubqueries(lo, hi int, subs *[][2]int) {
	for i := lo; i < hi; i++ {
		if !a.toks[i].IsSymbol("(") {
			continue
		}
		end := a.closeParen(i, hi)
		if a.isSubquery(i+1, end) {
			*subs = append(*subs, [2]int{i + 1, end})
		} else {
			a.findSubqueries(i+1, end, subs)
		}
		i = end
	}
}

// block 处理一个查询块（SELECT 或 DML 语句体）
func (a *analyzer) block(lo, hi int, parent *scope) {
	s := newScope(parent)
	var conds []condition
	var subs [][2]int
	writeNext := false
	sawSelect := false // SELECT ... INTO 变量（PL/SQL）不是写入目标

	i := lo
	for i < hi {
		t := a.toks[i]
		switch {
		case t.IsSymbol("("):
			end := a.closeParen(i, hi)
			if a.isSubquery(i+1, end) {
				subs = append(subs, [2]int{i + 1, end})
			} else {
				a.findSubqueries(i+1, end, &subs)
			}
			i = end + 1
		case t.Is("WITH") && i == lo:
			i = a.withClause(i+1, hi, s, parent)
		case t.Is("FROM") || t.Is("USING"):
			i = a.fromList(i+1, hi, s, &conds, &subs, writeNext)
			writeNext = false
		case t.Is("DELETE"):
			writeNext = true
			i++
			if i < hi && a.toks[i].IsName() && !a.toks[i].Is("FROM") {
				i = a.fromList(i, hi, s, &conds, &subs, true)
				writeNext = false
			}
		case t.Is("SELECT"):
			sawSelect = true
			i++
		case t.Is("UPDATE") && (i == lo || !(a.toks[i-1].Is("FOR") || a.toks[i-1].Is("KEY"))):
			i = a.fromList(i+1, hi, s, &conds, &subs, true)
		case t.Is("INTO") && !sawSelect:
			var e *tableEntry
			e, i = a.tableItem(i+1, hi, s, &subs, true)
			if e != nil && i < hi && a.toks[i].IsSymbol("(") {
				end := a.closeParen(i, hi)
				if !a.isSubquery(i+1, end) {
					a.columnList(i+1, end, e)
					i = end + 1
				}
			}
		case t.Is("SET"):
			end := a.setClause(i+1, hi, s)
			a.findSubqueries(i+1, end, &subs)
			i = end
		case t.Is("WHERE") || t.Is("HAVING"):
			end := a.conditionEnd(i+1, hi, false)
			a.findSubqueries(i+1, end, &subs)
			conds = append(conds, condition{lo: i + 1, hi: end, kind: model.JoinImplicit, joinType: "INNER"})
			i = end
		case t.Is("ON"):
			end := a.conditionEnd(i+1, hi, false)
			a.findSubqueries(i+1, end, &subs)
			conds = append(conds, condition{lo: i + 1, hi: end, kind: model.JoinExplicit, joinType: "INNER"})
			i = end
		default:
			i++
		}
	}

	for _, r := range subs {
		for _, part := range a.splitCompound(r[0], r[1]) {
			a.block(part[0], part[1], s)
		}
	}
	for _, c := range conds {
		a.condition(c, s, subs)
	}
	a.columnRefs(lo, hi, s, subs)
}

// withClause 解析 WITH name [(cols)] AS (subquery), ...
func (a *analyzer) withClause(i, hi int, s, parent *scope) int {
	if a.ctes == nil {
		a.ctes = make(map[string]bool)
	}
	if i < hi && a.toks[i].Is("RECURSIVE") {
		i++
	}
	for i < hi {
		if !a.toks[i].IsName() {
			return i
		}
		name := a.toks[i].Text
		a.tableTok[i] = true
		i++
		if i < hi && a.toks[i].IsSymbol("(") {
			i = a.closeParen(i, hi) + 1
		}
		if i < hi && a.toks[i].Is("AS") {
			i++
		}
		if i >= hi || !a.toks[i].IsSymbol("(") {
			return i
		}
		end := a.closeParen(i, hi)
		for _, part := range a.splitCompound(i+1, end) {
			a.block(part[0], part[1], parent)
		}
		a.ctes[strings.ToUpper(name)] = true
		s.add(&tableEntry{ref: model.TableRef{Name: name}, derived: true})
		i = end + 1
		if i < hi && a.toks[i].IsSymbol(",") {
			i++
			continue
		}
		return i
	}
	return i
}

// fromList 解析逗号分隔的表列表与 JOIN 子句，返回终止位置
func (a *analyzer) fromList(i, hi int, s *scope, conds *[]condition, subs *[][2]int, write bool) int {
	var prev *tableEntry
	prev, i = a.tableItem(i, hi, s, subs, write)
	for i < hi {
		t := a.toks[i]
		if t.IsSymbol(",") {
			var e *tableEntry
			e, i = a.tableItem(i+1, hi, s, subs, false)
			if e != nil {
				prev = e
			}
			continue
		}
		if t.Kind != TokIdent || !joinStarters[t.Upper] {
			return i
		}

		joinType := "INNER"
		natural := false
		for i < hi && a.toks[i].Kind == TokIdent && joinStarters[a.toks[i].Upper] && !a.toks[i].Is("JOIN") && !a.toks[i].Is("STRAIGHT_JOIN") {
			switch a.toks[i].Upper {
			case "LEFT", "RIGHT", "FULL", "CROSS":
				joinType = a.toks[i].Upper
			case "NATURAL":
				natural = true
			}
			i++
		}
		if i < hi && a.toks[i].Is("APPLY") {
			// CROSS/OUTER APPLY 后接子查询或表函数
			i++
		} else if i < hi && (a.toks[i].Is("JOIN") || a.toks[i].Is("STRAIGHT_JOIN")) {
			i++
		} else {
			return i
		}

		var e *tableEntry
		e, i = a.tableItem(i, hi, s, subs, false)
		if natural {
			a.res.Notes = append(a.res.Notes, "natural join columns cannot be determined without a catalog")
		}
		switch {
		case i < hi && a.toks[i].Is("ON"):
			end := a.conditionEnd(i+1, hi, true)
			a.findSubqueries(i+1, end, subs)
			*conds = append(*conds, condition{lo: i + 1, hi: end, kind: model.JoinExplicit, joinType: joinType})
			i = end
		case i < hi && a.toks[i].Is("USING") && i+1 < hi && a.toks[i+1].IsSymbol("("):
			end := a.closeParen(i+1, hi)
			for k := i + 2; k < end; k++ {
				if a.toks[k].IsName() && prev != nil && e != nil && !prev.derived && !e.derived {
					a.addJoin(model.JoinTriple{
						LeftTable: prev.ref.Qualified(), LeftColumn: a.toks[k].Text,
						RightTable: e.ref.Qualified(), RightColumn: a.toks[k].Text,
						Kind: model.JoinExplicit, JoinType: joinType,
					})
				}
			}
			i = end + 1
		}
		if e != nil {
			prev = e
		}
	}
	return i
}

// tableItem 解析一个表项：[owner.]name [AS] alias，或 (subquery) alias
func (a *analyzer) tableItem(i, hi int, s *scope, subs *[][2]int, write bool) (*tableEntry, int) {
	if i < hi && (a.toks[i].Is("ONLY") || a.toks[i].Is("LATERAL")) {
		i++
	}
	if i >= hi {
		return nil, i
	}
	t := a.toks[i]
	var e *tableEntry
	switch {
	case t.IsSymbol("("):
		end := a.closeParen(i, hi)
		if a.isSubquery(i+1, end) {
			*subs = append(*subs, [2]int{i + 1, end})
			e = &tableEntry{derived: true}
		} else {
			// 括号包裹的连接：FROM (a JOIN b ON ...)
			var conds []condition
			a.fromList(i+1, end, s, &conds, subs, write)
			for _, c := range conds {
				a.condition(c, s, nil)
			}
			return nil, a.skipAlias(end+1, hi)
		}
		i = end + 1
	case t.Is("TABLE") && i+1 < hi && a.toks[i+1].IsSymbol("("):
		e = &tableEntry{derived: true}
		i = a.closeParen(i+1, hi) + 1
	case t.Kind == TokPlaceholder:
		// ${tableName} 之类的动态表名
		a.res.Dynamic = true
		i++
		return nil, a.skipAlias(i, hi)
	case t.IsName() && !(t.Kind == TokIdent && notAlias[t.Upper]):
		parts := []string{t.Text}
		a.tableTok[i] = true
		i++
		for i+1 < hi && a.toks[i].IsSymbol(".") && a.toks[i+1].IsName() {
			parts = append(parts, a.toks[i+1].Text)
			a.tableTok[i+1] = true
			i += 2
		}
		if i+1 < hi && a.toks[i].IsSymbol("@") && a.toks[i+1].IsName() {
			i += 2 // dblink
		}
		ref := model.TableRef{Name: parts[len(parts)-1], Write: write}
		if len(parts) > 1 {
			ref.Owner = parts[len(parts)-2]
		}
		e = &tableEntry{ref: ref, derived: a.ctes[strings.ToUpper(ref.Name)] && ref.Owner == ""}
	default:
		return nil, i
	}

	// SQL Server 表提示 WITH (NOLOCK)
	if i+1 < hi && a.toks[i].Is("WITH") && a.toks[i+1].IsSymbol("(") {
		i = a.closeParen(i+1, hi) + 1
	}
	if i < hi && a.toks[i].Is("AS") {
		i++
	}
	if i < hi && a.toks[i].IsName() && !(a.toks[i].Kind == TokIdent && notAlias[a.toks[i].Upper]) {
		e.ref.Alias = a.toks[i].Text
		a.tableTok[i] = true
		i++
	}
	if e.derived && e.ref.Name == "" {
		e.ref.Name = e.ref.Alias
	}
	s.add(e)
	if !e.derived {
		a.addTable(e.ref)
	}
	return e, i
}

func (a *analyzer) skipAlias(i, hi int) int {
	if i < hi && a.toks[i].Is("AS") {
		i++
	}
	if i < hi && a.toks[i].IsName() && !(a.toks[i].Kind == TokIdent && notAlias[a.toks[i].Upper]) {
		i++
	}
	return i
}

// conditionEnd 条件表达式的结束位置；inJoin 时遇到下一个 JOIN 或逗号也结束
func (a *analyzer) conditionEnd(i, hi int, inJoin bool) int {
	depth := 0
	for ; i < hi; i++ {
		t := a.toks[i]
		switch {
		case t.IsSymbol("("):
			depth++
		case t.IsSymbol(")"):
			depth--
			if depth < 0 {
				return i
			}
		case depth > 0:
		case t.IsSymbol(";"):
			return i
		case inJoin && t.IsSymbol(","):
			return i
		case t.Kind == TokIdent && t.Upper != "ON" && t.Upper != "USING" && clauseTerminators[t.Upper]:
			return i
		case t.Is("ON") || t.Is("USING"):
			if inJoin {
				return i
			}
		case inJoin && t.Kind == TokIdent && joinStarters[t.Upper]:
			return i
		}
	}
	return hi
}

type colRef struct {
	qualifier string // 可能是 alias、table 或 owner.table
	column    string
	next      int
}

// readColRef 读取 a.b 或 a.b.c 形式的限定列
func (a *analyzer) readColRef(i, hi int) (colRef, bool) {
	if i >= hi || !a.toks[i].IsName() {
		return colRef{}, false
	}
	parts := []string{a.toks[i].Text}
	j := i + 1
	for j+1 < hi && a.toks[j].IsSymbol(".") && a.toks[j+1].IsName() && len(parts) < 3 {
		parts = append(parts, a.toks[j+1].Text)
		j += 2
	}
	if len(parts) < 2 {
		return colRef{qualifier: "", column: parts[0], next: j}, true
	}
	return colRef{
		qualifier: strings.Join(parts[:len(parts)-1], "."),
		column:    parts[len(parts)-1],
		next:      j,
	}, true
}

var arithmetic = map[string]bool{"+": true, "-": true, "*": true, "/": true, "||": true, "%": true}

// condition 提取等值谓词
func (a *analyzer) condition(c condition, s *scope, subs [][2]int) {
	inSub := func(k int) int {
		for _, r := range subs {
			if k >= r[0] && k < r[1] {
				return r[1]
			}
		}
		return -1
	}

	for k := c.lo; k < c.hi; k++ {
		if end := inSub(k); end >= 0 {
			k = end
			continue
		}
		if k > c.lo {
			prev := a.toks[k-1]
			if prev.IsSymbol(".") || (prev.Kind == TokSymbol && arithmetic[prev.Text]) {
				continue
			}
		}
		left, ok := a.readColRef(k, c.hi)
		if !ok || left.qualifier == "" {
			continue
		}
		j := left.next
		leftOuter := false
		if j < c.hi && a.toks[j].Kind == TokOuterJoin {
			leftOuter = true
			j++
		}
		if j >= c.hi || !a.toks[j].IsSymbol("=") {
			continue
		}
		right, ok := a.readColRef(j+1, c.hi)
		if !ok || right.qualifier == "" {
			continue
		}
		j = right.next
		rightOuter := false
		if j < c.hi && a.toks[j].Kind == TokOuterJoin {
			rightOuter = true
			j++
		}
		if j < c.hi && (a.toks[j].IsSymbol("(") || (a.toks[j].Kind == TokSymbol && arithmetic[a.toks[j].Text])) {
			continue
		}

		joinType := c.joinType
		kind := c.kind
		if leftOuter || rightOuter {
			kind = model.JoinImplicit
			joinType = "LEFT"
			if leftOuter {
				joinType = "RIGHT"
			}
		}
		a.emitJoin(s, left, right, kind, joinType)
		k = j - 1
	}
}

func (a *analyzer) emitJoin(s *scope, left, right colRef, kind model.JoinKind, joinType string) {
	le := s.resolve(left.qualifier)
	re := s.resolve(right.qualifier)
	if le != nil && re != nil && le == re {
		return
	}
	if (le != nil && le.derived) || (re != nil && re.derived) {
		return
	}
	if kind == model.JoinImplicit && (le == nil || re == nil) {
		// 隐式连接只认 FROM 中列出的表
		return
	}
	lt, rt := left.qualifier, right.qualifier
	if le != nil {
		lt = le.ref.Qualified()
	}
	if re != nil {
		rt = re.ref.Qualified()
	}
	if strings.EqualFold(lt, rt) && strings.EqualFold(left.column, right.column) {
		return
	}
	a.addJoin(model.JoinTriple{
		LeftTable: lt, LeftColumn: left.column,
		RightTable: rt, RightColumn: right.column,
		Kind: kind, JoinType: joinType,
	})
}

// setClause UPDATE ... SET col = expr, ...
func (a *analyzer) setClause(i, hi int, s *scope) int {
	var target *tableEntry
	for _, e := range s.entries {
		if e.ref.Write {
			target = e
			break
		}
	}
	depth := 0
	expectCol := true
	for ; i < hi; i++ {
		t := a.toks[i]
		switch {
		case t.IsSymbol("("):
			depth++
		case t.IsSymbol(")"):
			depth--
		case depth == 0 && t.IsSymbol(","):
			expectCol = true
		case depth == 0 && t.Kind == TokIdent && (t.Upper == "WHERE" || t.Upper == "FROM" || t.Upper == "RETURNING" || t.Upper == "WHEN"):
			return i
		case depth == 0 && expectCol && t.IsName():
			ref, _ := a.readColRef(i, hi)
			if ref.qualifier == "" && target != nil && ref.next < hi && a.toks[ref.next].IsSymbol("=") {
				a.addColumn(model.ColumnRef{Table: target.ref.Qualified(), Column: ref.column})
				a.tableTok[i] = true
			}
			expectCol = false
		}
	}
	return i
}

// columnList INSERT INTO t (a, b, c)
func (a *analyzer) columnList(lo, hi int, e *tableEntry) {
	for k := lo; k < hi; k++ {
		if a.toks[k].IsName() {
			a.addColumn(model.ColumnRef{Table: e.ref.Qualified(), Column: a.toks[k].Text})
			a.tableTok[k] = true
		}
	}
}

// columnRefs 收集限定列引用
func (a *analyzer) columnRefs(lo, hi int, s *scope, subs [][2]int) {
	for k := lo; k < hi; k++ {
		skip := false
		for _, r := range subs {
			if k >= r[0] && k < r[1] {
				k = r[1]
				skip = true
				break
			}
		}
		if skip || a.tableTok[k] || (k > lo && a.toks[k-1].IsSymbol(".")) {
			continue
		}
		ref, ok := a.readColRef(k, hi)
		if !ok || ref.qualifier == "" {
			continue
		}
		if ref.next < hi && a.toks[ref.next].IsSymbol("(") {
			k = ref.next - 1 // pkg.func(...)
			continue
		}
		if e := s.resolve(ref.qualifier); e != nil && !e.derived {
			a.addColumn(model.ColumnRef{Table: e.ref.Qualified(), Column: ref.column})
		}
		k = ref.next - 1
	}
}

func (a *analyzer) addTable(ref model.TableRef) {
	key := "t|" + strings.ToUpper(ref.Qualified())
	if a.seen[key] {
		// 同一表既读又写时保留写标记
		if ref.Write {
			for i := range a.res.Tables {
				if strings.EqualFold(a.res.Tables[i].Qualified(), ref.Qualified()) {
					a.res.Tables[i].Write = true
				}
			}
		}
		return
	}
	a.seen[key] = true
	ref.Alias = ""
	a.res.Tables = append(a.res.Tables, ref)
}

func (a *analyzer) addColumn(c model.ColumnRef) {
	key := "c|" + strings.ToUpper(c.Table+"."+c.Column)
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.res.Columns = append(a.res.Columns, c)
}

func (a *analyzer) addJoin(j model.JoinTriple) {
	key := "j|" + strings.ToUpper(strings.Join([]string{j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn, string(j.Kind)}, "|"))
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.res.Joins = append(a.res.Joins, j)
}
