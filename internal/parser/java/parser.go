package java

import (
	"context"
	"fmt"
	"strings"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
	"schema-miner/internal/parser/sqlparse"
)

// 置信度
const (
	confidenceDefinite     = 0.95
	confidenceInterface    = 0.8
	confidencePackage      = 0.5
	confidenceNoVisibility = 0.8
	confidenceUnbalanced   = 0.6
)

var modifierSet = map[string]bool{
	"public": true, "protected": true, "private": true, "static": true, "final": true,
	"abstract": true, "synchronized": true, "native": true, "transient": true,
	"volatile": true, "strictfp": true, "default": true, "sealed": true, "non-sealed": true,
}

var primitives = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "void": true,
}

// Parser Java 源文件解析器
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser { return &Parser{} }

// Language 实现 parser.Parser
func (p *Parser) Language() model.Language { return model.LanguageJava }

// Parse 提取包、导入、类型、方法以及嵌入的 SQL
func (p *Parser) Parse(ctx context.Context, in parser.FileInput) (*model.FileExtraction, error) {
	fx := parser.NewExtraction(in)
	src := string(in.Content)
	tk := Tokenize(src, 1)

	st := &state{src: src, toks: tk.Tokens, fx: fx}
	if err := st.run(ctx); err != nil {
		return nil, err
	}
	fx.Package = st.pkg
	for i := range fx.Classes {
		fx.Classes[i].Package = st.pkg
	}

	if st.unbalanced || st.depth != 0 || tk.Unterminated {
		fx.Diagnostics = append(fx.Diagnostics, model.Warn(model.ScopeParse, in.Path, model.CodeUnbalanced,
			"unbalanced braces or unterminated literal; entities downgraded"))
		for i := range fx.Classes {
			fx.Classes[i].Extraction = fx.Classes[i].Extraction.Downgrade(confidenceUnbalanced, "unbalanced braces")
		}
		for i := range fx.Methods {
			fx.Methods[i].Extraction = fx.Methods[i].Extraction.Downgrade(confidenceUnbalanced, "unbalanced braces")
		}
	}

	st.extractSQL()
	return fx, nil
}

type typeFrame struct {
	name     string // Outer.Inner
	simple   string
	kind     model.ClassKind
	depth    int
	enumHead bool // 枚举常量区
}

// region 需要扫描 SQL 的代码区间
type region struct {
	lo, hi int
	owner  string // 类名
	method string // Class#name(sig)，字段/初始化块为空
}

type state struct {
	src        string
	toks       []Token
	fx         *model.FileExtraction
	pkg        string
	stack      []*typeFrame
	depth      int
	unbalanced bool
	regions    []region
	consts     map[string]string
}

func (st *state) top() *typeFrame {
	if len(st.stack) == 0 {
		return nil
	}
	return st.stack[len(st.stack)-1]
}

func (st *state) run(ctx context.Context) error {
	toks := st.toks
	i := 0
	for i < len(toks) {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		t := toks[i]
		frame := st.top()
		switch {
		case t.IsSymbol("}"):
			st.depth--
			if frame != nil && st.depth < frame.depth {
				st.stack = st.stack[:len(st.stack)-1]
			}
			if st.depth < 0 {
				st.unbalanced = true
				st.depth = 0
			}
			i++
		case t.IsSymbol("{"):
			// 初始化块
			end := st.matchBrace(i)
			if frame != nil {
				st.regions = append(st.regions, region{lo: i + 1, hi: end, owner: frame.name})
			}
			i = end + 1
		case t.IsSymbol(";"):
			i++
		case frame == nil && t.IsIdent("package"):
			name, end := st.dotted(i + 1)
			st.pkg = name
			i = st.skipTo(end, ";") + 1
		case frame == nil && t.IsIdent("import"):
			j := i + 1
			var sb strings.Builder
			for j < len(toks) && !toks[j].IsSymbol(";") {
				if toks[j].IsIdent("static") && j == i+1 {
					j++
					continue
				}
				sb.WriteString(toks[j].Text)
				j++
			}
			if sb.Len() > 0 {
				st.fx.Imports = append(st.fx.Imports, sb.String())
			}
			i = j + 1
		case frame != nil && frame.enumHead:
			i = st.enumConstants(i, frame)
		default:
			i = st.member(i)
		}
	}
	return nil
}

// matchBrace 返回与 open 处 '{' 匹配的 '}'，未闭合时返回最后一个下标
func (st *state) matchBrace(open int) int {
	depth := 0
	for i := open; i < len(st.toks); i++ {
		switch {
		case st.toks[i].IsSymbol("{"):
			depth++
		case st.toks[i].IsSymbol("}"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	st.unbalanced = true
	return len(st.toks) - 1
}

func (st *state) matchParen(open int) int {
	depth := 0
	for i := open; i < len(st.toks); i++ {
		switch {
		case st.toks[i].IsSymbol("("):
			depth++
		case st.toks[i].IsSymbol(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(st.toks) - 1
}

// skipGenerics 跳过 <...>，返回其后的位置
func (st *state) skipGenerics(i int) int {
	if i >= len(st.toks) || !st.toks[i].IsSymbol("<") {
		return i
	}
	depth := 0
	for ; i < len(st.toks); i++ {
		t := st.toks[i]
		switch {
		case t.IsSymbol("<"):
			depth++
		case t.IsSymbol(">"):
			depth--
			if depth == 0 {
				return i + 1
			}
		case t.IsSymbol(";"), t.IsSymbol("{"), t.IsSymbol("}"):
			return i
		}
	}
	return i
}

func (st *state) skipTo(i int, sym string) int {
	for i < len(st.toks) && !st.toks[i].IsSymbol(sym) {
		i++
	}
	return i
}

func (st *state) dotted(i int) (string, int) {
	var parts []string
	for i < len(st.toks) && st.toks[i].Kind == Ident {
		parts = append(parts, st.toks[i].Text)
		i++
		if i+1 < len(st.toks) && st.toks[i].IsSymbol(".") && st.toks[i+1].Kind == Ident {
			i++
			continue
		}
		break
	}
	return strings.Join(parts, "."), i
}

// skipType 类型表达式：name(.name)*<...>([])*，返回其后的位置
func (st *state) skipType(i int) int {
	toks := st.toks
	if i >= len(toks) || toks[i].Kind != Ident {
		return i
	}
	if Keywords[toks[i].Text] && !primitives[toks[i].Text] {
		return i
	}
	i++
	for {
		i = st.skipGenerics(i)
		if i+1 < len(toks) && toks[i].IsSymbol(".") && toks[i+1].Kind == Ident {
			i += 2
			continue
		}
		break
	}
	for i+1 < len(toks) && toks[i].IsSymbol("[") && toks[i+1].IsSymbol("]") {
		i += 2
	}
	if i < len(toks) && toks[i].IsSymbol("...") {
		i++
	}
	return i
}

func (st *state) text(lo, hi int) string {
	var sb strings.Builder
	for i := lo; i < hi && i < len(st.toks); i++ {
		t := st.toks[i]
		if i > lo && t.Kind == Ident && st.toks[i-1].Kind == Ident {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

type annotation struct {
	name   string
	lo, hi int // 参数 token 区间
}

// modifiers 读取注解与修饰符
func (st *state) modifiers(i int) ([]string, []annotation, int) {
	var mods []string
	var annos []annotation
	toks := st.toks
	for i < len(toks) {
		t := toks[i]
		if t.IsSymbol("@") && i+1 < len(toks) && toks[i+1].Kind == Ident && !toks[i+1].IsIdent("interface") {
			name, end := st.dotted(i + 1)
			a := annotation{name: name}
			if end < len(toks) && toks[end].IsSymbol("(") {
				rparen := st.matchParen(end)
				a.lo, a.hi = end+1, rparen
				end = rparen + 1
			}
			annos = append(annos, a)
			i = end
			continue
		}
		if t.Kind == Ident && modifierSet[t.Text] {
			mods = append(mods, t.Text)
			i++
			continue
		}
		// non-sealed 被切分成三个 token
		if t.IsIdent("non") && i+2 < len(toks) && toks[i+1].IsSymbol("-") && toks[i+2].IsIdent("sealed") {
			mods = append(mods, "non-sealed")
			i += 3
			continue
		}
		break
	}
	return mods, annos, i
}

func hasVisibility(mods []string) bool {
	for _, m := range mods {
		if m == "public" || m == "protected" || m == "private" {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func annotationNames(annos []annotation) []string {
	if len(annos) == 0 {
		return nil
	}
	out := make([]string, len(annos))
	for i, a := range annos {
		out[i] = a.name
	}
	return out
}

// member 类型体或顶层的一条声明
func (st *state) member(i int) int {
	toks := st.toks
	frame := st.top()
	mods, annos, j := st.modifiers(i)
	if j >= len(toks) {
		return j
	}

	t := toks[j]
	if t.IsSymbol("@") && j+1 < len(toks) && toks[j+1].IsIdent("interface") {
		return st.typeDecl(j+1, model.ClassKindAnnotation, mods, annos)
	}
	switch {
	case t.IsIdent("class"):
		return st.typeDecl(j, model.ClassKindClass, mods, annos)
	case t.IsIdent("interface"):
		return st.typeDecl(j, model.ClassKindInterface, mods, annos)
	case t.IsIdent("enum"):
		return st.typeDecl(j, model.ClassKindEnum, mods, annos)
	case t.IsIdent("record") && j+2 < len(toks) && toks[j+1].Kind == Ident && (toks[j+2].IsSymbol("(") || toks[j+2].IsSymbol("<")):
		return st.typeDecl(j, model.ClassKindRecord, mods, annos)
	}

	if frame == nil {
		if j == i {
			return i + 1
		}
		return j
	}

	j = st.skipGenerics(j)
	if j >= len(toks) {
		return j
	}

	// 构造器
	if toks[j].IsIdent(frame.simple) && j+1 < len(toks) && toks[j+1].IsSymbol("(") {
		return st.method(j, "", mods, annos, true)
	}

	typeEnd := st.skipType(j)
	if typeEnd == j || typeEnd >= len(toks) {
		if j == i {
			return i + 1
		}
		return j
	}
	nameTok := toks[typeEnd]
	if nameTok.Kind == Ident && !Keywords[nameTok.Text] && typeEnd+1 < len(toks) && toks[typeEnd+1].IsSymbol("(") {
		return st.method(typeEnd, st.text(j, typeEnd), mods, annos, false)
	}
	return st.field(typeEnd, frame, mods)
}

// typeDecl class/interface/enum/record/@interface 声明
func (st *state) typeDecl(kw int, kind model.ClassKind, mods []string, annos []annotation) int {
	toks := st.toks
	if kw+1 >= len(toks) || toks[kw+1].Kind != Ident || Keywords[toks[kw+1].Text] {
		return kw + 1
	}
	nameTok := toks[kw+1]
	name := nameTok.Text
	if outer := st.top(); outer != nil {
		name = outer.name + "." + name
	}

	cls := model.ClassEntity{
		Name:        name,
		Kind:        kind,
		Modifiers:   mods,
		Annotations: annotationNames(annos),
		IsInterface: kind == model.ClassKindInterface || kind == model.ClassKindAnnotation,
		IsAbstract:  contains(mods, "abstract") || kind == model.ClassKindInterface,
		Line:        nameTok.Line,
	}
	if hasVisibility(mods) {
		cls.Extraction = model.DefiniteMatch(confidenceDefinite)
	} else {
		cls.Extraction = model.ProbableMatch(confidenceNoVisibility, "no visibility modifier")
	}

	j := st.skipGenerics(kw + 2)
	if kind == model.ClassKindRecord && j < len(toks) && toks[j].IsSymbol("(") {
		j = st.matchParen(j) + 1
	}
	for j < len(toks) && !toks[j].IsSymbol("{") && !toks[j].IsSymbol(";") {
		switch {
		case toks[j].IsIdent("extends"):
			names, end := st.typeList(j + 1)
			if kind == model.ClassKindInterface {
				cls.Implements = append(cls.Implements, names...)
			} else if len(names) > 0 {
				cls.Extends = names[0]
			}
			j = end
		case toks[j].IsIdent("implements"):
			names, end := st.typeList(j + 1)
			cls.Implements = append(cls.Implements, names...)
			j = end
		case toks[j].IsIdent("permits"):
			_, end := st.typeList(j + 1)
			j = end
		default:
			j++
		}
	}
	st.fx.Classes = append(st.fx.Classes, cls)

	if j >= len(toks) || !toks[j].IsSymbol("{") {
		return j
	}
	st.depth++
	st.stack = append(st.stack, &typeFrame{
		name:     name,
		simple:   nameTok.Text,
		kind:     kind,
		depth:    st.depth,
		enumHead: kind == model.ClassKindEnum,
	})
	return j + 1
}

// typeList 逗号分隔的类型名，去掉泛型参数
func (st *state) typeList(j int) ([]string, int) {
	var names []string
	for j < len(st.toks) {
		end := st.skipType(j)
		if end == j {
			break
		}
		name, _ := st.dotted(j)
		names = append(names, name)
		j = end
		if j < len(st.toks) && st.toks[j].IsSymbol(",") {
			j++
			continue
		}
		break
	}
	return names, j
}

// enumConstants 枚举常量列表，遇到 ';' 结束
func (st *state) enumConstants(i int, frame *typeFrame) int {
	toks := st.toks
	for i < len(toks) {
		t := toks[i]
		switch {
		case t.IsSymbol(";"):
			frame.enumHead = false
			return i + 1
		case t.IsSymbol("}"):
			frame.enumHead = false
			return i
		case t.IsSymbol(","):
			i++
		case t.IsSymbol("@"):
			_, _, end := st.modifiers(i)
			i = end
		case t.Kind == Ident:
			i++
			if i < len(toks) && toks[i].IsSymbol("(") {
				rparen := st.matchParen(i)
				st.regions = append(st.regions, region{lo: i + 1, hi: rparen, owner: frame.name})
				i = rparen + 1
			}
			if i < len(toks) && toks[i].IsSymbol("{") {
				i = st.matchBrace(i) + 1
			}
		default:
			frame.enumHead = false
			return i
		}
	}
	return i
}

// method 方法或构造器，nameIdx 为方法名位置
func (st *state) method(nameIdx int, returnType string, mods []string, annos []annotation, ctor bool) int {
	toks := st.toks
	frame := st.top()
	name := toks[nameIdx].Text
	open := nameIdx + 1
	rparen := st.matchParen(open)

	m := model.MethodEntity{
		ClassName:     frame.name,
		Name:          name,
		ReturnType:    returnType,
		Parameters:    st.params(open+1, rparen),
		Modifiers:     mods,
		Annotations:   annotationNames(annos),
		IsConstructor: ctor,
		Line:          toks[nameIdx].Line,
	}
	switch {
	case hasVisibility(mods):
		m.Extraction = model.DefiniteMatch(confidenceDefinite)
	case frame.kind == model.ClassKindInterface || frame.kind == model.ClassKindAnnotation:
		m.Extraction = model.ProbableMatch(confidenceInterface, "interface member without modifier")
	default:
		m.Extraction = model.ProbableMatch(confidencePackage, "package-private member")
	}

	j := rparen + 1
	for j+1 < len(toks) && toks[j].IsSymbol("[") && toks[j+1].IsSymbol("]") {
		j += 2
	}
	if j < len(toks) && toks[j].IsIdent("throws") {
		names, end := st.typeList(j + 1)
		m.Throws = names
		j = end
	}

	ref := model.MethodRef(frame.name, name, m.Signature())
	for _, a := range annos {
		if a.hi > a.lo {
			st.regions = append(st.regions, region{lo: a.lo, hi: a.hi, owner: frame.name, method: ref})
		}
	}

	switch {
	case j < len(toks) && toks[j].IsSymbol("{"):
		end := st.matchBrace(j)
		st.regions = append(st.regions, region{lo: j + 1, hi: end, owner: frame.name, method: ref})
		j = end + 1
	case j < len(toks) && toks[j].IsSymbol(";"):
		j++
	case j < len(toks) && toks[j].IsIdent("default"):
		j = st.skipTo(j, ";") + 1
	default:
		m.Extraction = m.Extraction.Downgrade(confidencePackage, "method without body or terminator")
	}
	st.fx.Methods = append(st.fx.Methods, m)
	return j
}

// params 形参列表
func (st *state) params(lo, hi int) []model.Parameter {
	if lo >= hi {
		return nil
	}
	var out []model.Parameter
	start := lo
	depth := 0
	flush := func(end int) {
		// 去掉注解与 final
		k := start
		for k < end {
			if st.toks[k].IsSymbol("@") {
				_, end2 := st.dotted(k + 1)
				if end2 < end && st.toks[end2].IsSymbol("(") {
					end2 = st.matchParen(end2) + 1
				}
				k = end2
				continue
			}
			if st.toks[k].IsIdent("final") {
				k++
				continue
			}
			break
		}
		if end-k < 2 {
			return
		}
		nameTok := st.toks[end-1]
		typeText := st.text(k, end-1)
		out = append(out, model.Parameter{Type: typeText, Name: nameTok.Text})
	}
	for i := lo; i < hi; i++ {
		t := st.toks[i]
		switch {
		case t.IsSymbol("<"), t.IsSymbol("("):
			depth++
		case t.IsSymbol(">"), t.IsSymbol(")"):
			depth--
		case depth == 0 && t.IsSymbol(","):
			flush(i)
			start = i + 1
		}
	}
	flush(hi)
	return out
}

// field 跳过字段声明，记录初始化表达式与字符串常量
func (st *state) field(i int, frame *typeFrame, mods []string) int {
	toks := st.toks
	depth := 0
	start := i
	for ; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.IsSymbol("(") || t.IsSymbol("{") || t.IsSymbol("["):
			depth++
		case t.IsSymbol(")") || t.IsSymbol("]"):
			if depth == 0 {
				// 类体中出现的语句片段
				return i + 1
			}
			depth--
		case t.IsSymbol("}"):
			if depth == 0 {
				// 声明不完整，交回主循环
				st.addFieldRegion(start, i, frame, mods)
				return i
			}
			depth--
		case depth == 0 && t.IsSymbol(";"):
			st.addFieldRegion(start, i, frame, mods)
			return i + 1
		}
	}
	st.addFieldRegion(start, i, frame, mods)
	return i
}

func (st *state) addFieldRegion(lo, hi int, frame *typeFrame, mods []string) {
	if hi <= lo {
		return
	}
	st.regions = append(st.regions, region{lo: lo, hi: hi, owner: frame.name})

	// NAME = "literal" + "literal"
	toks := st.toks
	if !contains(mods, "final") && frame.kind != model.ClassKindInterface {
		return
	}
	for k := lo; k+2 < hi; k++ {
		if toks[k].Kind == Ident && toks[k+1].IsSymbol("=") && toks[k+2].Kind == String {
			c := chainAt(toks[:hi], k+2, nil)
			if !c.dynamic {
				if st.consts == nil {
					st.consts = make(map[string]string)
				}
				st.consts[toks[k].Text] = c.text
			}
			k = c.hi - 1
		}
	}
}

// extractSQL 对所有代码区间提取嵌入 SQL
func (st *state) extractSQL() {
	seq := make(map[string]int)
	for _, r := range st.regions {
		if r.hi <= r.lo {
			continue
		}
		for _, frag := range ExtractSQL(st.src, st.toks[r.lo:r.hi], st.consts) {
			owner := r.method
			if owner == "" {
				owner = r.owner
			}
			seq[owner]++
			unit := sqlparse.BuildUnitResolved(fmt.Sprintf("%s@%d", owner, seq[owner]), frag.Kind, frag.Raw, frag.Resolved, frag.Dynamic, frag.Line)
			unit.MethodName = r.method
			st.fx.SQLUnits = append(st.fx.SQLUnits, unit)
		}
	}
}
