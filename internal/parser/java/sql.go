package java

import (
	"sort"
	"strings"

	"schema-miner/internal/model"
	"schema-miner/internal/parser/sqlparse"
)

// Fragment 源码中识别出的一段 SQL
type Fragment struct {
	Kind     model.SourceKind
	Raw      string // 源码片段
	Resolved string // 字面量拼接结果，非字面量操作数替换为 ?
	Dynamic  bool
	Line     int
	Pos      int
}

// 表达式内的截止符号
var operandStops = map[string]bool{
	"+": true, ";": true, ",": true, "?": true, ":": true, "==": true, "!=": true,
	"&&": true, "||": true, "=": true, "+=": true, "->": true,
}

// operandEnd 从 j 开始的单个操作数的结束位置
func operandEnd(toks []Token, j int) int {
	depth := 0
	for ; j < len(toks); j++ {
		t := toks[j]
		if t.Kind != Symbol {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			if depth == 0 {
				return j
			}
			depth--
		default:
			if depth == 0 && operandStops[t.Text] {
				return j
			}
		}
	}
	return j
}

type chain struct {
	text     string
	dynamic  bool
	literals int
	lo, hi   int // token 区间 [lo, hi)
}

// chainAt 解析 k 处的 '+' 拼接表达式
func chainAt(toks []Token, k int, consts map[string]string) chain {
	c := chain{lo: k, hi: k}
	var sb strings.Builder
	j := k
	for j < len(toks) {
		t := toks[j]
		switch {
		case t.Kind == String:
			sb.WriteString(t.Text)
			c.literals++
			j++
		default:
			end := operandEnd(toks, j)
			if end == j {
				c.text, c.hi = sb.String(), j
				return c
			}
			if v, ok := constantValue(toks[j:end], consts); ok {
				sb.WriteString(v)
			} else {
				sb.WriteString("?")
				c.dynamic = true
			}
			j = end
		}
		if j < len(toks) && toks[j].IsSymbol("+") {
			j++
			continue
		}
		break
	}
	c.text, c.hi = sb.String(), j
	return c
}

// constantValue NAME 或 Owner.NAME 形式的常量引用
func constantValue(toks []Token, consts map[string]string) (string, bool) {
	if len(consts) == 0 || len(toks) == 0 || len(toks)%2 == 0 {
		return "", false
	}
	for i, t := range toks {
		if i%2 == 0 && t.Kind != Ident || i%2 == 1 && !t.IsSymbol(".") {
			return "", false
		}
	}
	v, ok := consts[toks[len(toks)-1].Text]
	return v, ok
}

type accumulator struct {
	parts   []chain
	builder bool // StringBuilder/StringBuffer 或 += 累加
}

func (a *accumulator) text() (string, bool) {
	var sb strings.Builder
	dynamic := false
	for _, p := range a.parts {
		sb.WriteString(p.text)
		dynamic = dynamic || p.dynamic
	}
	return sb.String(), dynamic
}

func isBuilderType(t Token) bool {
	return t.IsIdent("StringBuilder") || t.IsIdent("StringBuffer")
}

// ExtractSQL 在一段 Java 代码中查找字面量 SQL 与 StringBuilder 拼接的 SQL
func ExtractSQL(src string, toks []Token, consts map[string]string) []Fragment {
	consumed := make([]bool, len(toks))
	accs := make(map[string]*accumulator)
	var out []Fragment

	mark := func(c chain) {
		for i := c.lo; i < c.hi && i < len(consumed); i++ {
			consumed[i] = true
		}
	}
	flush := func(name string) {
		acc, ok := accs[name]
		if !ok {
			return
		}
		delete(accs, name)
		if len(acc.parts) == 0 {
			return
		}
		text, dynamic := acc.text()
		if !sqlparse.LooksLikeSQL(text) {
			return
		}
		kind := model.SourceInlineLiteral
		if acc.builder {
			kind = model.SourceStringBuilder
		}
		raws := make([]string, 0, len(acc.parts))
		for _, p := range acc.parts {
			raws = append(raws, rawSpan(src, toks, p))
		}
		first := toks[acc.parts[0].lo]
		out = append(out, Fragment{
			Kind: kind, Raw: strings.Join(raws, "\n"), Resolved: text,
			Dynamic: dynamic, Line: first.Line, Pos: first.Pos,
		})
	}

	for k := 0; k < len(toks); k++ {
		t := toks[k]

		// name = new StringBuilder(...)
		if t.IsIdent("new") && k+2 < len(toks) && isBuilderType(toks[k+1]) && toks[k+2].IsSymbol("(") && k >= 2 &&
			toks[k-1].IsSymbol("=") && toks[k-2].Kind == Ident {
			name := toks[k-2].Text
			flush(name)
			acc := &accumulator{builder: true}
			accs[name] = acc
			if k+3 < len(toks) && !toks[k+3].IsSymbol(")") && toks[k+3].Kind != Number {
				c := chainAt(toks, k+3, consts)
				if c.literals > 0 {
					acc.parts = append(acc.parts, c)
					mark(c)
				}
				k = c.hi
			}
			continue
		}

		// name.append(...).append(...)
		if t.Kind == Ident && k+3 < len(toks) && toks[k+1].IsSymbol(".") && toks[k+2].IsIdent("append") && toks[k+3].IsSymbol("(") {
			acc, ok := accs[t.Text]
			j := k + 1
			for j+2 < len(toks) && toks[j].IsSymbol(".") && toks[j+1].IsIdent("append") && toks[j+2].IsSymbol("(") {
				c := chainAt(toks, j+3, consts)
				if !ok {
					if c.literals == 0 {
						break
					}
					acc = &accumulator{builder: true}
					accs[t.Text] = acc
					ok = true
				}
				acc.parts = append(acc.parts, c)
				mark(c)
				j = c.hi
				// 跳过本次 append 的剩余参数与右括号
				for depth := 0; j < len(toks); j++ {
					if toks[j].IsSymbol("(") {
						depth++
					} else if toks[j].IsSymbol(")") {
						if depth == 0 {
							j++
							break
						}
						depth--
					}
				}
			}
			k = j - 1
			continue
		}

		// name.setLength(0) 视为新语句开始
		if t.Kind == Ident && k+4 < len(toks) && toks[k+1].IsSymbol(".") && toks[k+2].IsIdent("setLength") {
			if acc, ok := accs[t.Text]; ok {
				flush(t.Text)
				accs[t.Text] = &accumulator{builder: acc.builder}
			}
			continue
		}

		// String name = chain
		if t.IsIdent("String") && k+3 < len(toks) && toks[k+1].Kind == Ident && toks[k+2].IsSymbol("=") && toks[k+3].Kind == String {
			name := toks[k+1].Text
			flush(name)
			c := chainAt(toks, k+3, consts)
			accs[name] = &accumulator{parts: []chain{c}}
			mark(c)
			k = c.hi - 1
			continue
		}

		// name += chain / name = chain
		if t.Kind == Ident && k+2 < len(toks) && (toks[k+1].IsSymbol("+=") || toks[k+1].IsSymbol("=")) {
			acc, ok := accs[t.Text]
			if !ok || (k > 0 && toks[k-1].IsSymbol(".")) {
				continue
			}
			c := chainAt(toks, k+2, consts)
			if c.literals == 0 {
				continue
			}
			if toks[k+1].IsSymbol("=") {
				flush(t.Text)
				acc = &accumulator{builder: acc.builder}
				accs[t.Text] = acc
			} else {
				acc.builder = true
			}
			acc.parts = append(acc.parts, c)
			mark(c)
			k = c.hi - 1
			continue
		}
	}

	names := make([]string, 0, len(accs))
	for name := range accs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		flush(name)
	}

	// 剩余的字面量链
	for k := 0; k < len(toks); k++ {
		if consumed[k] || toks[k].Kind != String {
			continue
		}
		c := chainAt(toks, k, consts)
		mark(c)
		if c.hi > k {
			k = c.hi - 1
		}
		if !sqlparse.LooksLikeSQL(c.text) {
			continue
		}
		first := toks[c.lo]
		out = append(out, Fragment{
			Kind: model.SourceInlineLiteral, Raw: rawSpan(src, toks, c), Resolved: c.text,
			Dynamic: c.dynamic, Line: first.Line, Pos: first.Pos,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

func rawSpan(src string, toks []Token, c chain) string {
	if c.hi <= c.lo || c.hi > len(toks) {
		return ""
	}
	lo, hi := toks[c.lo].Pos, toks[c.hi-1].End
	if lo < 0 || hi > len(src) || lo > hi {
		return ""
	}
	return src[lo:hi]
}
