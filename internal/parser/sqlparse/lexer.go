package sqlparse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind 词法单元种类
type TokenKind int

const (
	TokIdent       TokenKind = iota // 标识符或关键字
	TokQuoted                       // "x" `x` [x]
	TokString                       // 'x'
	TokNumber                       // 123 1.5
	TokSymbol                       // 运算符与标点
	TokPlaceholder                  // ? :name #{x} ${x}
	TokOuterJoin                    // Oracle (+)
)

// Token 词法单元
type Token struct {
	Kind  TokenKind
	Text  string // 原文（引号标识符去掉引号）
	Upper string // 大写形式，仅 Ident/Quoted
	Pos   int    // 在输入中的字节偏移
}

// Is 是否为指定关键字（不区分大小写）
func (t Token) Is(keyword string) bool {
	return t.Kind == TokIdent && t.Upper == keyword
}

// IsSymbol 是否为指定符号
func (t Token) IsSymbol(sym string) bool {
	return t.Kind == TokSymbol && t.Text == sym
}

// IsName 可作为名字的单元
func (t Token) IsName() bool {
	return t.Kind == TokIdent || t.Kind == TokQuoted
}

// Dynamic 是否为 ${} 这类运行期拼接的占位符
func (t Token) Dynamic() bool {
	return t.Kind == TokPlaceholder && strings.HasPrefix(t.Text, "${")
}

// Lexer 结果
type Lexed struct {
	Tokens     []Token
	Unbalanced bool // 括号不配对或字符串/注释未闭合
}

// Lex 将 SQL 文本切分为词法单元，注释被丢弃
func Lex(src string) Lexed {
	var out Lexed
	depth := 0
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				out.Unbalanced = true
				i = len(src)
				break
			}
			i += end + 4
		case c == '\'':
			start := i
			i++
			closed := false
			for i < len(src) {
				if src[i] == '\'' {
					if i+1 < len(src) && src[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				out.Unbalanced = true
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokString, Text: src[start:i], Pos: start})
		case c == '"' || c == '`' || c == '[':
			closeCh := c
			if c == '[' {
				closeCh = ']'
			}
			end := strings.IndexByte(src[i+1:], closeCh)
			if end < 0 {
				out.Unbalanced = true
				i = len(src)
				break
			}
			name := src[i+1 : i+1+end]
			out.Tokens = append(out.Tokens, Token{Kind: TokQuoted, Text: name, Upper: strings.ToUpper(name), Pos: i})
			i += end + 2
		case (c == '#' || c == '$') && i+1 < len(src) && src[i+1] == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				out.Unbalanced = true
				end = len(src) - i - 1
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokPlaceholder, Text: src[i : i+end+1], Pos: i})
			i += end + 1
		case c == '?':
			out.Tokens = append(out.Tokens, Token{Kind: TokPlaceholder, Text: "?", Pos: i})
			i++
		case c == ':' && i+1 < len(src) && isIdentStart(rune(src[i+1])):
			start := i
			i++
			for i < len(src) && isIdentPart(rune(src[i])) {
				i++
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokPlaceholder, Text: src[start:i], Pos: start})
		case c == '(':
			if n := outerJoinLen(src[i:]); n > 0 {
				out.Tokens = append(out.Tokens, Token{Kind: TokOuterJoin, Text: "(+)", Pos: i})
				i += n
				break
			}
			depth++
			out.Tokens = append(out.Tokens, Token{Kind: TokSymbol, Text: "(", Pos: i})
			i++
		case c == ')':
			depth--
			if depth < 0 {
				out.Unbalanced = true
				depth = 0
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokSymbol, Text: ")", Pos: i})
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokNumber, Text: src[start:i], Pos: start})
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if isIdentStart(r) {
				start := i
				i += size
				for i < len(src) {
					r, size = utf8.DecodeRuneInString(src[i:])
					if !isIdentPart(r) {
						break
					}
					i += size
				}
				word := src[start:i]
				out.Tokens = append(out.Tokens, Token{Kind: TokIdent, Text: word, Upper: strings.ToUpper(word), Pos: start})
				break
			}
			out.Tokens = append(out.Tokens, Token{Kind: TokSymbol, Text: symbolAt(src[i:]), Pos: i})
			i += len(symbolAt(src[i:]))
		}
	}
	if depth != 0 {
		out.Unbalanced = true
	}
	return out
}

var twoCharSymbols = []string{"<>", "!=", "<=", ">=", "||", "::", ":=", "=>"}

func symbolAt(s string) string {
	for _, sym := range twoCharSymbols {
		if strings.HasPrefix(s, sym) {
			return sym
		}
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}

// outerJoinLen 识别 "(+)"（允许空白），返回长度
func outerJoinLen(s string) int {
	i := 1
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) || s[i] != '+' {
		return 0
	}
	i++
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) || s[i] != ')' {
		return 0
	}
	return i + 1
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
