package java

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind Java 词法单元种类
type Kind int

const (
	Ident Kind = iota
	String
	Char
	Number
	Symbol
)

// Token Java 词法单元
type Token struct {
	Kind Kind
	Text string // String 为解码后的内容
	Line int
	Pos  int // 起始字节偏移
	End  int // 结束字节偏移（不含）
}

// IsSymbol 是否为指定符号
func (t Token) IsSymbol(s string) bool {
	return t.Kind == Symbol && t.Text == s
}

// IsIdent 是否为指定标识符/关键字
func (t Token) IsIdent(s string) bool {
	return t.Kind == Ident && t.Text == s
}

// Tokenized Tokenize 结果
type Tokenized struct {
	Tokens       []Token
	Unterminated bool // 字符串或注释未闭合
}

// Tokenize 切分 Java 源码，注释被丢弃；line 为起始行号
func Tokenize(src string, line int) Tokenized {
	var out Tokenized
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				out.Unterminated = true
				line += strings.Count(src[i:], "\n")
				i = len(src)
				break
			}
			line += strings.Count(src[i:i+end+4], "\n")
			i += end + 4
		case strings.HasPrefix(src[i:], `"""`):
			// 文本块
			end := strings.Index(src[i+3:], `"""`)
			if end < 0 {
				out.Unterminated = true
				end = len(src) - i - 3
			}
			body := src[i+3 : i+3+end]
			start := i
			i += end + 6
			if i > len(src) {
				i = len(src)
			}
			out.Tokens = append(out.Tokens, Token{Kind: String, Text: textBlock(body), Line: line, Pos: start, End: i})
			line += strings.Count(body, "\n")
		case c == '"' || c == '\'':
			start := i
			startLine := line
			var sb strings.Builder
			i++
			closed := false
			for i < len(src) {
				ch := src[i]
				if ch == '\\' && i+1 < len(src) {
					sb.WriteString(unescape(src[i+1]))
					i += 2
					continue
				}
				if ch == c {
					closed = true
					i++
					break
				}
				if ch == '\n' {
					break
				}
				sb.WriteByte(ch)
				i++
			}
			if !closed {
				out.Unterminated = true
			}
			kind := String
			if c == '\'' {
				kind = Char
			}
			out.Tokens = append(out.Tokens, Token{Kind: kind, Text: sb.String(), Line: startLine, Pos: start, End: i})
		case c >= '0' && c <= '9' || (c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9'):
			start := i
			for i < len(src) && (isIdentPart(rune(src[i])) || src[i] == '.') {
				i++
			}
			out.Tokens = append(out.Tokens, Token{Kind: Number, Text: src[start:i], Line: line, Pos: start, End: i})
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
				out.Tokens = append(out.Tokens, Token{Kind: Ident, Text: src[start:i], Line: line, Pos: start, End: i})
				break
			}
			sym := symbolAt(src[i:])
			out.Tokens = append(out.Tokens, Token{Kind: Symbol, Text: sym, Line: line, Pos: i, End: i + len(sym)})
			i += len(sym)
		}
	}
	return out
}

var multiSymbols = []string{"...", "::", "->", "++", "--", "+=", "-=", "==", "!=", "<=", ">=", "&&", "||"}

func symbolAt(s string) string {
	for _, sym := range multiSymbols {
		if strings.HasPrefix(s, sym) {
			return sym
		}
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return ""
	default:
		return string(c)
	}
}

// textBlock 去掉文本块的公共缩进
func textBlock(body string) string {
	lines := strings.Split(strings.TrimPrefix(body, "\n"), "\n")
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range lines {
		if len(l) >= indent && indent > 0 {
			lines[i] = l[indent:]
		}
	}
	return strings.Join(lines, "\n")
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Keywords Java 保留字，不能作为类名或方法名
var Keywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true,
	"case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "float": true,
	"for": true, "goto": true, "if": true, "implements": true, "import": true,
	"instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "strictfp": true, "super": true,
	"switch": true, "synchronized": true, "this": true, "throw": true, "throws": true,
	"transient": true, "try": true, "void": true, "volatile": true, "while": true,
	"true": true, "false": true, "null": true,
}
