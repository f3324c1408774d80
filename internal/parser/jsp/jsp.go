package jsp

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
	"schema-miner/internal/parser/java"
	"schema-miner/internal/parser/sqlparse"
)

var (
	attrPattern     = regexp.MustCompile(`([\w:-]+)\s*=\s*("([^"]*)"|'([^']*)')`)
	jspIncludeTag   = regexp.MustCompile(`(?is)<jsp:include\b([^>]*)>`)
	jstlSQLTag      = regexp.MustCompile(`(?is)<sql:(query|update)\b([^>]*?)(/>|>(.*?)</sql:(?:query|update)\s*>)`)
	innerTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	elExpression    = regexp.MustCompile(`\$\{[^}]*\}`)
	directivePrefix = regexp.MustCompile(`^\s*(\w+)`)
)

// Parser JSP 页面解析器
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser { return &Parser{} }

// Language 实现 parser.Parser
func (p *Parser) Language() model.Language { return model.LanguageJSP }

// Parse 提取指令、脚本片段中的 SQL、JSTL SQL 标签与 include 关系
func (p *Parser) Parse(ctx context.Context, in parser.FileInput) (*model.FileExtraction, error) {
	fx := parser.NewExtraction(in)
	src := string(in.Content)

	// 非脚本部分替换为空白，保留行号与偏移
	code := make([]byte, len(src))
	for k := range code {
		if src[k] == '\n' {
			code[k] = '\n'
		} else {
			code[k] = ' '
		}
	}

	i := 0
	for i < len(src) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		open := strings.Index(src[i:], "<%")
		if open < 0 {
			break
		}
		open += i
		if strings.HasPrefix(src[open:], "<%--") {
			end := strings.Index(src[open+4:], "--%>")
			if end < 0 {
				break
			}
			i = open + 4 + end + 4
			continue
		}
		end := strings.Index(src[open+2:], "%>")
		if end < 0 {
			fx.Diagnostics = append(fx.Diagnostics, warnAt(in, open, model.CodeUnbalanced, "unterminated scriptlet"))
			break
		}
		end += open + 2
		body := open + 2
		switch {
		case strings.HasPrefix(src[body:], "@"):
			p.directive(fx, in, src[body+1:end])
		case strings.HasPrefix(src[body:], "!"), strings.HasPrefix(src[body:], "="):
			copy(code[body+1:end], src[body+1:end])
		default:
			copy(code[body:end], src[body:end])
		}
		i = end + 2
	}

	// 脚本片段按 Java 处理
	javaSrc := string(code)
	tk := java.Tokenize(javaSrc, 1)
	for n, frag := range java.ExtractSQL(javaSrc, tk.Tokens, nil) {
		unit := sqlparse.BuildUnitResolved(fmt.Sprintf("scriptlet@%d", n+1), frag.Kind, frag.Raw, frag.Resolved, frag.Dynamic, frag.Line)
		fx.SQLUnits = append(fx.SQLUnits, unit)
	}

	for n, m := range jstlSQLTag.FindAllStringSubmatchIndex(src, -1) {
		attrs := attributes(src[m[4]:m[5]])
		raw := attrs["sql"]
		if raw == "" && m[8] >= 0 {
			raw = src[m[8]:m[9]]
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		resolved := innerTag.ReplaceAllString(raw, " ")
		dynamic := elExpression.MatchString(resolved)
		resolved = elExpression.ReplaceAllString(resolved, "?")
		line := parser.LineAt(in.Content, m[0])
		unit := sqlparse.BuildUnitResolved(fmt.Sprintf("jstl@%d", n+1), model.SourceInlineLiteral, raw, resolved, dynamic, line)
		fx.SQLUnits = append(fx.SQLUnits, unit)
	}

	for _, m := range jspIncludeTag.FindAllStringSubmatch(src, -1) {
		if page := attributes(m[1])["page"]; page != "" {
			fx.Edges = append(fx.Edges, includeEdge(in.Path, page))
		}
	}
	return fx, nil
}

// directive <%@ page import="..." %> / <%@ include file="..." %>
func (p *Parser) directive(fx *model.FileExtraction, in parser.FileInput, body string) {
	m := directivePrefix.FindStringSubmatch(body)
	if m == nil {
		return
	}
	attrs := attributes(body[len(m[0]):])
	switch m[1] {
	case "page":
		for _, imp := range strings.Split(attrs["import"], ",") {
			if imp = strings.TrimSpace(imp); imp != "" {
				fx.Imports = append(fx.Imports, imp)
			}
		}
	case "include":
		if file := attrs["file"]; file != "" {
			fx.Edges = append(fx.Edges, includeEdge(in.Path, file))
		}
	}
}

func attributes(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		v := m[3]
		if strings.HasPrefix(m[2], "'") {
			v = m[4]
		}
		out[strings.ToLower(m[1])] = v
	}
	return out
}

// includeEdge 相对路径按当前文件所在目录解析
func includeEdge(from, target string) model.Edge {
	resolved := target
	if !strings.HasPrefix(target, "/") && !strings.Contains(target, "${") && !strings.Contains(target, "<%") {
		resolved = path.Join(path.Dir(from), target)
	} else if strings.HasPrefix(target, "/") {
		resolved = strings.TrimPrefix(target, "/")
	}
	return model.Edge{
		DstType:  model.NodePath,
		DstID:    resolved,
		Kind:     model.EdgeIncludes,
		Metadata: map[string]string{"written": target},
	}
}

func warnAt(in parser.FileInput, offset int, code, msg string) model.Diagnostic {
	d := model.Warn(model.ScopeParse, in.Path, code, "%s", msg)
	d.Line = parser.LineAt(in.Content, offset)
	return d
}
