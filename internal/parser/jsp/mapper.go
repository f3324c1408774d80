package jsp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
	"schema-miner/internal/parser/sqlparse"
)

// node 简化的 XML DOM，name 为空表示文本节点
type node struct {
	name     string
	attrs    map[string]string
	children []*node
	text     string
	line     int
}

func (n *node) attr(key string) string {
	return n.attrs[key]
}

// parseXML 宽松解析；出错时返回已构建的部分
func parseXML(content []byte) (*node, error) {
	d := xml.NewDecoder(bytes.NewReader(content))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	root := &node{name: "#document"}
	stack := []*node{root}
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return root, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := d.InputPos()
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr)), line: line}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top.children = append(top.children, &node{text: string(t)})
		}
	}
	return root, nil
}

func (n *node) firstElement() *node {
	for _, c := range n.children {
		if c.name != "" {
			return c
		}
	}
	return nil
}

var statementTags = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"statement": true, "procedure": true,
}

// iBatis 动态标签
var ibatisDynamic = map[string]bool{
	"dynamic": true, "isNotEmpty": true, "isEmpty": true, "isNotNull": true, "isNull": true,
	"isEqual": true, "isNotEqual": true, "isGreaterThan": true, "isGreaterEqual": true,
	"isLessThan": true, "isLessEqual": true, "isPropertyAvailable": true,
	"isNotPropertyAvailable": true, "isParameterPresent": true, "isNotParameterPresent": true,
	"iterate": true,
}

var (
	mybatisParam  = regexp.MustCompile(`#\{[^}]*\}`)
	ibatisParam   = regexp.MustCompile(`#[A-Za-z_][\w.\[\]]*(?::\w+)*#`)
	ibatisLiteral = regexp.MustCompile(`\$([A-Za-z_][\w.]*)\$`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// MapperParser MyBatis/iBatis XML mapper 解析器
type MapperParser struct{}

// NewMapperParser 创建解析器
func NewMapperParser() *MapperParser { return &MapperParser{} }

// Language 实现 parser.Parser
func (p *MapperParser) Language() model.Language { return model.LanguageMyBatis }

// Parse 每个语句元素生成一个 SQLUnit；非 mapper 文件返回空结果
func (p *MapperParser) Parse(ctx context.Context, in parser.FileInput) (*model.FileExtraction, error) {
	fx := parser.NewExtraction(in)
	doc, err := parseXML(in.Content)
	root := doc.firstElement()
	if root == nil || (root.name != "mapper" && root.name != "sqlMap") {
		return fx, nil
	}
	if err != nil {
		fx.Diagnostics = append(fx.Diagnostics, model.Warn(model.ScopeParse, in.Path, model.CodeMalformedXML,
			"mapper is not well-formed: %v", err))
	}

	ns := root.attr("namespace")
	if ns != "" {
		fx.Edges = append(fx.Edges, model.Edge{
			DstType: model.NodeTypeName, DstID: ns, Kind: model.EdgeMapsTo,
			Metadata: map[string]string{"role": "namespace"},
		})
	}

	m := &mapper{namespace: ns, fragments: make(map[string]*node)}
	for _, c := range root.children {
		if c.name == "sql" && c.attr("id") != "" {
			m.fragments[c.attr("id")] = c
		}
	}

	for _, c := range root.children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case c.name == "resultMap" && c.attr("type") != "":
			fx.Edges = append(fx.Edges, model.Edge{
				DstType: model.NodeTypeName, DstID: c.attr("type"), Kind: model.EdgeMapsTo,
				Metadata: map[string]string{"role": "result_map", "id": c.attr("id")},
			})
		case statementTags[c.name]:
			fx.SQLUnits = append(fx.SQLUnits, m.unit(c))
			if rt := c.attr("resultType"); strings.Contains(rt, ".") {
				fx.Edges = append(fx.Edges, model.Edge{
					DstType: model.NodeTypeName, DstID: rt, Kind: model.EdgeMapsTo,
					Metadata: map[string]string{"role": "result_type", "id": c.attr("id")},
				})
			}
		}
	}
	return fx, nil
}

type mapper struct {
	namespace string
	fragments map[string]*node
}

type flattenState struct {
	dynamic    bool
	unresolved []string
	visiting   map[string]bool
}

func (m *mapper) unit(el *node) model.SQLUnit {
	key := el.attr("id")
	if m.namespace != "" {
		key = m.namespace + "." + key
	}

	st := &flattenState{visiting: make(map[string]bool)}
	resolved := m.flatten(el, st)
	resolved, params := normalizeParams(resolved)
	st.dynamic = st.dynamic || params

	unit := sqlparse.BuildUnitResolved(key, model.SourceMyBatisElement, strings.TrimSpace(rawText(el)), resolved, st.dynamic, el.line)
	for _, ref := range st.unresolved {
		d := model.Warn(model.ScopeParse, "", model.CodeUnresolvedInclude, "include refid %q not found in namespace %q", ref, m.namespace)
		d.Line = el.line
		unit.Diagnostics = append(unit.Diagnostics, d)
	}
	return unit
}

// rawText 元素文本内容，不含 selectKey
func rawText(n *node) string {
	if n.name == "" {
		return n.text
	}
	var sb strings.Builder
	for _, c := range n.children {
		if c.name == "selectKey" {
			continue
		}
		sb.WriteString(rawText(c))
	}
	return sb.String()
}

// flatten 不求值动态标签，取所有字面量片段的并集
func (m *mapper) flatten(n *node, st *flattenState) string {
	if n.name == "" {
		return n.text
	}
	children := func() string {
		var sb strings.Builder
		for _, c := range n.children {
			sb.WriteString(m.flatten(c, st))
			sb.WriteByte(' ')
		}
		return sb.String()
	}

	switch {
	case n.name == "selectKey", n.name == "bind", n.name == "property":
		return ""
	case n.name == "include":
		return m.include(n, st)
	case n.name == "where":
		st.dynamic = true
		return trim(children(), "WHERE ", "", []string{"AND ", "OR "}, nil)
	case n.name == "set":
		st.dynamic = true
		return trim(children(), "SET ", "", nil, []string{","})
	case n.name == "trim":
		st.dynamic = true
		return trim(children(), n.attr("prefix")+" ", " "+n.attr("suffix"),
			splitOverrides(n.attr("prefixOverrides")), splitOverrides(n.attr("suffixOverrides")))
	case n.name == "foreach":
		st.dynamic = true
		return n.attr("open") + children() + n.attr("close")
	case n.name == "if", n.name == "choose", n.name == "when", n.name == "otherwise":
		st.dynamic = true
		return children()
	case ibatisDynamic[n.name]:
		st.dynamic = true
		body := children()
		if n.name == "iterate" {
			body = n.attr("open") + body + n.attr("close")
		}
		return " " + n.attr("prepend") + " " + body
	default:
		return children()
	}
}

func (m *mapper) include(n *node, st *flattenState) string {
	ref := n.attr("refid")
	if ref == "" {
		return ""
	}
	local := ref
	if m.namespace != "" && strings.HasPrefix(ref, m.namespace+".") {
		local = strings.TrimPrefix(ref, m.namespace+".")
	}
	// 丢弃的片段让语句文本不完整，按动态内容降级
	frag, ok := m.fragments[local]
	if !ok {
		st.unresolved = append(st.unresolved, ref)
		st.dynamic = true
		return ""
	}
	if st.visiting[local] {
		st.dynamic = true
		return ""
	}
	st.visiting[local] = true
	defer delete(st.visiting, local)
	return m.flatten(frag, st)
}

func splitOverrides(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// trim 与 <trim> 语义相同：去掉首尾的 override 后加上前后缀
func trim(body, prefix, suffix string, prefixOverrides, suffixOverrides []string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	upper := strings.ToUpper(body)
	for _, o := range prefixOverrides {
		o = strings.TrimSpace(o)
		if strings.HasPrefix(upper, strings.ToUpper(o)) && wordBoundary(body, len(o)) {
			body = strings.TrimSpace(body[len(o):])
			break
		}
	}
	upper = strings.ToUpper(body)
	for _, o := range suffixOverrides {
		o = strings.TrimSpace(o)
		if strings.HasSuffix(upper, strings.ToUpper(o)) {
			body = strings.TrimSpace(body[:len(body)-len(o)])
			break
		}
	}
	return " " + strings.TrimSpace(prefix) + " " + body + " " + strings.TrimSpace(suffix) + " "
}

// wordBoundary body[i] 处是否为关键字结尾
func wordBoundary(body string, i int) bool {
	if i >= len(body) {
		return true
	}
	c := body[i]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '('
}

// normalizeParams #{x}/#x# 替换为 ?，$x$ 转成 ${x}；返回是否含动态拼接
func normalizeParams(s string) (string, bool) {
	s = mybatisParam.ReplaceAllString(s, "?")
	s = ibatisParam.ReplaceAllString(s, "?")
	dynamic := strings.Contains(s, "${") || ibatisLiteral.MatchString(s)
	s = ibatisLiteral.ReplaceAllString(s, "$${$1}")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " ")), dynamic
}
