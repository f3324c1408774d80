package renderer

import (
	"fmt"
	"regexp"
	"strings"

	"schema-miner/internal/graph"
)

var (
	entityName = regexp.MustCompile(`[^A-Za-z0-9_]`)
	typeArgs   = regexp.MustCompile(`\(.*\)`)
)

// MermaidRenderer Mermaid ER 图渲染器
type MermaidRenderer struct{}

// NewMermaidRenderer 创建渲染器
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Render 渲染为 Mermaid 格式，输出顺序确定
func (m *MermaidRenderer) Render(g *graph.SchemaGraph) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	columns := make(map[string][]string)
	for _, node := range g.SortedNodes(graph.NodeTypeColumn) {
		dataType := mermaidType(node.String("data_type"))
		key := ""
		if node.Bool("is_primary_key") {
			key = " PK"
		}
		table := node.String("table")
		columns[table] = append(columns[table], fmt.Sprintf("        %s %s%s", dataType, entity(node.Name), key))
	}

	for _, node := range g.SortedNodes(graph.NodeTypeTable) {
		sb.WriteString(fmt.Sprintf("    %s {\n", entity(node.Name)))
		for _, col := range columns[node.ID] {
			sb.WriteString(col + "\n")
		}
		sb.WriteString("    }\n")
	}

	sb.WriteString("\n")

	for _, edge := range g.SortedEdges() {
		fromTable, _ := edge.Properties["from_table"].(string)
		toTable, _ := edge.Properties["to_table"].(string)
		if g.GetNode(fromTable) == nil || g.GetNode(toTable) == nil {
			continue
		}

		relType := "||..o{" // 虚线表示推断关系
		if edge.Type == graph.EdgeTypeFK {
			relType = "||--o{"
		}
		label := fmt.Sprintf("\"%s %.2f\"", edge.Properties["from_column"], edge.Confidence)
		sb.WriteString(fmt.Sprintf("    %s %s %s : %s\n",
			entity(toTable), relType, entity(fromTable), label))
	}

	return sb.String()
}

// entity Mermaid 实体名只允许字母数字下划线
func entity(name string) string {
	return entityName.ReplaceAllString(name, "_")
}

func mermaidType(t string) string {
	t = strings.TrimSpace(typeArgs.ReplaceAllString(t, ""))
	if t == "" {
		return "unknown"
	}
	return entity(strings.ReplaceAll(t, " ", "_"))
}
