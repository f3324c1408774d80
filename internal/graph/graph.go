package graph

import (
	"encoding/json"
	"sort"
	"sync"

	"schema-miner/internal/analyzer"
	"schema-miner/internal/model"
)

// SchemaGraph 数据库结构图
type SchemaGraph struct {
	mu    sync.RWMutex
	Nodes map[string]*Node `json:"nodes"`
	Edges map[string]*Edge `json:"edges"`
}

// NewSchemaGraph 创建新图
func NewSchemaGraph() *SchemaGraph {
	return &SchemaGraph{
		Nodes: make(map[string]*Node),
		Edges: make(map[string]*Edge),
	}
}

// AddNode 添加节点
func (g *SchemaGraph) AddNode(node *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Nodes[node.ID] = node
}

// AddEdge 添加边
func (g *SchemaGraph) AddEdge(edge *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Edges[edge.ID] = edge
}

// GetNode 获取节点
func (g *SchemaGraph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Nodes[id]
}

// SortedNodes 按类型与 ID 排序的节点
func (g *SchemaGraph) SortedNodes(typ NodeType) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type == NodeTypeColumn && out[i].String("table") != out[j].String("table") {
			return out[i].String("table") < out[j].String("table")
		}
		if pi, pj := out[i].Int("position"), out[j].Int("position"); pi != pj {
			return pi < pj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortedEdges 按 From/To 排序的边
func (g *SchemaGraph) SortedEdges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// ToJSON 导出为JSON
func (g *SchemaGraph) ToJSON() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return json.MarshalIndent(g, "", "  ")
}

// BuildOptions 构图选项
type BuildOptions struct {
	MinConfidence float64 // 低于该置信度的连接不画
	OnlyJoined    bool    // 只包含参与连接的表
}

// Build 由目录与推断结果构图；列节点只保留主键列和参与连接的列
func Build(tables []model.DbTable, joins []model.Join, lookups []analyzer.LookupTable, opts BuildOptions) *SchemaGraph {
	g := NewSchemaGraph()

	lookup := make(map[string]bool, len(lookups))
	for _, l := range lookups {
		lookup[l.Table] = true
	}

	kept := joins[:0:0]
	joined := make(map[string]bool)
	joinedCols := make(map[string]bool)
	for _, j := range joins {
		if j.Confidence < opts.MinConfidence {
			continue
		}
		kept = append(kept, j)
		joined[j.LeftTable] = true
		joined[j.RightTable] = true
		joinedCols[j.LeftTable+"."+j.LeftColumn] = true
		joinedCols[j.RightTable+"."+j.RightColumn] = true
	}

	for _, t := range tables {
		name := t.Qualified()
		if opts.OnlyJoined && !joined[name] {
			continue
		}
		g.AddNode(&Node{
			ID:   name,
			Type: NodeTypeTable,
			Name: name,
			Properties: map[string]any{
				"owner":   t.Owner,
				"comment": t.Comment,
				"lookup":  lookup[name],
			},
		})
		pk := make(map[string]bool, len(t.PrimaryKey))
		for _, c := range t.PrimaryKey {
			pk[c] = true
		}
		for _, c := range t.Columns {
			id := name + "." + c.Name
			if !pk[c.Name] && !joinedCols[id] {
				continue
			}
			g.AddNode(&Node{
				ID:   id,
				Type: NodeTypeColumn,
				Name: c.Name,
				Properties: map[string]any{
					"table":          name,
					"data_type":      c.DataType,
					"nullable":       c.Nullable,
					"is_primary_key": pk[c.Name],
					"position":       c.Position,
				},
			})
		}
	}

	for _, j := range kept {
		typ := EdgeTypeJoin
		switch {
		case j.JoinType == analyzer.JoinTypeDeclared:
			typ = EdgeTypeFK
		case lookup[j.LeftTable]:
			typ = EdgeTypeEnum
		case j.InferredPKFK:
			typ = EdgeTypeInferredFK
		}
		g.AddEdge(&Edge{
			ID:         j.ID,
			Type:       typ,
			From:       j.RightTable + "." + j.RightColumn,
			To:         j.LeftTable + "." + j.LeftColumn,
			Confidence: j.Confidence,
			Evidence:   j.Evidence,
			Properties: map[string]any{
				"from_table":  j.RightTable,
				"from_column": j.RightColumn,
				"to_table":    j.LeftTable,
				"to_column":   j.LeftColumn,
				"occurrences": j.Occurrences,
				"join_type":   j.JoinType,
			},
		})
	}
	return g
}
