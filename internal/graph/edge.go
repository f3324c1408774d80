package graph

import "schema-miner/internal/model"

// EdgeType 边类型
type EdgeType string

const (
	EdgeTypeFK         EdgeType = "foreign_key"    // DDL 声明的外键
	EdgeTypeInferredFK EdgeType = "inferred_fk"    // 命名启发式确认的外键
	EdgeTypeJoin       EdgeType = "join"           // 仅由连接共现得出
	EdgeTypeEnum       EdgeType = "enum_reference" // 引用码表
)

// Edge 图的边，From 为引用方列，To 为被引用方列
type Edge struct {
	ID         string           `json:"id"`
	Type       EdgeType         `json:"type"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	Confidence float64          `json:"confidence"`
	Evidence   []model.Evidence `json:"evidence"`
	Properties map[string]any   `json:"properties"`
}
