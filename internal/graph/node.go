package graph

// NodeType 节点类型
type NodeType string

const (
	NodeTypeTable  NodeType = "table"
	NodeTypeColumn NodeType = "column"
)

// Node 图节点
//
// 表节点属性：owner, comment, lookup
// 列节点属性：table, data_type, nullable, is_primary_key, position
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// String 读取字符串属性
func (n *Node) String(key string) string {
	v, _ := n.Properties[key].(string)
	return v
}

// Bool 读取布尔属性
func (n *Node) Bool(key string) bool {
	v, _ := n.Properties[key].(bool)
	return v
}

// Int 读取整数属性
func (n *Node) Int(key string) int {
	v, _ := n.Properties[key].(int)
	return v
}
