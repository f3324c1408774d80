package model

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// idNamespace 所有确定性 ID 的命名空间
var idNamespace = uuid.MustParse("6f1d7c0a-3b9e-5d4f-9a61-2c8e0b7d4a13")

// StableID 由自然键生成确定性 ID（UUIDv5）
func StableID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// FileID 文件 ID
func FileID(project, path string) string {
	return StableID("file", project, path)
}

// ClassID 类 ID
func ClassID(fileID, name string) string {
	return StableID("class", fileID, name)
}

// MethodID 方法 ID
func MethodID(classID, name, signature string) string {
	return StableID("method", classID, name, signature)
}

// SQLUnitID SQL 单元 ID
func SQLUnitID(fileID, statementKey string) string {
	return StableID("sql", fileID, statementKey)
}

// TableID 表 ID，owner/name 不区分大小写
func TableID(owner, name string) string {
	return StableID("table", strings.ToUpper(owner), strings.ToUpper(name))
}

// ColumnID 列 ID
func ColumnID(tableID, name string) string {
	return StableID("column", tableID, strings.ToUpper(name))
}

// JoinID 连接边 ID，左右顺序无关
func JoinID(project, leftTable, leftColumn, rightTable, rightColumn string) string {
	a := strings.ToUpper(leftTable + "." + leftColumn)
	b := strings.ToUpper(rightTable + "." + rightColumn)
	if b < a {
		a, b = b, a
	}
	return StableID("join", project, a, b)
}

// MethodRef Class#name(sig)，SQLUnit.MethodName 的格式
func MethodRef(className, name, signature string) string {
	return className + "#" + name + signature
}

// Finalize 分配确定性 ID、按自然键去重并补齐结构边
//
// 自然键冲突时保留置信度较高者，相同则保留后出现者，并记录诊断。
func Finalize(project string, fx *FileExtraction) {
	f := &fx.File
	f.Project = project
	f.ID = FileID(project, f.Path)

	fx.Classes = dedupeClasses(fx)
	classIDs := make(map[string]string, len(fx.Classes))
	for i := range fx.Classes {
		c := &fx.Classes[i]
		c.FileID = f.ID
		c.ID = ClassID(f.ID, c.Name)
		classIDs[c.Name] = c.ID
	}

	methods := fx.Methods[:0]
	for _, m := range fx.Methods {
		classID, ok := classIDs[m.ClassName]
		if !ok {
			fx.Diagnostics = append(fx.Diagnostics, Warn(ScopeParse, f.Path, CodeParseError,
				"method %s dropped: owner class %q not extracted", m.Name, m.ClassName))
			continue
		}
		m.ClassID = classID
		m.ID = MethodID(classID, m.Name, m.Signature())
		methods = append(methods, m)
	}
	fx.Methods = dedupeMethods(fx, methods)
	methodIDs := make(map[string]string, len(fx.Methods))
	for _, m := range fx.Methods {
		methodIDs[MethodRef(m.ClassName, m.Name, m.Signature())] = m.ID
	}

	fx.SQLUnits = dedupeSQLUnits(fx)
	for i := range fx.SQLUnits {
		u := &fx.SQLUnits[i]
		u.FileID = f.ID
		u.ID = SQLUnitID(f.ID, u.StatementKey)
		for j := range u.Diagnostics {
			u.Diagnostics[j].Subject = u.ID
			if u.Diagnostics[j].Path == "" {
				u.Diagnostics[j].Path = f.Path
			}
		}
	}

	fx.Edges = structuralEdges(fx, classIDs, methodIDs)
}

func dedupeClasses(fx *FileExtraction) []ClassEntity {
	idx := make(map[string]int)
	var out []ClassEntity
	for _, c := range fx.Classes {
		if i, ok := idx[c.Name]; ok {
			fx.Diagnostics = append(fx.Diagnostics, collision(fx.File.Path, "class "+c.Name, c.Line))
			if c.Extraction.Confidence >= out[i].Extraction.Confidence {
				out[i] = c
			}
			continue
		}
		idx[c.Name] = len(out)
		out = append(out, c)
	}
	return out
}

func dedupeMethods(fx *FileExtraction, methods []MethodEntity) []MethodEntity {
	idx := make(map[string]int)
	var out []MethodEntity
	for _, m := range methods {
		if i, ok := idx[m.ID]; ok {
			fx.Diagnostics = append(fx.Diagnostics,
				collision(fx.File.Path, "method "+MethodRef(m.ClassName, m.Name, m.Signature()), m.Line))
			if m.Extraction.Confidence >= out[i].Extraction.Confidence {
				out[i] = m
			}
			continue
		}
		idx[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

func dedupeSQLUnits(fx *FileExtraction) []SQLUnit {
	idx := make(map[string]int)
	var out []SQLUnit
	for _, u := range fx.SQLUnits {
		if i, ok := idx[u.StatementKey]; ok {
			fx.Diagnostics = append(fx.Diagnostics, collision(fx.File.Path, "statement "+u.StatementKey, u.Line))
			if u.ParseConfidence >= out[i].ParseConfidence {
				out[i] = u
			}
			continue
		}
		idx[u.StatementKey] = len(out)
		out = append(out, u)
	}
	return out
}

func collision(path, what string, line int) Diagnostic {
	d := Warn(ScopeParse, path, CodeKeyCollision, "duplicate natural key for %s", what)
	d.Line = line
	return d
}

func structuralEdges(fx *FileExtraction, classIDs, methodIDs map[string]string) []Edge {
	fileID := fx.File.ID
	var edges []Edge
	add := func(e Edge) {
		edges = append(edges, e)
	}

	for _, imp := range fx.Imports {
		add(Edge{SrcType: NodeFile, SrcID: fileID, DstType: NodeImport, DstID: imp, Kind: EdgeImports})
	}
	for _, c := range fx.Classes {
		add(Edge{SrcType: NodeFile, SrcID: fileID, DstType: NodeClass, DstID: c.ID, Kind: EdgeDeclares})
		if c.Extends != "" {
			add(Edge{SrcType: NodeClass, SrcID: c.ID, DstType: NodeTypeName, DstID: c.Extends, Kind: EdgeExtends})
		}
		for _, iface := range c.Implements {
			add(Edge{SrcType: NodeClass, SrcID: c.ID, DstType: NodeTypeName, DstID: iface, Kind: EdgeImplements})
		}
	}
	for _, m := range fx.Methods {
		add(Edge{SrcType: NodeClass, SrcID: m.ClassID, DstType: NodeMethod, DstID: m.ID, Kind: EdgeDeclares})
	}
	for _, u := range fx.SQLUnits {
		if id, ok := methodIDs[u.MethodName]; ok {
			add(Edge{SrcType: NodeMethod, SrcID: id, DstType: NodeSQLUnit, DstID: u.ID, Kind: EdgeEmbeds})
		} else {
			add(Edge{SrcType: NodeFile, SrcID: fileID, DstType: NodeSQLUnit, DstID: u.ID, Kind: EdgeContains})
		}
	}
	// 解析器提供的边：SrcID 为空表示当前文件
	for _, e := range fx.Edges {
		if e.SrcID == "" {
			e.SrcType = NodeFile
			e.SrcID = fileID
		}
		if e.SrcType == NodeClass {
			if id, ok := classIDs[e.SrcID]; ok {
				e.SrcID = id
			}
		}
		add(e)
	}
	return DedupeEdges(edges)
}

// DedupeEdges 按 (src, dst, kind) 去重并排序
func DedupeEdges(edges []Edge) []Edge {
	seen := make(map[string]int, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		k := e.Key()
		if i, ok := seen[k]; ok {
			// 后出现者的元数据覆盖
			if len(e.Metadata) > 0 {
				out[i].Metadata = e.Metadata
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Key 边的自然键
func (e Edge) Key() string {
	return strings.Join([]string{e.SrcType, e.SrcID, e.Kind, e.DstType, e.DstID}, "\x1f")
}
