package model

import (
	"strings"
	"time"
)

// Language 源文件语言
type Language string

const (
	LanguageJava    Language = "java"
	LanguageJSP     Language = "jsp"
	LanguageMyBatis Language = "mybatis"
	LanguageSQL     Language = "sql"
)

// Languages 所有已知语言（固定顺序）
var Languages = []Language{LanguageJava, LanguageJSP, LanguageMyBatis, LanguageSQL}

// File 源文件
type File struct {
	ID           string    `json:"id"`
	Project      string    `json:"project"`
	Path         string    `json:"path"` // 相对 source root，'/' 分隔
	Language     Language  `json:"language"`
	ContentHash  string    `json:"content_hash"`
	LineCount    int       `json:"line_count"`
	LastParsedAt time.Time `json:"last_parsed_at"`
}

// ClassKind 类型声明种类
type ClassKind string

const (
	ClassKindClass      ClassKind = "class"
	ClassKindInterface  ClassKind = "interface"
	ClassKindEnum       ClassKind = "enum"
	ClassKindAnnotation ClassKind = "annotation"
	ClassKindRecord     ClassKind = "record"
)

// ClassEntity 类/接口
type ClassEntity struct {
	ID          string     `json:"id"`
	FileID      string     `json:"file_id"`
	Name        string     `json:"name"` // 嵌套类型使用 Outer.Inner
	Package     string     `json:"package"`
	Kind        ClassKind  `json:"kind"`
	Extends     string     `json:"extends,omitempty"`
	Implements  []string   `json:"implements,omitempty"`
	Annotations []string   `json:"annotations,omitempty"`
	Modifiers   []string   `json:"modifiers,omitempty"`
	IsInterface bool       `json:"is_interface"`
	IsAbstract  bool       `json:"is_abstract"`
	Line        int        `json:"line"`
	Extraction  Extraction `json:"extraction"`
}

// QualifiedName 包名 + 类名
func (c *ClassEntity) QualifiedName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// Parameter 方法参数
type Parameter struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// MethodEntity 方法/构造器
type MethodEntity struct {
	ID            string      `json:"id"`
	ClassID       string      `json:"class_id"`
	ClassName     string      `json:"class_name"` // 所属类名，ID 分配前用于关联
	Name          string      `json:"name"`
	ReturnType    string      `json:"return_type,omitempty"`
	Parameters    []Parameter `json:"parameters,omitempty"`
	Modifiers     []string    `json:"modifiers,omitempty"`
	Annotations   []string    `json:"annotations,omitempty"`
	Throws        []string    `json:"throws,omitempty"`
	IsConstructor bool        `json:"is_constructor"`
	Line          int         `json:"line"`
	Extraction    Extraction  `json:"extraction"`
}

// Signature 参数类型签名，用于自然键
func (m *MethodEntity) Signature() string {
	types := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		types[i] = strings.ReplaceAll(p.Type, " ", "")
	}
	return "(" + strings.Join(types, ",") + ")"
}

// SourceKind SQL 来源
type SourceKind string

const (
	SourceInlineLiteral  SourceKind = "inline-literal"
	SourceStringBuilder  SourceKind = "string-builder"
	SourceMyBatisElement SourceKind = "mybatis-element"
	SourceRawSQLFile     SourceKind = "raw-sql-file"
)

// StatementType SQL 语句类型
type StatementType string

const (
	StatementSelect   StatementType = "SELECT"
	StatementInsert   StatementType = "INSERT"
	StatementUpdate   StatementType = "UPDATE"
	StatementDelete   StatementType = "DELETE"
	StatementMerge    StatementType = "MERGE"
	StatementCreate   StatementType = "CREATE"
	StatementAlter    StatementType = "ALTER"
	StatementDrop     StatementType = "DROP"
	StatementTruncate StatementType = "TRUNCATE"
	StatementCall     StatementType = "CALL"
	StatementUnknown  StatementType = "UNKNOWN"
)

// TableRef SQL 中出现的表引用（未对照目录）
type TableRef struct {
	Owner string `json:"owner,omitempty"`
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Write bool   `json:"write,omitempty"` // INSERT/UPDATE/DELETE/MERGE 目标
}

// Qualified owner.name 或 name
func (t TableRef) Qualified() string {
	if t.Owner == "" {
		return t.Name
	}
	return t.Owner + "." + t.Name
}

// ColumnRef 已做别名解析的列引用
type ColumnRef struct {
	Table  string `json:"table"` // 书写形式的 [owner.]table，未知时为空
	Column string `json:"column"`
}

// JoinKind 连接证据类别
type JoinKind string

const (
	JoinExplicit JoinKind = "explicit" // JOIN ... ON / USING
	JoinImplicit JoinKind = "implicit" // FROM a, b WHERE a.x = b.y
)

// JoinTriple 单条连接谓词，表名为别名解析后的书写形式
type JoinTriple struct {
	LeftTable   string   `json:"left_table"`
	LeftColumn  string   `json:"left_column"`
	RightTable  string   `json:"right_table"`
	RightColumn string   `json:"right_column"`
	Kind        JoinKind `json:"kind"`
	JoinType    string   `json:"join_type"` // INNER/LEFT/RIGHT/FULL
}

// SQLUnit 一条提取出的 SQL 语句及其来源
type SQLUnit struct {
	ID                string        `json:"id"`
	FileID            string        `json:"file_id"`
	StatementKey      string        `json:"statement_key"` // mapper 的 namespace.id，或位置序号
	SourceKind        SourceKind    `json:"source_kind"`
	StatementType     StatementType `json:"statement_type"`
	RawText           string        `json:"raw_text"`
	ResolvedText      string        `json:"resolved_text"`
	HasDynamicContent bool          `json:"has_dynamic_content"`
	ParseConfidence   float64       `json:"parse_confidence"`
	Line              int           `json:"line"`
	MethodName        string        `json:"method_name,omitempty"` // Class#method(sig)，Java 来源
	Tables            []TableRef    `json:"tables,omitempty"`
	Columns           []ColumnRef   `json:"columns,omitempty"`
	Joins             []JoinTriple  `json:"joins,omitempty"`
	Diagnostics       []Diagnostic  `json:"diagnostics,omitempty"`
}

// DbTable 数据库表
type DbTable struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Name       string     `json:"name"`
	Status     string     `json:"status,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Columns    []DbColumn `json:"columns,omitempty"`
	PrimaryKey []string   `json:"primary_key,omitempty"` // 有序
}

// Qualified OWNER.NAME
func (t *DbTable) Qualified() string {
	return t.Owner + "." + t.Name
}

// DbColumn 数据库列
type DbColumn struct {
	ID       string `json:"id"`
	TableID  string `json:"table_id"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment,omitempty"`
	Position int    `json:"position"`
}

// PrimaryKeyColumn db_pk 行
type PrimaryKeyColumn struct {
	Owner    string `json:"owner"`
	Table    string `json:"table"`
	Column   string `json:"column"`
	Position int    `json:"position"`
}

// Evidence 置信度构成
type Evidence struct {
	Type   string  `json:"type"` // explicit_join/implicit_join/fk_naming/primary_key
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// Join 推断的连接边
type Join struct {
	ID              string     `json:"id"`
	Project         string     `json:"project"`
	LeftTable       string     `json:"left_table"` // OWNER.TABLE
	LeftColumn      string     `json:"left_column"`
	RightTable      string     `json:"right_table"`
	RightColumn     string     `json:"right_column"`
	SourceSQLUnitID string     `json:"source_sql_unit_id"`
	Confidence      float64    `json:"confidence"`
	InferredPKFK    bool       `json:"inferred_pkfk"`
	Kind            JoinKind   `json:"kind"`
	JoinType        string     `json:"join_type"`
	Occurrences     int        `json:"occurrences"`
	Evidence        []Evidence `json:"evidence,omitempty"`
}

// Edge 通用关系边
type Edge struct {
	SrcType  string            `json:"src_type"`
	SrcID    string            `json:"src_id"`
	DstType  string            `json:"dst_type"`
	DstID    string            `json:"dst_id"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// 边端点类型
const (
	NodeFile      = "file"
	NodeClass     = "class"
	NodeMethod    = "method"
	NodeSQLUnit   = "sql_unit"
	NodeDbTable   = "db_table"
	NodeTypeName  = "type_name"  // 未解析的 Java 类型名
	NodeImport    = "import"     // import 语句
	NodePath      = "path"       // JSP include 的目标路径
	NodeTableName = "table_name" // 目录中不存在的表名
)

// 边种类
const (
	EdgeDeclares   = "declares"
	EdgeEmbeds     = "embeds"
	EdgeExtends    = "extends"
	EdgeImplements = "implements"
	EdgeImports    = "imports"
	EdgeIncludes   = "includes"
	EdgeMapsTo     = "maps_to"
	EdgeContains   = "contains"
	EdgeReads      = "reads"
	EdgeWrites     = "writes"
	EdgeLooksUp    = "looks_up" // db_table -> 码表
)

// FileExtraction 单个文件的完整提取结果，按文件原子提交
type FileExtraction struct {
	File        File
	Package     string
	Imports     []string
	Classes     []ClassEntity
	Methods     []MethodEntity
	SQLUnits    []SQLUnit
	Edges       []Edge
	Diagnostics []Diagnostic
}
