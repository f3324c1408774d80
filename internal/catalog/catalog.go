package catalog

import (
	"sort"
	"strings"

	"schema-miner/internal/model"
)

// Resolution 表名解析结果
type Resolution int

const (
	Found Resolution = iota
	NotFound
	Ambiguous
)

func (r Resolution) String() string {
	switch r {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Catalog 数据库目录快照，所有查找不区分大小写
type Catalog struct {
	defaultOwner string
	tables       map[string]*model.DbTable   // OWNER.NAME
	byName       map[string][]*model.DbTable // NAME
	columns      map[string]map[string]*model.DbColumn
	pk           map[string]map[string]int // table ID -> COLUMN -> 位置
	ordered      []*model.DbTable
}

// New 由表列表构造目录；owner/name 统一为大写，ID 按自然键补齐
func New(defaultOwner string, tables []model.DbTable) *Catalog {
	c := &Catalog{
		defaultOwner: strings.ToUpper(strings.TrimSpace(defaultOwner)),
		tables:       make(map[string]*model.DbTable, len(tables)),
		byName:       make(map[string][]*model.DbTable),
		columns:      make(map[string]map[string]*model.DbColumn, len(tables)),
		pk:           make(map[string]map[string]int, len(tables)),
	}
	for i := range tables {
		t := tables[i]
		t.Columns = append([]model.DbColumn(nil), t.Columns...)
		t.PrimaryKey = append([]string(nil), t.PrimaryKey...)
		Normalize(&t, c.defaultOwner)
		key := t.Qualified()
		if prev, ok := c.tables[key]; ok {
			// 同名表合并列
			mergeTable(prev, &t)
			continue
		}
		c.tables[key] = &t
		c.byName[t.Name] = append(c.byName[t.Name], &t)
		c.ordered = append(c.ordered, &t)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Qualified() < c.ordered[j].Qualified() })
	for _, t := range c.ordered {
		c.index(t)
	}
	return c
}

// Normalize 统一大小写、补齐 ID，列按位置排序
func Normalize(t *model.DbTable, defaultOwner string) {
	t.Owner = normalizeName(t.Owner)
	if t.Owner == "" {
		t.Owner = strings.ToUpper(defaultOwner)
	}
	t.Name = normalizeName(t.Name)
	t.ID = model.TableID(t.Owner, t.Name)
	for i := range t.Columns {
		col := &t.Columns[i]
		col.Name = normalizeName(col.Name)
		col.TableID = t.ID
		col.ID = model.ColumnID(t.ID, col.Name)
		if col.Position == 0 {
			col.Position = i + 1
		}
	}
	sort.SliceStable(t.Columns, func(i, j int) bool { return t.Columns[i].Position < t.Columns[j].Position })
	for i := range t.PrimaryKey {
		t.PrimaryKey[i] = normalizeName(t.PrimaryKey[i])
	}
}

func mergeTable(dst, src *model.DbTable) {
	have := make(map[string]bool, len(dst.Columns))
	for _, col := range dst.Columns {
		have[col.Name] = true
	}
	for _, col := range src.Columns {
		if !have[col.Name] {
			dst.Columns = append(dst.Columns, col)
		}
	}
	if len(dst.PrimaryKey) == 0 {
		dst.PrimaryKey = src.PrimaryKey
	}
	if dst.Comment == "" {
		dst.Comment = src.Comment
	}
	if dst.Status == "" {
		dst.Status = src.Status
	}
}

func (c *Catalog) index(t *model.DbTable) {
	cols := make(map[string]*model.DbColumn, len(t.Columns))
	for i := range t.Columns {
		cols[t.Columns[i].Name] = &t.Columns[i]
	}
	c.columns[t.ID] = cols
	pk := make(map[string]int, len(t.PrimaryKey))
	for i, name := range t.PrimaryKey {
		pk[name] = i + 1
	}
	c.pk[t.ID] = pk
}

// normalizeName 去掉引号/方括号并转大写
func normalizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"`[]")
	return strings.ToUpper(s)
}

// DefaultOwner 默认 owner
func (c *Catalog) DefaultOwner() string {
	return c.defaultOwner
}

// Len 表数量
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// Tables 按 OWNER.NAME 排序的全部表
func (c *Catalog) Tables() []*model.DbTable {
	return c.ordered
}

// Table 按完整 OWNER.NAME 查找
func (c *Catalog) Table(qualified string) (*model.DbTable, bool) {
	t, ok := c.tables[strings.ToUpper(qualified)]
	return t, ok
}

// Resolve 解析书写形式的 [owner.]name[@dblink]
//
// 裸表名先按默认 owner 查找，再按唯一表名查找；多个 owner 下同名时为 Ambiguous。
func (c *Catalog) Resolve(written string) (*model.DbTable, Resolution) {
	if at := strings.IndexByte(written, '@'); at >= 0 {
		written = written[:at]
	}
	parts := strings.Split(written, ".")
	for i := range parts {
		parts[i] = normalizeName(parts[i])
	}
	name := parts[len(parts)-1]
	if name == "" {
		return nil, NotFound
	}
	if len(parts) > 1 {
		// 只取最后两段：db.owner.table 按 owner.table 处理
		owner := parts[len(parts)-2]
		if t, ok := c.tables[owner+"."+name]; ok {
			return t, Found
		}
		return nil, NotFound
	}
	if c.defaultOwner != "" {
		if t, ok := c.tables[c.defaultOwner+"."+name]; ok {
			return t, Found
		}
	}
	switch candidates := c.byName[name]; len(candidates) {
	case 0:
		return nil, NotFound
	case 1:
		return candidates[0], Found
	default:
		return nil, Ambiguous
	}
}

// Column 表中的列
func (c *Catalog) Column(t *model.DbTable, name string) (*model.DbColumn, bool) {
	col, ok := c.columns[t.ID][normalizeName(name)]
	return col, ok
}

// IsPrimaryKey 列是否属于主键
func (c *Catalog) IsPrimaryKey(t *model.DbTable, column string) bool {
	_, ok := c.pk[t.ID][normalizeName(column)]
	return ok
}

// HasSinglePrimaryKey 主键为单列 column
func (c *Catalog) HasSinglePrimaryKey(t *model.DbTable, column string) bool {
	return len(t.PrimaryKey) == 1 && c.IsPrimaryKey(t, column)
}

// PrimaryKeys 全部主键列，按表与位置排序
func (c *Catalog) PrimaryKeys() []model.PrimaryKeyColumn {
	var out []model.PrimaryKeyColumn
	for _, t := range c.ordered {
		for i, col := range t.PrimaryKey {
			out = append(out, model.PrimaryKeyColumn{Owner: t.Owner, Table: t.Name, Column: col, Position: i + 1})
		}
	}
	return out
}
