package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"schema-miner/internal/config"
	"schema-miner/internal/model"
)

// ErrNoSource 未配置任何目录来源
var ErrNoSource = errors.New("no catalog source configured")

// Source 数据库目录来源
type Source interface {
	// Name 来源描述，用于日志
	Name() string

	// Load 读取表、列与主键
	Load(ctx context.Context) ([]model.DbTable, error)

	// Close 释放连接
	Close() error
}

// Open 按配置选择来源：配置了 DSN 时直接读取数据库，否则读取 CSV 导出
func Open(ctx context.Context, cfg config.CatalogConfig, baseDir string) (Source, error) {
	if cfg.DSN != "" {
		switch cfg.Driver {
		case "mysql":
			return NewMySQLSource(ctx, cfg.DSN, cfg.Schema)
		case "sqlserver":
			return NewSQLServerSource(ctx, cfg.DSN, cfg.Schema)
		default:
			return nil, fmt.Errorf("%w: catalog dsn set without a supported driver", config.ErrInvalidConfig)
		}
	}
	if cfg.TablesCSV == "" && cfg.ColumnsCSV == "" && cfg.PrimaryCSV == "" {
		return nil, ErrNoSource
	}
	return &CSVSource{
		TablesPath:   config.ResolvePath(baseDir, cfg.TablesCSV),
		ColumnsPath:  config.ResolvePath(baseDir, cfg.ColumnsCSV),
		PKPath:       config.ResolvePath(baseDir, cfg.PrimaryCSV),
		DefaultOwner: cfg.DefaultOwner,
	}, nil
}

// builder 逐行收集表、列与主键后组装为 []model.DbTable
type builder struct {
	defaultOwner string
	tables       map[string]*model.DbTable
	pk           map[string][]pkEntry
}

type pkEntry struct {
	column   string
	position int
}

func newBuilder(defaultOwner string) *builder {
	return &builder{
		defaultOwner: strings.ToUpper(strings.TrimSpace(defaultOwner)),
		tables:       make(map[string]*model.DbTable),
		pk:           make(map[string][]pkEntry),
	}
}

func (b *builder) table(owner, name string) *model.DbTable {
	owner = strings.ToUpper(strings.TrimSpace(owner))
	if owner == "" {
		owner = b.defaultOwner
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	key := owner + "." + name
	t, ok := b.tables[key]
	if !ok {
		t = &model.DbTable{Owner: owner, Name: name}
		b.tables[key] = t
	}
	return t
}

// column 同名列（不区分大小写）合并为一条，先出现的值优先
func (b *builder) column(owner, table string, col model.DbColumn) {
	t := b.table(owner, table)
	col.Name = strings.ToUpper(strings.TrimSpace(col.Name))
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Name != col.Name {
			continue
		}
		if c.DataType == "" {
			c.DataType = col.DataType
		}
		if c.Comment == "" {
			c.Comment = col.Comment
		}
		if c.Position == 0 {
			c.Position = col.Position
		}
		return
	}
	t.Columns = append(t.Columns, col)
}

// primaryKey 重复的主键列只保留位置最小的一条
func (b *builder) primaryKey(owner, table, column string, position int) {
	t := b.table(owner, table)
	key := t.Qualified()
	column = strings.ToUpper(strings.TrimSpace(column))
	for i, e := range b.pk[key] {
		if e.column == column {
			if position < e.position {
				b.pk[key][i].position = position
			}
			return
		}
	}
	b.pk[key] = append(b.pk[key], pkEntry{column: column, position: position})
}

// build 输出按 OWNER.NAME 排序；主键按位置排序
func (b *builder) build() []model.DbTable {
	out := make([]model.DbTable, 0, len(b.tables))
	for key, t := range b.tables {
		entries := b.pk[key]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].position < entries[j].position })
		t.PrimaryKey = t.PrimaryKey[:0]
		for _, e := range entries {
			t.PrimaryKey = append(t.PrimaryKey, e.column)
		}
		sort.SliceStable(t.Columns, func(i, j int) bool { return t.Columns[i].Position < t.Columns[j].Position })
		t.ID = model.TableID(t.Owner, t.Name)
		for i := range t.Columns {
			t.Columns[i].TableID = t.ID
			t.Columns[i].ID = model.ColumnID(t.ID, t.Columns[i].Name)
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Qualified() < out[j].Qualified() })
	return out
}
