package adapter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"schema-miner/internal/model"
)

// ErrMissingColumn CSV 缺少必需的表头
var ErrMissingColumn = errors.New("required csv column missing")

// CSVSource 读取目录导出（ALL_TABLES / ALL_TAB_COLUMNS / 主键约束）
type CSVSource struct {
	TablesPath   string
	ColumnsPath  string
	PKPath       string
	DefaultOwner string
}

// Name 实现 Source
func (s *CSVSource) Name() string { return "csv" }

// Close 实现 Source
func (s *CSVSource) Close() error { return nil }

// Load 三个文件均可缺省；表头不区分大小写
func (s *CSVSource) Load(ctx context.Context) ([]model.DbTable, error) {
	b := newBuilder(s.DefaultOwner)

	if s.TablesPath != "" {
		err := readCSV(ctx, s.TablesPath, []string{"TABLE_NAME"}, func(r row) error {
			t := b.table(r.get("OWNER"), r.get("TABLE_NAME"))
			t.Status = r.get("STATUS")
			t.Comment = r.get("COMMENTS")
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if s.ColumnsPath != "" {
		err := readCSV(ctx, s.ColumnsPath, []string{"TABLE_NAME", "COLUMN_NAME"}, func(r row) error {
			b.column(r.get("OWNER"), r.get("TABLE_NAME"), model.DbColumn{
				Name:     r.get("COLUMN_NAME"),
				DataType: r.get("DATA_TYPE"),
				Nullable: parseNullable(r.get("NULLABLE")),
				Comment:  r.get("COMMENTS"),
				Position: r.number("COLUMN_ID"),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if s.PKPath != "" {
		err := readCSV(ctx, s.PKPath, []string{"TABLE_NAME", "COLUMN_NAME"}, func(r row) error {
			b.primaryKey(r.get("OWNER"), r.get("TABLE_NAME"), r.get("COLUMN_NAME"), r.number("POSITION"))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return b.build(), nil
}

// parseNullable Y/N、YES/NO、1/0；缺省视为可空
func parseNullable(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "N", "NO", "0", "FALSE", "NOT NULL":
		return false
	default:
		return true
	}
}

type row struct {
	header map[string]int
	values []string
}

func (r row) get(name string) string {
	i, ok := r.header[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (r row) number(name string) int {
	n, err := strconv.Atoi(r.get(name))
	if err != nil {
		return 0
	}
	return n
}

func readCSV(ctx context.Context, path string, required []string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	names, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(names))
	for i, n := range names {
		n = strings.TrimPrefix(n, "\ufeff")
		header[strings.ToUpper(strings.TrimSpace(n))] = i
	}
	for _, req := range required {
		if _, ok := header[req]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrMissingColumn, req, path)
		}
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		rw := row{header: header, values: values}
		if rw.get("TABLE_NAME") == "" {
			continue
		}
		if err := fn(rw); err != nil {
			return err
		}
	}
}
