package analyzer

import (
	"math"
	"sort"
	"strings"

	"schema-miner/internal/catalog"
	"schema-miner/internal/model"
)

// LookupTable 码表/枚举表
type LookupTable struct {
	Table        string   `json:"table"` // OWNER.NAME
	TableID      string   `json:"table_id"`
	KeyColumn    string   `json:"key_column"`
	ValueColumn  string   `json:"value_column,omitempty"`
	Confidence   float64  `json:"confidence"`
	ReferencedBy []string `json:"referenced_by,omitempty"` // 引用它的表
}

var (
	lookupKeyPatterns   = []string{"CODE", "_CD", "ID", "KEY", "TYPE"}
	lookupValuePatterns = []string{"NAME", "_NM", "LABEL", "DESC", "VALUE", "TEXT"}
	lookupNamePatterns  = []string{"CODE", "_CD", "TYPE", "LOOKUP", "ENUM", "DICT", "STATUS"}
)

// lookupThreshold 低于该置信度的候选不输出
const lookupThreshold = 0.6

// DetectLookupTables 根据目录结构与连接扇入识别码表
//
// 只有作为连接被引用方（左侧）出现过的表才是候选。
func DetectLookupTables(cat *catalog.Catalog, joins []model.Join) []LookupTable {
	fanIn := make(map[string]map[string]bool)
	keyCols := make(map[string]string)
	for _, j := range joins {
		if j.LeftTable == j.RightTable {
			continue
		}
		if fanIn[j.LeftTable] == nil {
			fanIn[j.LeftTable] = make(map[string]bool)
		}
		fanIn[j.LeftTable][j.RightTable] = true
		if _, ok := keyCols[j.LeftTable]; !ok {
			keyCols[j.LeftTable] = j.LeftColumn
		}
	}

	var out []LookupTable
	for name, refs := range fanIn {
		t, ok := cat.Table(name)
		if !ok {
			continue
		}
		keyCol, valueCol := findLookupColumns(t.Columns)
		if keyCol == "" {
			keyCol = keyCols[name]
		}
		confidence := lookupConfidence(t, len(refs), keyCol, valueCol)
		if confidence <= lookupThreshold {
			continue
		}
		lt := LookupTable{
			Table:       t.Qualified(),
			TableID:     t.ID,
			KeyColumn:   keyCol,
			ValueColumn: valueCol,
			Confidence:  confidence,
		}
		for ref := range refs {
			lt.ReferencedBy = append(lt.ReferencedBy, ref)
		}
		sort.Strings(lt.ReferencedBy)
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// findLookupColumns 查找键列与描述列
func findLookupColumns(columns []model.DbColumn) (keyCol, valueCol string) {
	for _, col := range columns {
		name := strings.ToUpper(col.Name)
		if keyCol == "" && containsAny(name, lookupKeyPatterns) {
			keyCol = col.Name
			continue
		}
		if valueCol == "" && containsAny(name, lookupValuePatterns) {
			valueCol = col.Name
		}
	}
	return
}

// lookupConfidence 码表置信度：扇入、键/描述列、列数、表名
func lookupConfidence(t *model.DbTable, fanIn int, keyCol, valueCol string) float64 {
	score := 0.0

	switch {
	case fanIn >= 3:
		score += 0.4
	case fanIn == 2:
		score += 0.3
	case fanIn == 1:
		score += 0.1
	}

	if keyCol != "" && valueCol != "" {
		score += 0.3
	} else if keyCol != "" {
		score += 0.1
	}

	// 典型码表列数 2-5；列信息缺失时不加分
	if n := len(t.Columns); n > 0 && n <= 5 {
		score += 0.2
	}

	if containsAny(strings.ToUpper(t.Name), lookupNamePatterns) {
		score += 0.1
	}
	return model.Clamp(math.Round(score*100) / 100)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
