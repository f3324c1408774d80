package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"schema-miner/internal/config"
	"schema-miner/internal/model"
)

// FKHeuristic 命名启发式：fkColumn 是否像指向 pkTable.pkColumn 的外键
type FKHeuristic interface {
	Match(fkTable *model.DbTable, fkColumn string, pkTable *model.DbTable, pkColumn string) (NamingMatch, bool)
}

// NamingMatch 命名匹配结果
type NamingMatch struct {
	Score  float64
	Detail string
}

// NamingHeuristic 基于后缀、表前缀、单复数与编辑距离的默认实现
type NamingHeuristic struct {
	suffixes  []string
	prefixes  []string
	threshold float64
}

// NewNamingHeuristic 创建启发式；后缀按长度降序尝试
func NewNamingHeuristic(cfg config.InferenceConfig) *NamingHeuristic {
	h := &NamingHeuristic{threshold: cfg.SimilarityThreshold}
	for _, s := range cfg.FKSuffixes {
		h.suffixes = append(h.suffixes, strings.ToUpper(s))
	}
	for _, p := range cfg.TablePrefixes {
		h.prefixes = append(h.prefixes, strings.ToUpper(p))
	}
	sort.SliceStable(h.suffixes, func(i, j int) bool { return len(h.suffixes[i]) > len(h.suffixes[j]) })
	sort.SliceStable(h.prefixes, func(i, j int) bool { return len(h.prefixes[i]) > len(h.prefixes[j]) })
	if h.threshold <= 0 {
		h.threshold = 0.8
	}
	return h
}

// Match 实现 FKHeuristic
func (h *NamingHeuristic) Match(fkTable *model.DbTable, fkColumn string, pkTable *model.DbTable, pkColumn string) (NamingMatch, bool) {
	fk := strings.ToUpper(fkColumn)
	pk := strings.ToUpper(pkColumn)
	base, suffix := h.stripSuffix(fk)
	if suffix == "" {
		return NamingMatch{}, false
	}
	variants := h.tableVariants(pkTable.Name)

	// CUSTOMER_ID -> CUSTOMERS / TB_CUSTOMER
	for _, v := range variants {
		if normalize(base) == normalize(v) {
			return NamingMatch{Score: 1, Detail: fmt.Sprintf("%s names table %s", fk, pkTable.Name)}, true
		}
	}
	// 同名列，且 pk 列自身符合 <表名><后缀>
	if fk == pk && fkTable.ID != pkTable.ID {
		pkBase, _ := h.stripSuffix(pk)
		for _, v := range variants {
			if normalize(pkBase) == normalize(v) {
				return NamingMatch{Score: 1, Detail: fmt.Sprintf("%s shared with key of %s", fk, pkTable.Name)}, true
			}
		}
	}

	best := 0.0
	bestVariant := ""
	for _, v := range variants {
		if s := similarity(normalize(base), normalize(v)); s > best {
			best, bestVariant = s, v
		}
	}
	if best >= h.threshold {
		return NamingMatch{
			Score:  best,
			Detail: fmt.Sprintf("%s ~ %s (%.2f)", fk, bestVariant, best),
		}, true
	}
	return NamingMatch{}, false
}

// stripSuffix 去掉外键后缀，返回剩余部分与命中的后缀
func (h *NamingHeuristic) stripSuffix(col string) (string, string) {
	for _, s := range h.suffixes {
		if len(col) > len(s) && strings.HasSuffix(col, s) {
			return strings.TrimSuffix(strings.TrimSuffix(col, s), "_"), s
		}
	}
	return col, ""
}

// tableVariants 去掉前缀后的表名及其单复数形式
func (h *NamingHeuristic) tableVariants(table string) []string {
	stem := strings.ToUpper(table)
	for _, p := range h.prefixes {
		if len(stem) > len(p) && strings.HasPrefix(stem, p) {
			stem = strings.TrimPrefix(stem, p)
			break
		}
	}
	lower := strings.ToLower(stem)
	seen := map[string]bool{}
	var out []string
	for _, v := range []string{stem, strings.ToUpper(inflection.Singular(lower)), strings.ToUpper(inflection.Plural(lower))} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(s), "_", "")
}

// similarity 1 - 编辑距离 / 较长者长度
func similarity(a, b string) float64 {
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return 1.0 - float64(distance)/maxLen
}
