package model

import "fmt"

// Certainty 提取结果的确定程度
type Certainty int

const (
	Definite Certainty = iota
	Probable
	Unparsed
)

func (c Certainty) String() string {
	switch c {
	case Definite:
		return "definite"
	case Probable:
		return "probable"
	case Unparsed:
		return "unparsed"
	default:
		return fmt.Sprintf("certainty(%d)", int(c))
	}
}

// ParseCertainty 字符串转 Certainty
func ParseCertainty(s string) Certainty {
	switch s {
	case "definite":
		return Definite
	case "probable":
		return Probable
	default:
		return Unparsed
	}
}

// Extraction 标记型结果：Definite / Probable(confidence) / Unparsed(note)
type Extraction struct {
	Certainty  Certainty `json:"certainty"`
	Confidence float64   `json:"confidence"`
	Note       string    `json:"note,omitempty"`
}

// DefiniteMatch 高置信度
func DefiniteMatch(confidence float64) Extraction {
	return Extraction{Certainty: Definite, Confidence: Clamp(confidence)}
}

// ProbableMatch 低置信度，保留但需下游过滤
func ProbableMatch(confidence float64, note string) Extraction {
	return Extraction{Certainty: Probable, Confidence: Clamp(confidence), Note: note}
}

// UnparsedMatch 无法解析
func UnparsedMatch(note string) Extraction {
	return Extraction{Certainty: Unparsed, Note: note}
}

// Downgrade 降级为 Probable，置信度取较小值
func (e Extraction) Downgrade(maxConfidence float64, note string) Extraction {
	if e.Certainty == Unparsed {
		return e
	}
	e.Certainty = Probable
	if e.Confidence > maxConfidence {
		e.Confidence = maxConfidence
	}
	if e.Note == "" {
		e.Note = note
	}
	return e
}

// Clamp 限制在 [0,1]
func Clamp(v float64) float64 {
	if v != v || v < 0 { // NaN 视为 0
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
