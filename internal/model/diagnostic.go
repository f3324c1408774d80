package model

import "fmt"

// Severity 诊断级别
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// 诊断代码
const (
	CodeIOError           = "io_error"
	CodeOversize          = "oversize"
	CodeParseError        = "parse_error"
	CodeParserPanic       = "parser_panic"
	CodeUnbalanced        = "unbalanced_braces"
	CodeLowConfidence     = "low_confidence"
	CodeUnresolvedInclude = "unresolved_include"
	CodeUnresolvedAlias   = "unresolved_alias"
	CodeAmbiguousTable    = "ambiguous_table"
	CodeUnknownColumn     = "unknown_column"
	CodeKeyCollision      = "key_collision"
	CodeUnparsedSQL       = "unparsed_sql"
	CodeMalformedXML      = "malformed_xml"
)

// 诊断作用域
const (
	ScopeScan      = "scan"
	ScopeParse     = "parse"
	ScopeInference = "inference"
)

// Diagnostic 非致命问题记录
type Diagnostic struct {
	Scope    string   `json:"scope"`
	Path     string   `json:"path,omitempty"`
	Subject  string   `json:"subject,omitempty"` // 关联实体 ID（如 SQLUnit）
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
}

func (d Diagnostic) String() string {
	loc := d.Path
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.Path, d.Line)
	}
	if loc == "" {
		loc = d.Subject
	}
	return fmt.Sprintf("[%s] %s %s: %s", d.Severity, loc, d.Code, d.Message)
}

// Warn 构造 warning 级诊断
func Warn(scope, path, code, format string, args ...any) Diagnostic {
	return Diagnostic{
		Scope:    scope,
		Path:     path,
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Fail 构造 error 级诊断
func Fail(scope, path, code, format string, args ...any) Diagnostic {
	d := Warn(scope, path, code, format, args...)
	d.Severity = SeverityError
	return d
}
