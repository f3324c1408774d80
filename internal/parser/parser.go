package parser

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"schema-miner/internal/model"
)

// FileInput 待解析的文件
type FileInput struct {
	Path     string // 相对 source root
	Language model.Language
	Content  []byte
}

// Parser 将单个文件文本转为实体集合
//
// 实现必须是无状态的，可以被多个 worker 并发调用。
type Parser interface {
	Language() model.Language
	Parse(ctx context.Context, in FileInput) (*model.FileExtraction, error)
}

// Registry 语言 -> 解析器
type Registry struct {
	parsers map[model.Language]Parser
	calls   atomic.Int64
}

// NewRegistry 创建注册表
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[model.Language]Parser)}
	for _, p := range parsers {
		r.parsers[p.Language()] = p
	}
	return r
}

// Register 注册或替换解析器
func (r *Registry) Register(p Parser) {
	r.parsers[p.Language()] = p
}

// Lookup 按语言查找
func (r *Registry) Lookup(lang model.Language) (Parser, bool) {
	p, ok := r.parsers[lang]
	return p, ok
}

// Calls 解析器被调用的总次数
func (r *Registry) Calls() int64 {
	return r.calls.Load()
}

// Parse 分派到对应语言的解析器，panic 转为错误
func (r *Registry) Parse(ctx context.Context, in FileInput) (fx *model.FileExtraction, err error) {
	p, ok := r.parsers[in.Language]
	if !ok {
		return nil, fmt.Errorf("no parser registered for language %q", in.Language)
	}
	r.calls.Add(1)

	defer func() {
		if rec := recover(); rec != nil {
			fx = nil
			err = &PanicError{Path: in.Path, Value: rec}
		}
	}()
	return p.Parse(ctx, in)
}

// PanicError 解析器 panic
type PanicError struct {
	Path  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parser panic on %s: %v", e.Path, e.Value)
}

// NewExtraction 初始化文件级结果
func NewExtraction(in FileInput) *model.FileExtraction {
	return &model.FileExtraction{
		File: model.File{
			Path:      in.Path,
			Language:  in.Language,
			LineCount: CountLines(in.Content),
		},
	}
}

// CountLines 行数，末尾无换行的最后一行也计入
func CountLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte{'\n'})
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}

// LineAt 字节偏移所在行（从 1 开始）
func LineAt(b []byte, offset int) int {
	if offset > len(b) {
		offset = len(b)
	}
	return bytes.Count(b[:offset], []byte{'\n'}) + 1
}
