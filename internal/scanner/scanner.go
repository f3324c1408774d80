package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"schema-miner/internal/logging"
	"schema-miner/internal/model"
)

var (
	// ErrRootPathEmpty 未指定根目录
	ErrRootPathEmpty = errors.New("root path cannot be empty")
	// ErrRootPathNotExist 根目录不存在
	ErrRootPathNotExist = errors.New("root path does not exist")
	// ErrRootPathNotDir 根路径不是目录
	ErrRootPathNotDir = errors.New("root path is not a directory")
	// ErrInvalidPattern glob 无法编译
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// DefaultMaxFileSize 默认文件大小上限（10MB）
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// 总是跳过的目录
var defaultExcludedDirs = map[string]struct{}{
	".git":          {},
	".svn":          {},
	".hg":           {},
	"node_modules":  {},
	".idea":         {},
	".vscode":       {},
	".settings":     {},
	"target":        {},
	".gradle":       {},
	".schema-miner": {},
}

// Config 扫描配置
type Config struct {
	Root        string
	Extensions  map[string]model.Language // ".java" -> java
	Exclude     []string                  // glob，相对 Root，'/' 分隔
	MaxFileSize int64
	ForceAll    bool
}

// Candidate 识别出的源文件
type Candidate struct {
	Path     string // 相对 Root，'/' 分隔
	AbsPath  string
	Language model.Language
	Size     int64
	Hash     string
	Changed  bool // 新文件或内容变化
}

// Result 扫描结果
type Result struct {
	Work        []Candidate // 需要（重新）解析，按路径排序
	Unchanged   []Candidate
	Vanished    []string // 存储中有但本次未收录：已删除或超出大小上限
	Diagnostics []model.Diagnostic
}

// Total 识别出的文件数
func (r *Result) Total() int {
	return len(r.Work) + len(r.Unchanged)
}

// Scanner 遍历项目目录并计算内容哈希
type Scanner struct {
	config   Config
	excludes []glob.Glob
	logger   *zap.Logger
}

// New 创建扫描器
func New(cfg Config, logger *zap.Logger) (*Scanner, error) {
	if cfg.Root == "" {
		return nil, ErrRootPathEmpty
	}
	info, err := os.Stat(cfg.Root)
	if os.IsNotExist(err) {
		return nil, ErrRootPathNotExist
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrRootPathNotDir
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	excludes := make([]glob.Glob, 0, len(cfg.Exclude))
	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		excludes = append(excludes, g)
	}

	return &Scanner{
		config:   cfg,
		excludes: excludes,
		logger:   logging.OrNop(logger).Named("scanner"),
	}, nil
}

// Scan 遍历目录，与 stored（路径 -> 哈希）比较得出工作列表
func (s *Scanner) Scan(ctx context.Context, stored map[string]string) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool)

	err := filepath.WalkDir(s.config.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := s.relative(path)
		if walkErr != nil {
			// 单个条目出错不影响整体扫描
			res.Diagnostics = append(res.Diagnostics,
				model.Warn(model.ScopeScan, rel, model.CodeIOError, "%v", walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.config.Root && s.skipDir(rel, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		lang, ok := s.config.Extensions[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok || s.excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			seen[rel] = true
			res.Diagnostics = append(res.Diagnostics,
				model.Warn(model.ScopeScan, rel, model.CodeIOError, "stat: %v", err))
			return nil
		}
		// 超限文件不再收录，之前存储的抽取结果随 Vanished 一起清除
		if info.Size() > s.config.MaxFileSize {
			res.Diagnostics = append(res.Diagnostics,
				model.Warn(model.ScopeScan, rel, model.CodeOversize, "skipped: %d bytes exceeds limit %d", info.Size(), s.config.MaxFileSize))
			return nil
		}

		// 读取失败的文件也算存在，不能当作已删除
		seen[rel] = true

		hash, err := HashFile(path)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				model.Warn(model.ScopeScan, rel, model.CodeIOError, "read: %v", err))
			return nil
		}

		c := Candidate{Path: rel, AbsPath: path, Language: lang, Size: info.Size(), Hash: hash}
		prev, known := stored[rel]
		c.Changed = !known || prev != hash
		if c.Changed || s.config.ForceAll {
			res.Work = append(res.Work, c)
		} else {
			res.Unchanged = append(res.Unchanged, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path := range stored {
		if !seen[path] {
			res.Vanished = append(res.Vanished, path)
		}
	}
	sort.Slice(res.Work, func(i, j int) bool { return res.Work[i].Path < res.Work[j].Path })
	sort.Slice(res.Unchanged, func(i, j int) bool { return res.Unchanged[i].Path < res.Unchanged[j].Path })
	sort.Strings(res.Vanished)

	s.logger.Debug("scan complete",
		zap.Int("work", len(res.Work)),
		zap.Int("unchanged", len(res.Unchanged)),
		zap.Int("vanished", len(res.Vanished)),
		zap.Int("diagnostics", len(res.Diagnostics)))
	return res, nil
}

func (s *Scanner) relative(path string) string {
	rel, err := filepath.Rel(s.config.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) skipDir(rel, name string) bool {
	if _, ok := defaultExcludedDirs[name]; ok {
		return true
	}
	return s.excluded(rel) || s.excluded(rel+"/")
}

func (s *Scanner) excluded(rel string) bool {
	for _, g := range s.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// HashFile 文件内容的 xxh3-128 摘要
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes 内存内容的摘要，与 HashFile 一致
func HashBytes(b []byte) string {
	sum := xxh3.Hash128(b).Bytes()
	return hex.EncodeToString(sum[:])
}
