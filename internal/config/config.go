package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"schema-miner/internal/model"
)

// DefaultFile 默认配置文件名
const DefaultFile = "schema-miner.yaml"

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// Config 运行配置，来自 YAML 文件，环境变量覆盖
type Config struct {
	Project    string `yaml:"project" env:"SCHEMA_MINER_PROJECT" env-default:"default"`
	SourceRoot string `yaml:"source_root" env:"SCHEMA_MINER_SOURCE_ROOT" env-default:"."`
	StorePath  string `yaml:"store_path" env:"SCHEMA_MINER_STORE" env-default:".schema-miner/entities.db"`

	// Languages 语言 -> 扩展名
	Languages map[string][]string `yaml:"languages"`
	// Exclude 额外排除的 glob（相对 source root）
	Exclude []string `yaml:"exclude"`
	// MaxFileSize 超过该大小的文件跳过（字节）
	MaxFileSize int64 `yaml:"max_file_size" env:"SCHEMA_MINER_MAX_FILE_SIZE" env-default:"10485760"`
	// Timeout 单条命令的最长执行时间，0 表示不限
	Timeout time.Duration `yaml:"timeout" env:"SCHEMA_MINER_TIMEOUT" env-default:"0s"`

	Workers   WorkersConfig   `yaml:"workers"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Inference InferenceConfig `yaml:"inference"`
	Log       LogConfig       `yaml:"log"`
}

// WorkersConfig 并发配置
type WorkersConfig struct {
	// Strategy fixed / adaptive
	Strategy string `yaml:"strategy" env:"SCHEMA_MINER_WORKER_STRATEGY" env-default:"fixed"`
	// Size fixed 策略的并发数，0 表示 CPU 数
	Size int `yaml:"size" env:"SCHEMA_MINER_WORKERS" env-default:"0"`
	// Max adaptive 策略的上限
	Max int `yaml:"max" env-default:"16"`
	// Sample adaptive 策略的采样文件数
	Sample int `yaml:"sample" env-default:"24"`
	// BatchSize 每种语言的批大小
	BatchSize map[string]int `yaml:"batch_size"`
}

// CatalogConfig 数据库目录来源
type CatalogConfig struct {
	DefaultOwner string `yaml:"default_owner" env:"SCHEMA_MINER_DEFAULT_OWNER" env-default:""`
	TablesCSV    string `yaml:"tables_csv"`
	ColumnsCSV   string `yaml:"columns_csv"`
	PrimaryCSV   string `yaml:"pk_csv"`
	// Driver mysql / sqlserver，配合 DSN 直接读取元数据
	Driver string `yaml:"driver" env:"SCHEMA_MINER_CATALOG_DRIVER" env-default:""`
	DSN    string `yaml:"-" env:"SCHEMA_MINER_CATALOG_DSN"` // 凭据只来自环境变量
	Schema string `yaml:"schema" env:"SCHEMA_MINER_CATALOG_SCHEMA" env-default:""`
}

// InferenceConfig 连接推断权重与命名启发式
type InferenceConfig struct {
	ExplicitBase        float64  `yaml:"explicit_base" env-default:"0.9"`
	ImplicitBase        float64  `yaml:"implicit_base" env-default:"0.6"`
	NamingBoost         float64  `yaml:"naming_boost" env-default:"0.05"`
	PrimaryKeyBoost     float64  `yaml:"pk_boost" env-default:"0.05"`
	FKSuffixes          []string `yaml:"fk_suffixes"`
	TablePrefixes       []string `yaml:"table_prefixes"`
	SimilarityThreshold float64  `yaml:"similarity_threshold" env-default:"0.8"`
	Shards              int      `yaml:"shards" env-default:"4"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level" env:"SCHEMA_MINER_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"SCHEMA_MINER_LOG_FORMAT" env-default:"console"`
}

// DefaultLanguages 默认扩展名映射
func DefaultLanguages() map[string][]string {
	return map[string][]string{
		string(model.LanguageJava):    {".java"},
		string(model.LanguageJSP):     {".jsp", ".jspf", ".jspx", ".tag"},
		string(model.LanguageMyBatis): {".xml"},
		string(model.LanguageSQL):     {".sql", ".ddl", ".pks", ".pkb", ".prc"},
	}
}

// DefaultFKSuffixes 默认外键列后缀
func DefaultFKSuffixes() []string {
	return []string{"_ID", "_NO", "_CD", "_CODE", "_KEY", "_SEQ", "ID"}
}

// DefaultTablePrefixes 默认表名前缀
func DefaultTablePrefixes() []string {
	return []string{"TB_", "TBL_", "T_"}
}

// Load 读取配置文件；path 为空时只读环境变量
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 不读取配置文件的默认配置，环境变量仍然生效
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Languages) == 0 {
		c.Languages = DefaultLanguages()
	}
	for lang, exts := range c.Languages {
		norm := make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			norm = append(norm, ext)
		}
		c.Languages[lang] = norm
	}
	if len(c.Inference.FKSuffixes) == 0 {
		c.Inference.FKSuffixes = DefaultFKSuffixes()
	}
	if len(c.Inference.TablePrefixes) == 0 {
		c.Inference.TablePrefixes = DefaultTablePrefixes()
	}
	if c.Workers.BatchSize == nil {
		c.Workers.BatchSize = map[string]int{}
	}
	for lang, size := range map[string]int{"java": 64, "jsp": 32, "mybatis": 32, "sql": 16} {
		if c.Workers.BatchSize[lang] <= 0 {
			c.Workers.BatchSize[lang] = size
		}
	}
	if c.Workers.Max <= 0 {
		c.Workers.Max = 16
	}
	if c.Workers.Sample <= 0 {
		c.Workers.Sample = 24
	}
	c.Catalog.DefaultOwner = strings.ToUpper(strings.TrimSpace(c.Catalog.DefaultOwner))
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("%w: project must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.SourceRoot) == "" {
		return fmt.Errorf("%w: source_root must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("%w: store_path must not be empty", ErrInvalidConfig)
	}
	switch c.Workers.Strategy {
	case "", "fixed", "adaptive":
	default:
		return fmt.Errorf("%w: unknown worker strategy %q", ErrInvalidConfig, c.Workers.Strategy)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0", ErrInvalidConfig)
	}
	if c.Workers.Size < 0 {
		return fmt.Errorf("%w: workers.size must be >= 0", ErrInvalidConfig)
	}
	known := map[string]bool{}
	for _, l := range model.Languages {
		known[string(l)] = true
	}
	seen := map[string]string{}
	for lang, exts := range c.Languages {
		if !known[lang] {
			return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, lang)
		}
		for _, ext := range exts {
			if other, dup := seen[ext]; dup && other != lang {
				return fmt.Errorf("%w: extension %s mapped to both %s and %s", ErrInvalidConfig, ext, other, lang)
			}
			seen[ext] = lang
		}
	}
	inf := c.Inference
	for name, w := range map[string]float64{
		"explicit_base": inf.ExplicitBase, "implicit_base": inf.ImplicitBase,
		"naming_boost": inf.NamingBoost, "pk_boost": inf.PrimaryKeyBoost,
		"similarity_threshold": inf.SimilarityThreshold,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: inference.%s must be within [0,1]", ErrInvalidConfig, name)
		}
	}
	if inf.ImplicitBase >= inf.ExplicitBase {
		return fmt.Errorf("%w: implicit_base must be lower than explicit_base", ErrInvalidConfig)
	}
	switch c.Catalog.Driver {
	case "", "mysql", "sqlserver":
	default:
		return fmt.Errorf("%w: unsupported catalog driver %q", ErrInvalidConfig, c.Catalog.Driver)
	}
	return nil
}

// WorkerCount fixed 策略下的并发数
func (c *Config) WorkerCount() int {
	if c.Workers.Size > 0 {
		return c.Workers.Size
	}
	return runtime.NumCPU()
}

// ExtensionMap 扩展名 -> 语言
func (c *Config) ExtensionMap() map[string]model.Language {
	m := make(map[string]model.Language)
	for lang, exts := range c.Languages {
		for _, ext := range exts {
			m[ext] = model.Language(lang)
		}
	}
	return m
}

// ResolvePath 相对路径按配置文件所在目录解析
func ResolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Exists 文件是否存在
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Write 将配置写为 YAML，已存在的文件不会被覆盖
func Write(path string, cfg *Config) error {
	if Exists(path) {
		return fmt.Errorf("%s: %w", path, os.ErrExist)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
