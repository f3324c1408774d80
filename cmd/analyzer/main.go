package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schema-miner/internal/config"
	"schema-miner/internal/logging"
	"schema-miner/internal/parser"
	"schema-miner/internal/parser/java"
	"schema-miner/internal/parser/jsp"
	"schema-miner/internal/parser/sqlparse"
	"schema-miner/internal/store"
)

var (
	configPath string
	logLevel   string
	project    string
	timeout    time.Duration
)

// app 一次命令执行共享的依赖
type app struct {
	cfg     *config.Config
	baseDir string
	logger  *zap.Logger
	store   *store.Store
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "schema-miner",
		Short:         "遗留代码库元数据挖掘器",
		Long:          "解析 Java / JSP / MyBatis / SQL 源码，抽取类、方法与 SQL 语句，推断表之间的连接关系",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件（默认读取当前目录的 "+config.DefaultFile+"）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "项目名，覆盖配置")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "命令超时（如 10m），覆盖配置，0 为不限")

	rootCmd.AddCommand(
		newInitCmd(),
		newScanCmd(),
		newCatalogCmd(),
		newInferCmd(),
		newERDCmd(),
		newSummaryCmd(),
		newEnrichCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

// setup 读取配置、创建 logger 并打开存储
func setup(ctx context.Context) (*app, error) {
	path := configPath
	if path == "" && config.Exists(config.DefaultFile) {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if project != "" {
		cfg.Project = project
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	baseDir := "."
	if path != "" {
		baseDir = filepath.Dir(path)
	}
	cfg.SourceRoot = config.ResolvePath(baseDir, cfg.SourceRoot)
	cfg.StorePath = config.ResolvePath(baseDir, cfg.StorePath)

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.StorePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return &app{cfg: cfg, baseDir: baseDir, logger: logger, store: st}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// registry 注册全部语言解析器
func registry() *parser.Registry {
	return parser.NewRegistry(
		java.NewParser(),
		jsp.NewParser(),
		jsp.NewMapperParser(),
		sqlparse.NewParser(),
	)
}

// withTimeout d 为 0 时不设截止时间
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// withApp 包装需要存储的命令
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := withTimeout(cmd.Context(), a.cfg.Timeout)
		defer cancel()
		cmd.SetContext(ctx)
		err = fn(cmd, a, args)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("超时 (%s): %w", a.cfg.Timeout, err)
		}
		return err
	}
}
