package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schema-miner/internal/config"
	"schema-miner/internal/logging"
	"schema-miner/internal/model"
	"schema-miner/internal/parser"
	"schema-miner/internal/scanner"
	"schema-miner/internal/store"
)

// Options 单次运行选项
type Options struct {
	ForceAll bool // 忽略哈希，全部重新解析
	Workers  int  // >0 时覆盖配置的并发数
}

// RunSummary 一次运行的统计
type RunSummary struct {
	Project        string                 `json:"project"`
	FilesScanned   int                    `json:"files_scanned"`
	FilesParsed    int                    `json:"files_parsed"`
	FilesUnchanged int                    `json:"files_unchanged"`
	FilesFailed    int                    `json:"files_failed"`
	FilesPurged    int                    `json:"files_purged"`
	PerLanguage    map[model.Language]int `json:"per_language"`
	Workers        int                    `json:"workers"`
	Strategy       string                 `json:"strategy"`
	Inference      *InferSummary          `json:"inference"`
	Counts         store.Counts           `json:"counts"`
	Duration       time.Duration          `json:"duration"`
}

// Orchestrator 扫描、并行解析、单写入者落库，再做全量连接推断
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	registry *parser.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建编排器
func New(cfg *config.Config, st *store.Store, registry *parser.Registry, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		registry: registry,
		logger:   logging.OrNop(logger).Named("orchestrator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// parsed worker 交给写入者的单个文件结果
type parsed struct {
	cand   scanner.Candidate
	fx     *model.FileExtraction
	failed bool
}

// Run 执行一次完整流程
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	start := time.Now()
	project := o.cfg.Project
	sum := &RunSummary{Project: project, PerLanguage: make(map[model.Language]int)}

	stored, err := o.store.FileHashes(ctx, project)
	if err != nil {
		return nil, err
	}
	sc, err := scanner.New(scanner.Config{
		Root:        o.cfg.SourceRoot,
		Extensions:  o.cfg.ExtensionMap(),
		Exclude:     o.cfg.Exclude,
		MaxFileSize: o.cfg.MaxFileSize,
		ForceAll:    opts.ForceAll,
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}
	scan, err := sc.Scan(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", o.cfg.SourceRoot, err)
	}
	sum.FilesScanned = scan.Total()
	sum.FilesUnchanged = len(scan.Unchanged)
	scanDiags := append([]model.Diagnostic(nil), scan.Diagnostics...)

	sum.Strategy, sum.Workers = o.poolSize(ctx, opts, scan.Work)
	o.logger.Info("scan complete",
		zap.String("project", project),
		zap.Int("work", len(scan.Work)),
		zap.Int("unchanged", len(scan.Unchanged)),
		zap.Int("vanished", len(scan.Vanished)),
		zap.String("strategy", sum.Strategy),
		zap.Int("workers", sum.Workers))

	readDiags, err := o.parseAll(ctx, scan.Work, sum)
	if err != nil {
		return nil, err
	}
	scanDiags = append(scanDiags, readDiags...)

	// 屏障：所有文件已落库
	if sum.FilesPurged, err = o.store.PurgeFiles(ctx, project, scan.Vanished); err != nil {
		return nil, err
	}
	if sum.Inference, err = o.Infer(ctx); err != nil {
		return nil, err
	}
	if err := o.store.ReplaceDiagnostics(ctx, project, model.ScopeScan, scanDiags); err != nil {
		return nil, err
	}
	if sum.Counts, err = o.store.Counts(ctx, project); err != nil {
		return nil, err
	}
	sum.Duration = time.Since(start)

	o.logger.Info("run complete",
		zap.String("project", project),
		zap.Int("parsed", sum.FilesParsed),
		zap.Int("failed", sum.FilesFailed),
		zap.Int("purged", sum.FilesPurged),
		zap.Int("joins", sum.Counts.Joins),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

// parseAll 并行解析，结果经 channel 交给唯一的写入者
func (o *Orchestrator) parseAll(ctx context.Context, work []scanner.Candidate, sum *RunSummary) ([]model.Diagnostic, error) {
	if len(work) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan parsed, sum.Workers*2)
	var readDiags []model.Diagnostic
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- o.write(ctx, cancel, results, sum)
	}()

	pool, pctx := errgroup.WithContext(ctx)
	pool.SetLimit(sum.Workers)
	diags := make(chan model.Diagnostic, len(work))
	for _, b := range batches(work, o.cfg.Workers.BatchSize) {
		if pctx.Err() != nil {
			break
		}
		pool.Go(func() error {
			return o.parseBatch(pctx, b, results, diags)
		})
	}
	poolErr := pool.Wait()
	close(results)
	close(diags)
	for d := range diags {
		readDiags = append(readDiags, d)
	}

	if err := <-writeErr; err != nil {
		return nil, err
	}
	sum.FilesFailed += len(readDiags)
	if poolErr != nil {
		return nil, fmt.Errorf("parse: %w", poolErr)
	}
	return readDiags, nil
}

// parseBatch 顺序解析同一语言的一批文件；单个文件的失败不影响其余文件
func (o *Orchestrator) parseBatch(ctx context.Context, b batch, out chan<- parsed, diags chan<- model.Diagnostic) error {
	for _, c := range b.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := os.ReadFile(c.AbsPath)
		if err != nil {
			diags <- model.Warn(model.ScopeScan, c.Path, model.CodeIOError, "read: %v", err)
			continue
		}
		res := o.parseFile(ctx, c, content)
		select {
		case out <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// parseFile 解析失败或 panic 时返回只含诊断的文件结果
func (o *Orchestrator) parseFile(ctx context.Context, c scanner.Candidate, content []byte) parsed {
	in := parser.FileInput{Path: c.Path, Language: c.Language, Content: content}
	fx, err := o.registry.Parse(ctx, in)
	if err == nil && fx != nil {
		return parsed{cand: c, fx: fx}
	}

	fx = parser.NewExtraction(in)
	code := model.CodeParseError
	var panicErr *parser.PanicError
	if errors.As(err, &panicErr) {
		code = model.CodeParserPanic
	}
	if err == nil {
		err = errors.New("parser returned no result")
	}
	fx.Diagnostics = append(fx.Diagnostics, model.Fail(model.ScopeParse, c.Path, code, "%v", err))
	o.logger.Warn("parse failed", zap.String("path", c.Path), zap.Error(err))
	return parsed{cand: c, fx: fx, failed: true}
}

// write 唯一的存储写入者；取消后到达的结果直接丢弃
func (o *Orchestrator) write(ctx context.Context, cancel context.CancelFunc, in <-chan parsed, sum *RunSummary) error {
	var firstErr error
	for res := range in {
		if firstErr != nil || ctx.Err() != nil {
			continue
		}
		fx := res.fx
		model.Finalize(o.cfg.Project, fx)
		fx.File.ContentHash = res.cand.Hash
		fx.File.LastParsedAt = o.now()
		if err := o.store.ReplaceFileExtraction(ctx, fx); err != nil {
			firstErr = fmt.Errorf("store %s: %w", res.cand.Path, err)
			cancel()
			continue
		}
		if res.failed {
			sum.FilesFailed++
		} else {
			sum.FilesParsed++
		}
		sum.PerLanguage[res.cand.Language]++
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
