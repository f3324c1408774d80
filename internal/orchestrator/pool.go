package orchestrator

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schema-miner/internal/model"
	"schema-miner/internal/parser"
	"schema-miner/internal/scanner"
)

const (
	StrategyFixed    = "fixed"
	StrategyAdaptive = "adaptive"
)

// minGain 并发翻倍后吞吐提升低于该比例即停止
const minGain = 1.10

// batch 同一语言的一组文件
type batch struct {
	language model.Language
	files    []scanner.Candidate
}

// batches 按语言分组并切块；语言顺序固定，组内保持路径顺序
func batches(work []scanner.Candidate, sizes map[string]int) []batch {
	byLang := make(map[model.Language][]scanner.Candidate)
	for _, c := range work {
		byLang[c.Language] = append(byLang[c.Language], c)
	}
	var out []batch
	for _, lang := range model.Languages {
		files := byLang[lang]
		size := sizes[string(lang)]
		if size <= 0 {
			size = 32
		}
		for start := 0; start < len(files); start += size {
			end := min(start+size, len(files))
			out = append(out, batch{language: lang, files: files[start:end]})
		}
	}
	return out
}

// poolSize 决定本次运行的并发数
func (o *Orchestrator) poolSize(ctx context.Context, opts Options, work []scanner.Candidate) (string, int) {
	if opts.Workers > 0 {
		return StrategyFixed, opts.Workers
	}
	if o.cfg.Workers.Strategy != StrategyAdaptive || len(work) == 0 {
		return StrategyFixed, o.cfg.WorkerCount()
	}

	sample := o.loadSample(work, o.cfg.Workers.Sample)
	if len(sample) == 0 {
		return StrategyFixed, o.cfg.WorkerCount()
	}
	n := adaptiveWorkers(o.cfg.Workers.Max, func(workers int) time.Duration {
		return o.timeSample(ctx, sample, workers)
	})
	o.logger.Debug("adaptive pool size", zap.Int("sample", len(sample)), zap.Int("workers", n))
	return StrategyAdaptive, n
}

// adaptiveWorkers 依次尝试 1,2,4… 个 worker，吞吐提升不足 10% 时返回上一档
func adaptiveWorkers(maxWorkers int, measure func(workers int) time.Duration) int {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	best := 1
	bestThroughput := throughput(measure(1))
	for n := 2; n <= maxWorkers; n *= 2 {
		t := throughput(measure(n))
		if t < bestThroughput*minGain {
			break
		}
		best, bestThroughput = n, t
	}
	return best
}

func throughput(d time.Duration) float64 {
	if d <= 0 {
		d = time.Nanosecond
	}
	return 1 / d.Seconds()
}

// loadSample 均匀抽取样本文件并读入内存
func (o *Orchestrator) loadSample(work []scanner.Candidate, n int) []parser.FileInput {
	if n <= 0 || n > len(work) {
		n = len(work)
	}
	step := len(work) / n
	var out []parser.FileInput
	for i := 0; i < len(work) && len(out) < n; i += step {
		c := work[i]
		content, err := os.ReadFile(c.AbsPath)
		if err != nil {
			continue
		}
		out = append(out, parser.FileInput{Path: c.Path, Language: c.Language, Content: content})
	}
	return out
}

// timeSample 用 workers 个并发解析样本一次，不经过 Registry 计数
func (o *Orchestrator) timeSample(ctx context.Context, sample []parser.FileInput, workers int) time.Duration {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, in := range sample {
		p, ok := o.registry.Lookup(in.Language)
		if !ok {
			continue
		}
		g.Go(func() error {
			defer func() { _ = recover() }()
			_, _ = p.Parse(gctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return time.Since(start)
}
