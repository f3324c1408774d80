package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"schema-miner/internal/adapter"
	"schema-miner/internal/analyzer"
	"schema-miner/internal/config"
	"schema-miner/internal/graph"
	"schema-miner/internal/model"
	"schema-miner/internal/orchestrator"
	"schema-miner/internal/renderer"
	"schema-miner/internal/store"
)

func newInitCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "生成默认配置文件",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultFile
			}
			cfg, err := config.Default()
			if err != nil {
				return err
			}
			if project != "" {
				cfg.Project = project
			}
			if root != "" {
				cfg.SourceRoot = root
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Printf("✓ 已生成 %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "source-root", "", "源码根目录")
	return cmd
}

func newScanCmd() *cobra.Command {
	var opts orchestrator.Options
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "扫描源码目录，解析变化的文件并重算连接",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			fmt.Printf("🔍 扫描 %s ...\n", a.cfg.SourceRoot)
			sum, err := orchestrator.New(a.cfg, a.store, registry(), a.logger).Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Printf("✓ 文件: 识别 %d, 解析 %d, 未变化 %d, 失败 %d, 清除 %d\n",
				sum.FilesScanned, sum.FilesParsed, sum.FilesUnchanged, sum.FilesFailed, sum.FilesPurged)
			langs := make([]string, 0, len(sum.PerLanguage))
			for l := range sum.PerLanguage {
				langs = append(langs, string(l))
			}
			sort.Strings(langs)
			for _, l := range langs {
				fmt.Printf("  - %-8s %d\n", l, sum.PerLanguage[model.Language(l)])
			}
			fmt.Printf("✓ 并发: %d (%s)\n", sum.Workers, sum.Strategy)
			printInfer(sum.Inference)
			printCounts(sum.Counts)
			fmt.Printf("\n✅ 完成，用时 %s\n", sum.Duration.Round(time.Millisecond))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&opts.ForceAll, "force", false, "忽略内容哈希，全部重新解析")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "并发数，覆盖配置")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	var (
		tablesCSV, columnsCSV, pkCSV string
		driver, dsn, schema          string
		prune                        bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "从 CSV 导出或数据库读取表结构，写入目录",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			cc := a.cfg.Catalog
			override := func(dst *string, v string) {
				if v != "" {
					*dst = v
				}
			}
			override(&cc.TablesCSV, tablesCSV)
			override(&cc.ColumnsCSV, columnsCSV)
			override(&cc.PrimaryCSV, pkCSV)
			override(&cc.Driver, driver)
			override(&cc.DSN, dsn)
			override(&cc.Schema, schema)

			src, err := adapter.Open(cmd.Context(), cc, a.baseDir)
			if errors.Is(err, adapter.ErrNoSource) {
				return fmt.Errorf("%w: 请指定 --tables/--columns/--pk 或 --dsn", err)
			}
			if err != nil {
				return err
			}
			defer src.Close()

			fmt.Printf("📊 读取目录: %s\n", src.Name())
			tables, err := src.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("读取目录失败: %w", err)
			}
			columns := 0
			for _, t := range tables {
				columns += len(t.Columns)
			}
			if err := a.store.UpsertCatalog(cmd.Context(), tables, prune); err != nil {
				return err
			}
			fmt.Printf("✓ 写入 %d 个表, %d 列\n", len(tables), columns)
			return nil
		}),
	}
	cmd.Flags().StringVar(&tablesCSV, "tables", "", "表 CSV")
	cmd.Flags().StringVar(&columnsCSV, "columns", "", "列 CSV")
	cmd.Flags().StringVar(&pkCSV, "pk", "", "主键 CSV")
	cmd.Flags().StringVar(&driver, "driver", "", "数据库类型 (mysql/sqlserver)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "连接字符串")
	cmd.Flags().StringVar(&schema, "schema", "", "数据库 schema")
	cmd.Flags().BoolVar(&prune, "prune", false, "删除来源中已不存在的表")
	return cmd
}

func newInferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer",
		Short: "不重新解析，仅对已存储的 SQL 重算连接",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			sum, err := orchestrator.New(a.cfg, a.store, nil, a.logger).Infer(cmd.Context())
			if err != nil {
				return err
			}
			printInfer(sum)
			return nil
		}),
	}
}

func newERDCmd() *cobra.Command {
	var (
		format, output string
		opts           graph.BuildOptions
	)
	cmd := &cobra.Command{
		Use:   "erd",
		Short: "根据推断出的连接生成 ER 图",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			cat, err := a.store.LoadCatalog(ctx, a.cfg.Catalog.DefaultOwner)
			if err != nil {
				return err
			}
			joins, err := a.store.FetchJoins(ctx, a.cfg.Project)
			if err != nil {
				return err
			}
			tables := make([]model.DbTable, 0, cat.Len())
			for _, t := range cat.Tables() {
				tables = append(tables, *t)
			}
			g := graph.Build(tables, joins, analyzer.DetectLookupTables(cat, joins), opts)

			var out []byte
			switch strings.ToLower(format) {
			case "mermaid":
				out = []byte(renderer.NewMermaidRenderer().Render(g))
			case "json":
				if out, err = g.ToJSON(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("不支持的格式: %s", format)
			}

			if output == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return err
			}
			fmt.Printf("✓ ER 图已写入 %s (%d 表, %d 关系)\n", output, len(g.SortedNodes(graph.NodeTypeTable)), len(g.Edges))
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "输出格式 (mermaid/json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，默认标准输出")
	cmd.Flags().Float64Var(&opts.MinConfidence, "min-confidence", 0.5, "最低置信度")
	cmd.Flags().BoolVar(&opts.OnlyJoined, "only-joined", true, "只包含参与连接的表")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "显示实体统计与诊断",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			counts, err := a.store.Counts(cmd.Context(), a.cfg.Project)
			if err != nil {
				return err
			}
			fmt.Printf("📦 项目 %s\n", a.cfg.Project)
			printCounts(counts)

			diags, err := a.store.FetchDiagnostics(cmd.Context(), a.cfg.Project, "")
			if err != nil {
				return err
			}
			if len(diags) == 0 {
				return nil
			}
			fmt.Printf("\n⚠️  诊断 %d 条\n", len(diags))
			for i, d := range diags {
				if limit > 0 && i >= limit {
					fmt.Printf("  ... 另有 %d 条\n", len(diags)-limit)
					break
				}
				fmt.Printf("  %s\n", d)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "最多显示的诊断条数，0 为全部")
	return cmd
}

func newEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "摘要补充接口：列出缺少摘要的实体、写入摘要",
	}

	var (
		kind  string
		limit int
	)
	targets := &cobra.Command{
		Use:   "targets",
		Short: "列出缺少摘要的实体",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			kinds := store.SummaryKinds()
			if kind != "" {
				kinds = []string{kind}
			}
			for _, k := range kinds {
				list, err := a.store.EntitiesLackingSummary(cmd.Context(), a.cfg.Project, k, limit)
				if err != nil {
					return err
				}
				for _, t := range list {
					fmt.Printf("%s\t%s\t%s\n", t.Kind, t.ID, t.Label)
				}
			}
			return nil
		}),
	}
	targets.Flags().StringVar(&kind, "kind", "", "实体类型 ("+strings.Join(store.SummaryKinds(), "/")+")")
	targets.Flags().IntVar(&limit, "limit", 50, "每种类型最多条数")

	set := &cobra.Command{
		Use:   "set <kind> <id> <text>",
		Short: "写入实体摘要",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.store.SetSummary(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Printf("✓ 已更新 %s %s\n", args[0], args[1])
			return nil
		}),
	}

	cmd.AddCommand(targets, set)
	return cmd
}

func printInfer(s *orchestrator.InferSummary) {
	if s == nil {
		return
	}
	fmt.Printf("✓ 推断: SQL %d, 三元组 %d (丢弃 %d), 连接 %d, 码表 %d, 诊断 %d\n",
		s.Units, s.Triples, s.Dropped, s.Joins, s.Lookups, s.Diagnostics)
}

func printCounts(c store.Counts) {
	fmt.Printf("  文件 %d | 类 %d | 方法 %d | SQL %d | 边 %d\n", c.Files, c.Classes, c.Methods, c.SQLUnits, c.Edges)
	fmt.Printf("  表 %d | 列 %d | 连接 %d | 诊断 %d\n", c.Tables, c.Columns, c.Joins, c.Diagnostics)
}
