package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"schema-miner/internal/analyzer"
	"schema-miner/internal/model"
	"schema-miner/internal/store"
)

// InferSummary 连接推断统计
type InferSummary struct {
	Units       int `json:"units"`
	Triples     int `json:"triples"`
	Dropped     int `json:"dropped"`
	Joins       int `json:"joins"`
	Lookups     int `json:"lookups"`
	TableEdges  int `json:"table_edges"`
	Diagnostics int `json:"diagnostics"`
}

// Infer 对项目全部 SQL 单元重算连接，整体替换连接、派生边与推断诊断
func (o *Orchestrator) Infer(ctx context.Context) (*InferSummary, error) {
	project := o.cfg.Project
	cat, err := o.store.LoadCatalog(ctx, o.cfg.Catalog.DefaultOwner)
	if err != nil {
		return nil, err
	}
	units, err := o.store.FetchSQLUnits(ctx, project)
	if err != nil {
		return nil, err
	}
	files, err := o.store.FetchFiles(ctx, project)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(files))
	for _, f := range files {
		paths[f.ID] = f.Path
	}
	if cat.Len() == 0 && len(units) > 0 {
		o.logger.Warn("catalog is empty, every join will be dropped", zap.String("project", project))
	}

	res, err := analyzer.NewJoinInferer(o.cfg.Inference, nil, o.logger).Infer(ctx, analyzer.Input{
		Project: project,
		Units:   units,
		Paths:   paths,
		Catalog: cat,
	})
	if err != nil {
		return nil, err
	}

	derived := make([]store.DerivedEdge, 0, len(res.TableEdges))
	for _, e := range res.TableEdges {
		derived = append(derived, store.DerivedEdge{FileID: e.FileID, Edge: e.Edge})
	}
	for _, l := range res.Lookups {
		for _, ref := range l.ReferencedBy {
			t, ok := cat.Table(ref)
			if !ok {
				continue
			}
			derived = append(derived, store.DerivedEdge{Edge: model.Edge{
				SrcType: model.NodeDbTable, SrcID: t.ID,
				DstType: model.NodeDbTable, DstID: l.TableID,
				Kind:     model.EdgeLooksUp,
				Metadata: map[string]string{
					"key_column":   l.KeyColumn,
					"value_column": l.ValueColumn,
					"confidence":   fmt.Sprintf("%.2f", l.Confidence),
				},
			}})
		}
	}

	if err := o.store.ReplaceJoins(ctx, project, res.Joins); err != nil {
		return nil, err
	}
	if err := o.store.ReplaceDerivedEdges(ctx, project, derived); err != nil {
		return nil, err
	}
	if err := o.store.ReplaceDiagnostics(ctx, project, model.ScopeInference, res.Diagnostics); err != nil {
		return nil, err
	}

	return &InferSummary{
		Units:       len(units),
		Triples:     res.Triples,
		Dropped:     res.Dropped,
		Joins:       len(res.Joins),
		Lookups:     len(res.Lookups),
		TableEdges:  len(res.TableEdges),
		Diagnostics: len(res.Diagnostics),
	}, nil
}
