package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/dedup"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/store"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/xmatch"
)

// recorder persists run history when a store is configured. A nil store
// turns every call into a no-op.
type recorder struct {
	st  store.Store
	run *model.Run
}

func (r *recorder) start(ctx context.Context, kind model.RunKind, params model.RunParams) error {
	if r.st == nil {
		return nil
	}
	run, err := r.st.CreateRun(ctx, kind, params)
	if err != nil {
		return err
	}
	r.run = run
	zap.L().Info("run started", zap.String("run_id", run.ID), zap.String("kind", string(kind)))
	return nil
}

func (r *recorder) id() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

// finish marks the run complete or failed. It returns runErr unchanged so
// callers can write `return rec.finish(ctx, res, err)`.
func (r *recorder) finish(ctx context.Context, result *model.RunResult, runErr error) error {
	if r.run == nil {
		return runErr
	}
	var err error
	if runErr != nil {
		err = r.st.FailRun(ctx, r.run.ID, runErr)
	} else {
		err = r.st.CompleteRun(ctx, r.run.ID, result)
	}
	if err != nil {
		zap.L().Error("record run outcome", zap.String("run_id", r.run.ID), zap.Error(err))
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func dedupOptions() (dedup.Options, error) {
	policy, err := catalog.ParseRowPolicy(cfg.Dedup.OnMalformed)
	if err != nil {
		return dedup.Options{}, err
	}
	return dedup.Options{
		Schema: catalog.Schema{
			RA:   cfg.Dedup.RAColumn,
			Dec:  cfg.Dedup.DecColumn,
			Rank: cfg.Dedup.RankKey,
		},
		Tolerance: sky.Tolerance(cfg.Dedup.ToleranceArcsec),
		Policy:    policy,
		Index:     sky.IndexKind(cfg.Dedup.Index),
	}, nil
}

func matchOptions() (xmatch.Options, error) {
	policy, err := catalog.ParseRowPolicy(cfg.Match.OnMalformed)
	if err != nil {
		return xmatch.Options{}, err
	}
	metric, err := sky.MetricByName(cfg.Match.Metric)
	if err != nil {
		return xmatch.Options{}, err
	}
	return xmatch.Options{
		Primary: catalog.Schema{
			RA:  cfg.Match.PrimaryRA,
			Dec: cfg.Match.PrimaryDec,
			ID:  cfg.Match.PrimaryID,
		},
		Secondary: catalog.Schema{
			RA:  cfg.Match.SecondaryRA,
			Dec: cfg.Match.SecondaryDec,
		},
		Tolerance: cfg.Match.ToleranceArcsec,
		Policy:    policy,
		Index:     sky.IndexKind(cfg.Match.Index),
		Metric:    metric,
		Workers:   cfg.Match.Workers,
	}, nil
}
