// Package executor deploys batches of configs, connecting the external
// system to conflict resolution and reports.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/flowdeploy/pkg/conflict"
	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
	"github.com/devicelab-dev/flowdeploy/pkg/report"
)

// Invalidator drops cached target trees after the external tree changed.
type Invalidator interface {
	Invalidate(instanceID string)
}

// RefreshFunc brings a config up to date with the current tree of its
// instance. It returns an error when the selected target no longer exists.
type RefreshFunc func(ctx context.Context, cfg core.DeploymentConfig) (core.DeploymentConfig, error)

// RunnerConfig configures the batch runner.
type RunnerConfig struct {
	OutputDir  string // Report output directory ("" disables reports)
	HTMLReport bool   // Also render report.html
	Server     string // External system URL, for reports

	// Prompter decides conflicts. nil cancels every conflict.
	Prompter conflict.Prompter

	// Cache is invalidated for an instance after a target was created or
	// deleted there. Refresh is then applied to later configs of that
	// instance before they deploy.
	Cache   Invalidator
	Refresh RefreshFunc

	// Live progress callbacks. The batch passed to OnItemComplete is owned
	// by the runner and must not be retained.
	OnItemStart    func(idx, total int, cfg core.DeploymentConfig)
	OnConflict     func(cfg core.DeploymentConfig, info core.ConflictInfo)
	OnItemComplete func(idx int, result core.DeploymentResult, batch *core.BatchResult)
}

// Runner deploys configs one at a time.
type Runner struct {
	config RunnerConfig
	api    core.API
}

// New creates a new Runner.
func New(api core.API, cfg RunnerConfig) *Runner {
	if cfg.Prompter == nil {
		cfg.Prompter = conflict.Policy{}
	}
	return &Runner{
		config: cfg,
		api:    api,
	}
}

// DeployBatch deploys configs sequentially in the given order and returns one
// result per config, in the same order. A failing item never stops the batch.
//
// Cancelling ctx stops the batch between items: the item in flight finishes
// (its calls are not interrupted) and every remaining item is recorded as
// failed with core.ErrBatchCancelled. The returned error is only non-nil when
// the report skeleton cannot be written, before anything was deployed.
func (r *Runner) DeployBatch(ctx context.Context, configs []core.DeploymentConfig) (*core.BatchResult, error) {
	batch := &core.BatchResult{
		RunID:   uuid.NewString(),
		Results: make([]core.DeploymentResult, 0, len(configs)),
		Total:   len(configs),
	}

	var indexWriter *report.IndexWriter
	if r.config.OutputDir != "" {
		index := report.BuildSkeleton(configs, report.BuilderConfig{
			RunID:  batch.RunID,
			Server: r.config.Server,
		})
		if err := report.WriteSkeleton(r.config.OutputDir, index); err != nil {
			return nil, err
		}
		indexWriter = report.NewIndexWriter(r.config.OutputDir, index, r.config.HTMLReport)
		indexWriter.Start()
	}

	logger.Info("batch %s: deploying %d configs", batch.RunID, len(configs))
	dirty := make(map[string]bool)

	for i, cfg := range configs {
		var result core.DeploymentResult
		if ctx.Err() != nil {
			if !batch.Cancelled {
				logger.Warn("batch %s cancelled before item %d/%d", batch.RunID, i+1, len(configs))
			}
			batch.Cancelled = true
			result = core.NewFailedResult(cfg, core.ErrBatchCancelled.WithCause(ctx.Err()))
		} else {
			if r.config.OnItemStart != nil {
				r.config.OnItemStart(i, len(configs), cfg)
			}
			if indexWriter != nil {
				indexWriter.ItemStarted(i)
			}
			result = r.deployOne(ctx, cfg, dirty)
		}

		batch.Append(result)
		if indexWriter != nil {
			indexWriter.ItemFinished(i, result)
		}
		if r.config.OnItemComplete != nil {
			r.config.OnItemComplete(i, result, batch)
		}
	}

	if indexWriter != nil {
		indexWriter.End(batch.Cancelled)
	}
	logger.Info("batch %s: %d succeeded, %d failed, %d total", batch.RunID, batch.SuccessCount, batch.FailCount, batch.Total)
	return batch, nil
}

// deployOne runs a single config, resolving a conflict inline when the
// external system reports one. Every failure ends up in the result,
// including a panic in the API, the refresh hook or the prompter.
//
// API calls ignore cancellation of ctx so a started item completes; only a
// pending conflict prompt observes it.
func (r *Runner) deployOne(ctx context.Context, cfg core.DeploymentConfig, dirty map[string]bool) (result core.DeploymentResult) {
	start := time.Now()
	fail := func(cfg core.DeploymentConfig, err error) core.DeploymentResult {
		logger.Error("deploy %s failed: %v", cfg.Key(), err)
		res := core.NewFailedResult(cfg, err)
		res.StartTime = start
		res.Duration = time.Since(start)
		return res
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = fail(cfg, core.ErrDeployFailed.WithCause(fmt.Errorf("panic: %v", rec)))
		}
	}()

	calls := context.WithoutCancel(ctx)
	if dirty[cfg.InstanceID] && r.config.Refresh != nil {
		refreshed, err := r.config.Refresh(calls, cfg)
		if err != nil {
			return fail(cfg, err)
		}
		cfg = refreshed
	}

	req := core.NewDeployRequest(cfg)
	logger.Debug("deploy %s: name=%q parent=%q", cfg.Key(), req.NewName, cfg.ParentID())

	resp, err := r.api.Deploy(calls, cfg.InstanceID, req)
	if err != nil {
		return fail(cfg, core.ErrDeployFailed.WithCause(err))
	}

	result = core.DeploymentResult{
		Config:    cfg,
		StartTime: start,
	}

	switch {
	case resp.Conflict != nil:
		if r.config.OnConflict != nil {
			r.config.OnConflict(cfg, *resp.Conflict)
		}
		logger.Info("deploy %s: %s", cfg.Key(), resp.Conflict.Message)

		out, err := conflict.Handle(ctx, r.api, cfg.InstanceID, cfg, req, *resp.Conflict, r.config.Prompter)
		if err != nil {
			return fail(cfg, err)
		}
		result.Success = true
		result.TargetID = out.Response.TargetID
		result.TargetName = out.Response.TargetName
		result.Resolution = out.Action.Name()
		if _, inPlace := out.Action.(conflict.UpdateVersion); !inPlace {
			r.treeChanged(cfg.InstanceID, dirty)
		}

	case resp.Success:
		result.Success = true
		result.TargetID = resp.TargetID
		result.TargetName = resp.TargetName
		r.treeChanged(cfg.InstanceID, dirty)

	default:
		return fail(cfg, core.ErrDeployFailed.WithCause(errors.New("external system did not confirm the deployment")))
	}

	result.Duration = time.Since(start)
	logger.Info("deploy %s: created %s (%s)", cfg.Key(), result.TargetName, result.TargetID)
	return result
}

func (r *Runner) treeChanged(instanceID string, dirty map[string]bool) {
	dirty[instanceID] = true
	if r.config.Cache != nil {
		r.config.Cache.Invalidate(instanceID)
	}
}
