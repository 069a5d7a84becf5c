package pipeline

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/logger"
	"github.com/everspan/cognita/pkg/model"
)

// Mode selects how a task consumes its input.
type Mode int

const (
	// ModeValue passes the whole input to a single function call.
	ModeValue Mode = iota
	// ModeStream applies the element function to each item in order.
	ModeStream
	// ModeParallelStream applies the element function concurrently with a
	// bounded worker pool; output ordering is not preserved.
	ModeParallelStream
)

// Counters is the live stage counter set element functions may update.
type Counters struct {
	Retries  atomic.Int64
	LowYield atomic.Int64
	Dropped  atomic.Int64
	Written  atomic.Int64
}

// Task is one pipeline stage. Value tasks implement Run; stream tasks
// implement Each. An Each returning (nil, nil) filters the item out. Items
// failing with an integrity-kind error are dropped and counted; any other
// error fails the run.
type Task struct {
	Name    string
	Mode    Mode
	Workers int

	Run  func(ctx context.Context, in []any, c *Counters) ([]any, error)
	Each func(ctx context.Context, item any, c *Counters) (any, error)
}

// RunStore is the subset of the relational store the engine needs to persist
// run state.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	UpdateRun(ctx context.Context, run *model.PipelineRun) error
}

// Engine sequences tasks over a seed, persisting per-run state and
// broadcasting progress events. Stages execute strictly sequentially; a
// parallelStream stage completes entirely before the next stage starts.
type Engine struct {
	Store   RunStore
	Hub     *Hub
	Workers int
}

// Run executes the tasks. The returned run reflects the terminal state; the
// error is non-nil only for infrastructure failures persisting state, not
// for run failures (inspect run.Status for those).
func (e *Engine) Run(ctx context.Context, run *model.PipelineRun, tasks []Task, seed []any) (*model.PipelineRun, error) {
	run.Status = model.RunRunning
	run.StartedAt = time.Now().UTC()
	if e.Store != nil {
		if err := e.Store.CreateRun(ctx, run); err != nil {
			return run, err
		}
	}

	broadcaster := e.broadcaster(run.ID)
	defer func() {
		if e.Hub != nil {
			e.Hub.Finish(run.ID)
		}
	}()

	e.publish(broadcaster, model.Event{RunID: run.ID, Type: model.EventRunStarted, At: time.Now().UTC()})
	logger.Info("[Pipeline] Run started", "run_id", run.ID, "dataset_id", run.DatasetID, "stages", len(tasks))

	items := seed
	for _, task := range tasks {
		progress := model.StageProgress{
			Name:      task.Name,
			Status:    model.RunRunning,
			ItemsIn:   len(items),
			StartedAt: time.Now().UTC(),
		}
		run.Stages = append(run.Stages, progress)
		stageIdx := len(run.Stages) - 1
		e.persist(ctx, run)
		e.publish(broadcaster, model.Event{RunID: run.ID, Type: model.EventStageStarted, Stage: task.Name, At: time.Now().UTC()})

		out, counters, err := e.runTask(ctx, task, items)

		stage := &run.Stages[stageIdx]
		stage.ItemsOut = len(out)
		stage.FinishedAt = time.Now().UTC()
		stage.Duration = stage.FinishedAt.Sub(stage.StartedAt)
		stage.Retries = int(counters.Retries.Load())
		stage.LowYield = int(counters.LowYield.Load())
		stage.Dropped = int(counters.Dropped.Load())
		stage.Written = int(counters.Written.Load())

		if err != nil {
			return e.finishError(ctx, run, broadcaster, stage, err)
		}

		stage.Status = model.RunCompleted
		e.persist(ctx, run)
		e.publish(broadcaster, model.Event{
			RunID:    run.ID,
			Type:     model.EventStageCompleted,
			Stage:    task.Name,
			Counters: snapshot(stage),
			At:       time.Now().UTC(),
		})
		logger.Debug("[Pipeline] Stage completed", "run_id", run.ID, "stage", task.Name, "in", stage.ItemsIn, "out", stage.ItemsOut, "duration", stage.Duration)

		items = out
	}

	run.Status = model.RunCompleted
	run.EndedAt = time.Now().UTC()
	e.persist(ctx, run)
	e.publish(broadcaster, model.Event{RunID: run.ID, Type: model.EventRunCompleted, At: time.Now().UTC()})
	logger.Info("[Pipeline] Run completed", "run_id", run.ID, "duration", run.EndedAt.Sub(run.StartedAt))
	return run, nil
}

func (e *Engine) runTask(ctx context.Context, task Task, items []any) ([]any, *Counters, error) {
	counters := &Counters{}

	switch task.Mode {
	case ModeValue:
		out, err := task.Run(ctx, items, counters)
		return out, counters, err

	case ModeStream:
		out := make([]any, 0, len(items))
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return out, counters, errs.Wrap(errs.KindCancelled, task.Name, err)
			}
			result, err := task.Each(ctx, item, counters)
			if err != nil {
				if errs.KindOf(err) == errs.KindIntegrity {
					counters.Dropped.Add(1)
					continue
				}
				return out, counters, err
			}
			if result != nil {
				out = append(out, result)
			}
		}
		return out, counters, nil

	case ModeParallelStream:
		workers := task.Workers
		if workers <= 0 {
			workers = e.Workers
		}
		if workers <= 0 {
			workers = min(8, runtime.NumCPU())
		}

		var mu sync.Mutex
		out := make([]any, 0, len(items))

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for _, item := range items {
			if err := egCtx.Err(); err != nil {
				break
			}
			eg.Go(func() error {
				result, err := task.Each(egCtx, item, counters)
				if err != nil {
					if errs.KindOf(err) == errs.KindIntegrity {
						counters.Dropped.Add(1)
						return nil
					}
					return err
				}
				if result != nil {
					mu.Lock()
					out = append(out, result)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return out, counters, err
		}
		if err := ctx.Err(); err != nil {
			return out, counters, errs.Wrap(errs.KindCancelled, task.Name, err)
		}
		return out, counters, nil
	}

	return nil, counters, errs.Newf(errs.KindValidation, "unknown task mode %d for %s", task.Mode, task.Name)
}

func (e *Engine) finishError(ctx context.Context, run *model.PipelineRun, b *Broadcaster, stage *model.StageProgress, err error) (*model.PipelineRun, error) {
	run.EndedAt = time.Now().UTC()
	run.Error = err.Error()

	if errs.KindOf(err) == errs.KindCancelled {
		run.Status = model.RunCancelled
		stage.Status = model.RunCancelled
		e.persist(context.WithoutCancel(ctx), run)
		e.publish(b, model.Event{RunID: run.ID, Type: model.EventRunCancelled, Stage: stage.Name, At: time.Now().UTC()})
		logger.Info("[Pipeline] Run cancelled", "run_id", run.ID, "stage", stage.Name)
		return run, nil
	}

	run.Status = model.RunFailed
	stage.Status = model.RunFailed
	e.persist(context.WithoutCancel(ctx), run)
	e.publish(b, model.Event{RunID: run.ID, Type: model.EventRunFailed, Stage: stage.Name, Error: err.Error(), At: time.Now().UTC()})
	logger.Error("[Pipeline] Run failed", "run_id", run.ID, "stage", stage.Name, "err", err)
	return run, nil
}

func (e *Engine) broadcaster(runID string) *Broadcaster {
	if e.Hub == nil {
		return nil
	}
	return e.Hub.ForRun(runID)
}

func (e *Engine) publish(b *Broadcaster, event model.Event) {
	if b != nil {
		b.Publish(event)
	}
}

func (e *Engine) persist(ctx context.Context, run *model.PipelineRun) {
	if e.Store == nil {
		return
	}
	if err := e.Store.UpdateRun(ctx, run); err != nil {
		logger.Warn("[Pipeline] Failed to persist run state", "run_id", run.ID, "err", err)
	}
}

func snapshot(stage *model.StageProgress) *model.StageProgress {
	copied := *stage
	return &copied
}
