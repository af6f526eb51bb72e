package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/pipeline"
	"github.com/blackwell-systems/eos-updater/internal/store"
)

// historyRecorder stores finished runs and prunes old ones.
type historyRecorder struct {
	store  *store.Store
	keep   int
	logger *zap.Logger
}

func (h *historyRecorder) Record(ctx context.Context, report *pipeline.Report) error {
	run := runFromReport(report)
	id, err := h.store.InsertRun(ctx, run)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	h.logger.Info("run recorded", zap.Int64("id", id), zap.Int("failed", run.Failed()))

	if h.keep > 0 {
		pruned, err := h.store.PruneRuns(ctx, h.keep)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		if pruned > 0 {
			h.logger.Debug("history pruned", zap.Int64("runs", pruned))
		}
	}
	return nil
}

// runFromReport flattens a report into its stored form. The snapshot, when
// one ran, is stored as the first step.
func runFromReport(r *pipeline.Report) *store.Run {
	run := &store.Run{
		StartedAt:    r.Started,
		FinishedAt:   r.Finished,
		MarkerKnown:  r.Marker.Known,
		MarkerOffset: r.Marker.Offset,
		Cancelled:    r.Cancelled,
		Aborted:      r.Aborted,
		Changed:      r.Changed,
		Critical:     r.Critical,
	}

	results := make([]pipeline.StepResult, 0, len(r.Steps)+1)
	if r.Snapshot != nil {
		results = append(results, *r.Snapshot)
	}
	results = append(results, r.Steps...)

	for i, res := range results {
		step := store.RunStep{
			Position:   i,
			SourceID:   res.Step.SourceID,
			Title:      res.Step.Title,
			Command:    backend.CommandLine(res.Step.Argv),
			ExitCode:   res.Exit.Code,
			Skipped:    res.Skipped,
			StartedAt:  res.Started,
			FinishedAt: res.Finished,
		}
		if res.Exit.Err != nil {
			step.Error = res.Exit.Err.Error()
		}
		run.Steps = append(run.Steps, step)
	}

	for _, q := range r.Summary {
		p := store.Pending{SourceID: q.SourceID, Label: q.Label, Count: len(q.Lines)}
		if q.Err != nil {
			p.Error = q.Err.Error()
		}
		run.Pending = append(run.Pending, p)
	}
	return run
}
