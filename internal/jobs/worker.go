// Package jobs runs indexing jobs: a create/reuse surface for callers and a
// single background worker that claims pending jobs and drives the indexer.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/indexer"
	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/store"
)

// Worker claims pending jobs one at a time and executes them. The stop signal
// is cooperative and only honored between jobs; a running job always reaches
// a terminal state unless the process dies.
type Worker struct {
	store    store.Store
	indexer  *indexer.Indexer
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWorker creates a Worker polling at the given interval.
func NewWorker(st store.Store, ix *indexer.Indexer, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		store:    st,
		indexer:  ix,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the claim loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop signals the worker and waits up to maxWait for the current job to
// finish. Safe to call more than once. Returns an error if the worker did not
// stop in time.
func (w *Worker) Stop(maxWait time.Duration) error {
	w.stopOnce.Do(func() { close(w.stop) })
	select {
	case <-w.done:
		return nil
	case <-time.After(maxWait):
		return eris.New("worker: shutdown wait elapsed with job still running")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	log := zap.L().With(zap.String("component", "worker"))
	log.Info("worker started", zap.Duration("poll_interval", w.interval))

	for {
		select {
		case <-w.stop:
			log.Info("worker stopped")
			return
		case <-ctx.Done():
			log.Info("worker context canceled")
			return
		default:
		}

		job, err := w.store.ClaimNextPending(ctx)
		if err != nil {
			log.Error("claim failed", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *model.Job) {
	log := zap.L().With(zap.String("component", "worker"), zap.String("job_id", job.ID))
	log.Info("job started", zap.String("location", job.Location), zap.String("category", job.Category))

	progress := func(p model.Progress) {
		if err := w.store.UpdateJobProgress(ctx, job.ID, &p); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}
	}

	result, err := w.indexer.Run(ctx, job.Location, job.Category, progress)
	if err != nil {
		log.Error("job failed", zap.Error(err))
		if markErr := w.store.MarkJobFailed(ctx, job.ID, err.Error()); markErr != nil {
			log.Error("mark failed errored", zap.Error(markErr))
		}
		return
	}

	if err := w.store.MarkJobCompleted(ctx, job.ID, result); err != nil {
		log.Error("mark completed errored", zap.Error(err))
		return
	}
	log.Info("job completed",
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("merged", result.Merged),
		zap.Int("updated", result.Updated),
	)
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-w.stop:
	case <-ctx.Done():
	case <-timer.C:
	}
}
