package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"inventaire-ai/internal/scanner"
	"inventaire-ai/internal/service"
	"inventaire-ai/internal/util"

	"go.uber.org/zap"
)

// Worker re-runs the batch pass over a directory at a fixed interval, so
// photos dropped into the folder while the program runs get picked up
// without a manual rescan. Reconciliation is idempotent, which is what
// makes the periodic re-run safe.
type Worker struct {
	engine   *service.Engine
	scanner  *scanner.Scanner
	dir      string
	opts     service.ScanOptions
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(engine *service.Engine, sc *scanner.Scanner, dir string, opts service.ScanOptions, interval time.Duration) *Worker {
	return &Worker{
		engine:   engine,
		scanner:  sc,
		dir:      dir,
		opts:     opts,
		interval: interval,
		logger:   util.GetLogger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. The first pass runs immediately.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("Watch worker started",
		zap.String("dir", w.dir), zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("Watch worker stopping", zap.String("reason", ctx.Err().Error()))
			return
		case <-w.stop:
			w.logger.Info("Watch worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	target, err := w.scanner.Resolve(w.dir)
	if err != nil {
		if !errors.Is(err, scanner.ErrNoImages) {
			w.logger.Warn("Watch pass could not resolve target", zap.Error(err))
		}
		return
	}
	if err := w.engine.ProcessAll(ctx, target, w.opts); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("Watch pass failed", zap.Error(err))
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
