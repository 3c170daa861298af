package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/logging"
)

// DefaultWatchInterval is the poll interval when the config does not set
// one.
const DefaultWatchInterval = 5 * time.Minute

// Watcher runs the engine on a fixed interval until stopped. A run that
// overlaps a still-active one is skipped rather than queued.
type Watcher struct {
	engine   *Engine
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher builds a watcher around an engine.
func NewWatcher(engine *Engine, interval time.Duration, logger *logging.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the poll loop. An immediate first sync runs before the
// ticker takes over.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.pollLoop(ctx)

	return nil
}

// Stop shuts the loop down and waits for an in-flight run to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh := w.stopCh
	w.mu.Unlock()

	close(stopCh)
	w.wg.Wait()
}

// IsRunning reports whether the poll loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	w.syncOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.syncOnce(ctx)
		}
	}
}

func (w *Watcher) syncOnce(ctx context.Context) {
	result, err := w.engine.SyncNow(ctx)
	if err != nil {
		var busy *errors.ErrSyncInProgress
		if stderrors.As(err, &busy) {
			w.logger.Debug("skipping scheduled sync, previous run still active")
			return
		}
		w.logger.Warn("scheduled sync failed", "error", err.Error())
		return
	}

	w.logger.Debug("scheduled sync finished",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"watermark", result.Watermark)
}
