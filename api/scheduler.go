/*
scheduler.go - Background flush of batched writes

PURPOSE:
  Game results are committed with batched flush and sit dirty in the
  storage coordinator's cache. This scheduler writes them to the durable
  store on a fixed interval, and once more on Stop.

DESIGN:
  - Runs a background goroutine with configurable interval
  - A failed flush leaves records dirty; the next tick retries them
  - Phase transitions flush on their own, so the interval only bounds how
    many results a crash can lose

USAGE:
  scheduler := NewFlushScheduler(coord, log)
  scheduler.Interval = 5 * time.Second
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - storage/coordinator.go: Flush
  - handlers.go: Flush endpoint (manual flush)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/storage"
)

// FlushScheduler periodically flushes the coordinator's dirty records.
type FlushScheduler struct {
	Coord    *storage.Coordinator
	Interval time.Duration
	Enabled  bool

	log    *logrus.Entry
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewFlushScheduler creates a new scheduler.
func NewFlushScheduler(coord *storage.Coordinator, log *logrus.Entry) *FlushScheduler {
	return &FlushScheduler{
		Coord:    coord,
		Interval: 5 * time.Second,
		Enabled:  true,
		log:      log.WithField("component", "flusher"),
	}
}

// Start begins the scheduler.
func (fs *FlushScheduler) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.Enabled || fs.Interval <= 0 {
		fs.log.Info("disabled, not starting")
		return
	}
	if fs.ticker != nil {
		return
	}

	fs.ticker = time.NewTicker(fs.Interval)
	fs.stop = make(chan struct{})
	fs.wg.Add(1)

	go fs.run()

	fs.log.WithField("interval", fs.Interval).Info("started")
}

// Stop stops the scheduler and performs a final flush.
func (fs *FlushScheduler) Stop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.ticker != nil {
		fs.ticker.Stop()
		close(fs.stop)
		fs.wg.Wait()
		fs.ticker = nil
	}
	fs.flush()
	fs.log.Info("stopped")
}

func (fs *FlushScheduler) run() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ticker.C:
			fs.flush()
		case <-fs.stop:
			return
		}
	}
}

func (fs *FlushScheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := fs.Coord.Flush(ctx)
	if err != nil {
		fs.log.WithError(err).Warn("flush failed, will retry")
		return
	}
	if n > 0 {
		fs.log.WithField("written", n).Debug("flushed batched writes")
	}
}
