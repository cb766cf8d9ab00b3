package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Backfiller rebuilds every client rollup from the bookings table.
type Backfiller interface {
	Backfill(ctx context.Context) (int, error)
}

// ClientBackfillJob periodically rebuilds the CRM so rollups missed by a
// lost notification converge.
type ClientBackfillJob struct {
	clients  Backfiller
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClientBackfillJob creates a new client backfill job
func NewClientBackfillJob(clients Backfiller, interval time.Duration) *ClientBackfillJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ClientBackfillJob{
		clients:  clients,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs one backfill immediately and then every interval. Runs never
// overlap.
func (j *ClientBackfillJob) Start(ctx context.Context) {
	slog.Info("Starting client backfill job", "interval", j.interval.String())

	j.ticker = time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.run(ctx)
			case <-ctx.Done():
				return
			case <-j.done:
				slog.Info("Client backfill job stopped")
				return
			}
		}
	}()
}

// Stop stops the ticker and waits for a running backfill. It is safe to call
// more than once.
func (j *ClientBackfillJob) Stop() {
	j.stopOnce.Do(func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.done)
	})
	j.wg.Wait()
}

func (j *ClientBackfillJob) run(ctx context.Context) {
	start := time.Now()

	n, err := j.clients.Backfill(ctx)
	if err != nil {
		// Partial failures still rebuilt the rest
		slog.Error("Client backfill finished with errors", "rebuilt", n, "error", err)
		return
	}

	slog.Info("Client backfill finished", "rebuilt", n, "elapsed", time.Since(start).String())
}
