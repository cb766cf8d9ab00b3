package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inkbook/internal/logger"
	"inkbook/internal/models"
)

// MemoryDispatcher runs every channel in its own goroutine. Jobs use a
// context detached from the caller so they outlive the request.
type MemoryDispatcher struct {
	registry *Registry
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewMemoryDispatcher(registry *Registry, timeout time.Duration) *MemoryDispatcher {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &MemoryDispatcher{registry: registry, timeout: timeout}
}

func (d *MemoryDispatcher) Dispatch(ctx context.Context, event string, booking models.Booking, channels []string) {
	for _, job := range NewJobs(event, booking, channels) {
		d.dispatchJob(ctx, job)
	}
}

func (d *MemoryDispatcher) dispatchJob(ctx context.Context, job models.NotificationJob) {
	jobCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithContext(jobCtx).Error("Notifier panicked",
					"booking_id", job.Booking.ID, "channel", job.Channel, "panic", fmt.Sprint(rec))
			}
		}()

		runCtx, cancel := context.WithTimeout(jobCtx, d.timeout)
		defer cancel()

		// Failures are logged and counted by the registry.
		_ = d.registry.Run(runCtx, job)
	}()
}

// Wait blocks until every dispatched job finished.
func (d *MemoryDispatcher) Wait() {
	d.wg.Wait()
}

// Publisher is a durable broker transport.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// BrokerDispatcher hands jobs to the broker for the consumers process.
// A job that cannot be published runs in process instead.
type BrokerDispatcher struct {
	publisher Publisher
	subject   string
	fallback  *MemoryDispatcher
}

func NewBrokerDispatcher(publisher Publisher, subject string, fallback *MemoryDispatcher) *BrokerDispatcher {
	return &BrokerDispatcher{
		publisher: publisher,
		subject:   subject,
		fallback:  fallback,
	}
}

func (d *BrokerDispatcher) Dispatch(ctx context.Context, event string, booking models.Booking, channels []string) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, job := range NewJobs(event, booking, channels) {
		if err := d.publisher.Publish(pubCtx, d.subject, job); err != nil {
			// Log error but don't fail the operation
			logger.WithContext(ctx).Error("Failed to publish notification job, running in process",
				"booking_id", booking.ID, "channel", job.Channel, "error", err)
			d.fallback.dispatchJob(ctx, job)
		}
	}
}

// Wait blocks until in-process fallbacks finished.
func (d *BrokerDispatcher) Wait() {
	d.fallback.Wait()
}
