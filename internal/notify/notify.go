package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "inkbook/internal/errors"
	"inkbook/internal/logger"
	"inkbook/internal/metrics"
	"inkbook/internal/models"

	"github.com/google/uuid"
)

// Channel names
const (
	ChannelCalendar = "calendar"
	ChannelCRM      = "crm"
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Channel sets per trigger
var (
	BookingCreatedChannels        = []string{ChannelCRM, ChannelEmail}
	PaymentConfirmedChannels      = []string{ChannelCalendar, ChannelEmail, ChannelWhatsApp, ChannelCRM}
	PaymentConfirmedBasicChannels = []string{ChannelEmail, ChannelCRM}
)

// DefaultJobTimeout bounds one channel run.
const DefaultJobTimeout = 10 * time.Second

// Channel is one downstream side effect of a booking event.
type Channel interface {
	Name() string
	Send(ctx context.Context, job models.NotificationJob) error
}

// Dispatcher fires notifications without making the caller wait for them.
type Dispatcher interface {
	Dispatch(ctx context.Context, event string, booking models.Booking, channels []string)
}

// NewJobs builds one job per channel.
func NewJobs(event string, booking models.Booking, channels []string) []models.NotificationJob {
	now := time.Now().UTC()
	jobs := make([]models.NotificationJob, 0, len(channels))
	for _, ch := range channels {
		jobs = append(jobs, models.NotificationJob{
			ID:        uuid.New().String(),
			Event:     event,
			Channel:   ch,
			Booking:   booking,
			Attempt:   1,
			Timestamp: now,
		})
	}
	return jobs
}

// Registry runs jobs against the registered channels.
type Registry struct {
	channels map[string]Channel
}

func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Name()] = ch
	}
	return r
}

// Run executes one job. Unconfigured channels are skipped, not failed.
func (r *Registry) Run(ctx context.Context, job models.NotificationJob) error {
	log := logger.WithContext(ctx).With("booking_id", job.Booking.ID, "channel", job.Channel, "event", job.Event)

	ch, ok := r.channels[job.Channel]
	if !ok {
		metrics.Notifications.WithLabelValues(job.Channel, metrics.ResultSkipped).Inc()
		log.Warn("No notifier registered for channel")
		return nil
	}

	start := time.Now()
	err := ch.Send(ctx, job)
	metrics.NotificationDuration.WithLabelValues(job.Channel).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues(job.Channel, metrics.ResultSent).Inc()
		log.Info("Notification sent")
		return nil
	case errors.Is(err, apperrors.ErrNotConfigured):
		metrics.Notifications.WithLabelValues(job.Channel, metrics.ResultSkipped).Inc()
		log.Info("Notification skipped, channel not configured")
		return nil
	default:
		metrics.Notifications.WithLabelValues(job.Channel, metrics.ResultFailed).Inc()
		log.Error("Failed to send notification", "error", err)
		return err
	}
}

// HandleMessage runs a job delivered by the broker. Only retryable
// failures are returned so the broker redelivers them.
func (r *Registry) HandleMessage(ctx context.Context, data []byte) error {
	var job models.NotificationJob
	if err := json.Unmarshal(data, &job); err != nil {
		logger.WithContext(ctx).Error("Failed to unmarshal notification job", "error", err)
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, DefaultJobTimeout)
	defer cancel()

	if err := r.Run(jobCtx, job); err != nil {
		if apperrors.IsRetryable(err) {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
	}
	return nil
}
