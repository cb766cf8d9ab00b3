package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"inkbook/internal/app"
	"inkbook/internal/config"
	"inkbook/internal/messaging"
	"inkbook/internal/models"
	"inkbook/internal/notify"
	"inkbook/internal/service"

	"github.com/nats-io/stan.go"
)

// ConsumerService runs notification jobs published by the api binary.
type ConsumerService struct {
	cfg      *config.Config
	core     *app.Core
	registry *notify.Registry

	nats   *messaging.NATSClient
	sub    stan.Subscription
	rabbit *messaging.RabbitClient

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	core, err := app.Open(cfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerService{
		cfg:      cfg,
		core:     core,
		registry: core.Registry(),
	}, nil
}

// Clients exposes the CRM service for the backfill job.
func (cs *ConsumerService) Clients() *service.ClientService {
	return cs.core.Clients
}

// Start subscribes to the broker selected by DISPATCH_MODE. In memory mode
// there is nothing to consume and only the jobs run.
func (cs *ConsumerService) Start(ctx context.Context) error {
	ctx, cs.cancel = context.WithCancel(ctx)

	switch cs.cfg.DispatchMode {
	case config.DispatchNATS:
		nc, err := messaging.NewNATSClient(cs.cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		cs.nats = nc

		sub, err := nc.SubscribeQueue(ctx, models.SubjectNotifyJobs, "notifiers", cs.registry.HandleMessage)
		if err != nil {
			return err
		}
		cs.sub = sub

	case config.DispatchRabbitMQ:
		rc, err := messaging.NewRabbitClient(cs.cfg.RabbitMQ, models.SubjectNotifyJobs)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		cs.rabbit = rc

		cs.wg.Add(1)
		go func() {
			defer cs.wg.Done()
			if err := rc.Consume(ctx, cs.registry.HandleMessage); err != nil {
				slog.Error("RabbitMQ consumer stopped", "error", err)
			}
		}()

	default:
		slog.Warn("Dispatch mode has no broker, consumers only run background jobs", "mode", cs.cfg.DispatchMode)
	}

	slog.Info("All consumers started successfully", "mode", cs.cfg.DispatchMode)
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.cancel != nil {
		cs.cancel()
	}

	if cs.sub != nil {
		// Close keeps the durable subscription for the next start
		if err := cs.sub.Close(); err != nil {
			slog.Error("Error closing NATS subscription", "error", err)
		}
	}
	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for RabbitMQ consumer")
	}

	if cs.rabbit != nil {
		if err := cs.rabbit.Close(); err != nil {
			slog.Error("Error closing RabbitMQ connection", "error", err)
		}
	}

	return cs.core.Close()
}
