package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
	"github.com/nutriadmin/admin-api/pkg/logger"
	"github.com/nutriadmin/admin-api/pkg/messaging"
	"github.com/nutriadmin/admin-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Retention is how long processed events are kept. Zero disables cleanup.
	Retention time.Duration
	Channel   string
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("retry delay must be greater than 0")
	case c.Channel == "":
		return fmt.Errorf("channel is required")
	}
	return nil
}

// OutboxProcessor publishes committed outbox events to the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor",
		"channel", p.config.Channel,
		"batch_size", p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events and returns how many were
// delivered. A failed publish is rescheduled with a linear backoff until
// RetryAttempts is reached, after which the event is marked failed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	delivered := 0
	err := p.repo.WithLockedBatch(ctx, p.config.BatchSize, func(batch repository.OutboxBatch) error {
		for _, event := range batch.Events() {
			if err := p.processEvent(ctx, batch, event); err != nil {
				return err
			}
			if event.Status == string(model.OutboxStatusProcessed) {
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "error").Inc()
		return 0, fmt.Errorf("failed to process outbox batch: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("process_outbox", "success").Inc()
	return delivered, nil
}

// processEvent only returns an error when the status update fails; publish
// failures are recorded on the event.
func (p *OutboxProcessor) processEvent(ctx context.Context, batch repository.OutboxBatch, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: event.Payload,
	}

	pubErr := p.broker.Publish(ctx, p.config.Channel, msg)
	if pubErr == nil {
		if err := batch.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
		}
		event.Status = string(model.OutboxStatusProcessed)
		p.metrics.OutboxEventsProcessed.Inc()
		return nil
	}

	errStr := pubErr.Error()
	attempt := event.RetryCount + 1
	status := model.OutboxStatusRetry
	var retryAt *time.Time
	if attempt >= p.config.RetryAttempts {
		status = model.OutboxStatusFailed
		p.metrics.OutboxEventsFailed.Inc()
	} else {
		at := p.now().Add(time.Duration(attempt) * p.config.RetryDelay)
		retryAt = &at
	}

	p.logger.Error(pubErr, "Failed to publish event",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"attempt", attempt,
		"status", string(status))

	if err := batch.UpdateStatus(ctx, event.ID, status, &errStr, retryAt); err != nil {
		return fmt.Errorf("failed to update event %s status: %w", event.ID, err)
	}
	event.Status = string(status)
	event.RetryCount = attempt
	return nil
}
