package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/metrics"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxPollBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	retryBase = 30 * time.Second
	retryCap  = time.Hour
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchDueTx(tx *gorm.DB, limit int, now time.Time) ([]models.OutboxEvent, error)
	MarkDeliveredTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkRetryTx(tx *gorm.DB, id uuid.UUID, cause error, nextAttemptAt time.Time) error
}

type deadLetterer interface {
	DeadLetterTx(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DeadLetters      deadLetterer
	Registry         registryResolver
	Metrics          *metrics.OutboxDispatchMetrics
	PublisherFactory publisherFactory
	Now              func() time.Time
}

// Service claims due outbox rows and publishes them to the topic mapped to
// each row's destination.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	deadLetters      deadLetterer
	registry         registryResolver
	metrics          *metrics.OutboxDispatchMetrics
	publisherFactory publisherFactory
	now              func() time.Time
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter writer is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		deadLetters:      params.DeadLetters,
		registry:         params.Registry,
		metrics:          params.Metrics,
		publisherFactory: factory,
		now:              now,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another; an empty one sleeps for the poll interval.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		default:
		}

		claimed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox dispatch batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxPollBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = s.pollInterval

		if claimed >= s.batchSize {
			continue
		}
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// processBatch claims due rows under SKIP LOCKED and settles each one in the
// same transaction.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchDueTx(tx, s.batchSize, s.now().UTC())
		if err != nil {
			return err
		}
		claimed = len(events)
		s.metrics.ObserveBatch(claimed)
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	start := time.Now()
	fields := eventFields(event)
	logCtx := s.logg.WithFields(ctx, fields)

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		s.metrics.Record(string(event.Destination), metrics.OutcomeDeadLettered, time.Since(start))
		return s.deadLetters.DeadLetterTx(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = s.logg.WithField(logCtx, "topic", resolved.Topic)

	err = s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkDeliveredTx(tx, event.ID, s.now().UTC()); markErr != nil {
			return fmt.Errorf("mark delivered %s: %w", event.ID, markErr)
		}
		s.metrics.Record(string(event.Destination), metrics.OutcomeDelivered, time.Since(start))
		s.logg.Info(logCtx, "outbox event delivered")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		s.metrics.Record(string(event.Destination), metrics.OutcomeDeadLettered, time.Since(start))
		return s.deadLetters.DeadLetterTx(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	attempts := event.AttemptCount + 1
	if attempts >= s.attemptBudget(event) {
		s.metrics.Record(string(event.Destination), metrics.OutcomeDeadLettered, time.Since(start))
		return s.deadLetters.DeadLetterTx(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err))
	}

	next := s.now().UTC().Add(retryDelay(attempts))
	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"error":           err.Error(),
		"next_attempt_at": next,
	}), "outbox publish failed; rescheduled")
	if markErr := s.repo.MarkRetryTx(tx, event.ID, err, next); markErr != nil {
		return fmt.Errorf("mark retry %s: %w", event.ID, markErr)
	}
	s.metrics.Record(string(event.Destination), metrics.OutcomeRetried, time.Since(start))
	return nil
}

// attemptBudget prefers the row's own budget over the worker default.
func (s *Service) attemptBudget(event models.OutboxEvent) int {
	if event.MaxAttempts > 0 {
		return event.MaxAttempts
	}
	return s.maxAttempts
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := s.publisherFactory(resolved.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", resolved.Topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"partition_key":  event.PartitionKey,
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"destination":    string(event.Destination),
			"occurred_at":    resolved.Envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", resolved.Topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"destination":    event.Destination,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

// retryDelay doubles from retryBase per attempt, capped at retryCap.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryCap {
			return retryCap
		}
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
