package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

const (
	DefaultMaxAttempts = 10
	envelopeVersion    = 1
)

// ErrDLQItemClosed is returned when a DLQ item was already resolved or skipped.
var ErrDLQItemClosed = errors.New("dlq item already closed")

// Event describes an outbox row to write.
type Event struct {
	EventType     enums.OutboxEventType
	AggregateType enums.AggregateType
	AggregateID   uuid.UUID
	Destination   enums.OutboxDestination
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
	// Delay postpones the first delivery attempt.
	Delay         time.Duration
	MaxAttempts   int
	CorrelationID string
	CausationID   string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB          txRunner
	Repository  *Repository
	DLQ         *DLQRepository
	Logger      *logger.Logger
	MaxAttempts int
	Now         func() time.Time
}

type Service struct {
	db          txRunner
	repo        *Repository
	dlq         *DLQRepository
	logg        *logger.Logger
	maxAttempts int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dlq repository required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:          params.DB,
		repo:        params.Repository,
		dlq:         params.DLQ,
		logg:        params.Logger,
		maxAttempts: maxAttempts,
		now:         now,
	}, nil
}

// Enqueue writes a single event in its own transaction.
func (s *Service) Enqueue(ctx context.Context, event Event) (*models.OutboxEvent, error) {
	var row *models.OutboxEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.EnqueueInTransaction(ctx, tx, event)
		return err
	})
	return row, err
}

// EnqueueInTransaction writes the event with the caller's transaction so it
// commits or rolls back together with the business change.
func (s *Service) EnqueueInTransaction(ctx context.Context, tx *gorm.DB, event Event) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	row, err := s.buildRow(event)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	s.logQueued(ctx, row)
	return row, nil
}

// EnqueueBatch writes all events atomically: either every row is stored or none.
func (s *Service) EnqueueBatch(ctx context.Context, events []Event) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.EnqueueBatchInTransaction(ctx, tx, events)
		return err
	})
	return rows, err
}

func (s *Service) EnqueueBatchInTransaction(ctx context.Context, tx *gorm.DB, events []Event) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	rows := make([]models.OutboxEvent, 0, len(events))
	for i, event := range events {
		row, err := s.buildRow(event)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		rows = append(rows, *row)
	}
	if err := s.repo.InsertBatch(tx, rows); err != nil {
		return nil, fmt.Errorf("insert outbox batch: %w", err)
	}
	for i := range rows {
		s.logQueued(ctx, &rows[i])
	}
	return rows, nil
}

// EnqueueBestEffort writes a non-critical event inside a savepoint. A failure
// is logged and rolled back to the savepoint, leaving the caller's
// transaction usable.
func (s *Service) EnqueueBestEffort(ctx context.Context, tx *gorm.DB, event Event) {
	if tx == nil {
		return
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		_, err := s.EnqueueInTransaction(ctx, sp, event)
		return err
	})
	if err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
			"destination":    event.Destination,
		})
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "non-critical outbox event dropped")
	}
}

// DeadLetterTx moves an event to the DLQ and marks the source row dead_lettered.
func (s *Service) DeadLetterTx(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	var msg *string
	if cause != nil {
		text := cause.Error()
		msg = &text
	}
	entry := &models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Destination:   event.Destination,
		Payload:       event.Payload,
		PartitionKey:  event.PartitionKey,
		CorrelationID: event.CorrelationID,
		CausationID:   event.CausationID,
		ErrorReason:   reason,
		ErrorMessage:  msg,
		AttemptCount:  event.AttemptCount + 1,
		Status:        enums.OutboxDLQStatusPending,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkDeadLetteredTx(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark dead lettered %s: %w", event.ID, err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    event.ID.String(),
			"event_type":   event.EventType,
			"error_reason": reason,
		})
		s.logg.Warn(logCtx, "outbox event dead lettered")
	}
	return nil
}

// RequeueFromDLQ creates a fresh outbox row from a DLQ item and marks the item resolved.
func (s *Service) RequeueFromDLQ(ctx context.Context, dlqID uuid.UUID, actorID *uuid.UUID) (*models.OutboxEvent, error) {
	var requeued *models.OutboxEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.loadOpenDLQItem(tx, dlqID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		requeued = &models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     item.EventType,
			AggregateType: item.AggregateType,
			AggregateID:   item.AggregateID,
			Destination:   item.Destination,
			Payload:       item.Payload,
			Status:        enums.OutboxStatusPending,
			MaxAttempts:   s.maxAttempts,
			NextAttemptAt: now,
			PartitionKey:  item.PartitionKey,
			CorrelationID: item.CorrelationID,
			CausationID:   item.CausationID,
		}
		if err := s.repo.Insert(tx, requeued); err != nil {
			return fmt.Errorf("insert requeued event: %w", err)
		}
		return s.closeDLQ(tx, item.ID, enums.OutboxDLQStatusResolved, &requeued.ID, actorID, nil, now)
	})
	if err != nil {
		return nil, err
	}
	s.logQueued(ctx, requeued)
	return requeued, nil
}

// ResolveDLQItem marks a DLQ item permanently skipped without requeueing it.
func (s *Service) ResolveDLQItem(ctx context.Context, dlqID uuid.UUID, actorID *uuid.UUID, note string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.loadOpenDLQItem(tx, dlqID)
		if err != nil {
			return err
		}
		var notePtr *string
		if note != "" {
			notePtr = &note
		}
		return s.closeDLQ(tx, item.ID, enums.OutboxDLQStatusSkipped, nil, actorID, notePtr, s.now().UTC())
	})
}

// ListDLQ returns DLQ items, newest failure first.
func (s *Service) ListDLQ(ctx context.Context, status enums.OutboxDLQStatus, limit int) ([]models.OutboxDLQ, error) {
	return s.dlq.List(ctx, status, limit)
}

func (s *Service) loadOpenDLQItem(tx *gorm.DB, dlqID uuid.UUID) (*models.OutboxDLQ, error) {
	item, err := s.dlq.FindForUpdateTx(tx, dlqID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeDLQItemNotFound, "dlq item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dlq item")
	}
	if item.Status != enums.OutboxDLQStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "dlq item is already %s", item.Status)
	}
	return item, nil
}

func (s *Service) closeDLQ(tx *gorm.DB, id uuid.UUID, status enums.OutboxDLQStatus, requeuedID, actorID *uuid.UUID, note *string, at time.Time) error {
	if err := s.dlq.CloseTx(tx, id, status, requeuedID, actorID, note, at); err != nil {
		if errors.Is(err, ErrDLQItemClosed) {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "dlq item was closed concurrently")
		}
		return err
	}
	return nil
}

func (s *Service) buildRow(event Event) (*models.OutboxEvent, error) {
	if event.EventType == "" {
		return nil, errors.New("event type required")
	}
	if !event.AggregateType.IsValid() {
		return nil, fmt.Errorf("invalid aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, errors.New("aggregate id required")
	}
	destination := event.Destination
	if destination == "" {
		destination = enums.DestinationNotification
	}
	if !destination.IsValid() {
		return nil, fmt.Errorf("invalid destination %q", destination)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	now := s.now().UTC()
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	id := uuid.New()
	envelope := PayloadEnvelope{
		Version:       envelopeVersion,
		EventID:       id.String(),
		EventType:     string(event.EventType),
		OccurredAt:    occurredAt,
		CorrelationID: event.CorrelationID,
		CausationID:   event.CausationID,
		Actor:         event.Actor,
		Data:          data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	maxAttempts := event.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}
	delay := event.Delay
	if delay < 0 {
		delay = 0
	}

	return &models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Destination:   destination,
		Payload:       json.RawMessage(payload),
		Status:        enums.OutboxStatusPending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now.Add(delay),
		PartitionKey:  event.AggregateID.String(),
		CorrelationID: optionalString(event.CorrelationID),
		CausationID:   optionalString(event.CausationID),
	}, nil
}

func (s *Service) logQueued(ctx context.Context, row *models.OutboxEvent) {
	if s.logg == nil || row == nil {
		return
	}
	fields := map[string]any{
		"event_id":       row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_id":   row.AggregateID.String(),
		"aggregate_type": row.AggregateType,
		"destination":    row.Destination,
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event queued")
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
