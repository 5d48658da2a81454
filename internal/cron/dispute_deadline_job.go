package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

const defaultDeadlineBatch = 100

type disputeEscalator interface {
	EscalateOverdue(ctx context.Context, limit int) (int, error)
}

type DisputeDeadlineJobParams struct {
	Logger    *logger.Logger
	Disputes  disputeEscalator
	BatchSize int
}

// NewDisputeDeadlineJob escalates disputes whose seller response deadline
// passed without a response.
func NewDisputeDeadlineJob(params DisputeDeadlineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Disputes == nil {
		return nil, fmt.Errorf("dispute service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDeadlineBatch
	}
	return &disputeDeadlineJob{logg: params.Logger, disputes: params.Disputes, batch: batch}, nil
}

type disputeDeadlineJob struct {
	logg     *logger.Logger
	disputes disputeEscalator
	batch    int
}

func (j *disputeDeadlineJob) Name() string { return "dispute_deadlines" }

func (j *disputeDeadlineJob) Run(ctx context.Context) (int, error) {
	escalated, err := j.disputes.EscalateOverdue(ctx, j.batch)
	if escalated > 0 {
		j.logg.Info(j.logg.WithField(ctx, "escalated", escalated), "overdue disputes escalated")
	}
	return escalated, err
}
