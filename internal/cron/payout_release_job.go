package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

const defaultReleaseBatch = 100

type payoutReleaser interface {
	ReleaseDue(ctx context.Context, limit int) (int, error)
}

type PayoutReleaseJobParams struct {
	Logger    *logger.Logger
	Payouts   payoutReleaser
	BatchSize int
}

// NewPayoutReleaseJob moves held payouts whose release date passed back to
// processing.
func NewPayoutReleaseJob(params PayoutReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReleaseBatch
	}
	return &payoutReleaseJob{logg: params.Logger, payouts: params.Payouts, batch: batch}, nil
}

type payoutReleaseJob struct {
	logg    *logger.Logger
	payouts payoutReleaser
	batch   int
}

func (j *payoutReleaseJob) Name() string { return "payout_release" }

func (j *payoutReleaseJob) Run(ctx context.Context) (int, error) {
	released, err := j.payouts.ReleaseDue(ctx, j.batch)
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", released), "held payouts released")
	}
	return released, err
}
