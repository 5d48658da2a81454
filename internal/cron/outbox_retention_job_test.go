package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Retention:  48 * time.Hour,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}

	affected, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if affected != 7 {
		t.Fatalf("expected 7 affected, got %d", affected)
	}
	if want := now.Add(-48 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestOutboxRetentionJobDefaultsAndErrors(t *testing.T) {
	repo := &fakeOutboxPurger{err: errors.New("boom")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if got := job.(*outboxRetentionJob).retention; got != defaultOutboxRetention {
		t.Fatalf("expected default retention, got %s", got)
	}
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{})}); err == nil {
		t.Fatal("expected missing repository error")
	}
}

type fakeOutboxPurger struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeOutboxPurger) DeleteDeliveredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}
