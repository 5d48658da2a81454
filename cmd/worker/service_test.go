package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConsumer struct{ err error }

func (f fakeConsumer) Run(context.Context) error { return f.err }

func newWorker(t *testing.T, redisErr error, consumerErr error) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{Output: io.Discard}),
		DB:        fakePinger{},
		Redis:     fakePinger{err: redisErr},
		PubSub:    fakePinger{},
		Consumers: map[string]consumer{"invoicing": fakeConsumer{err: consumerErr}},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunStopsOnDependencyFailure(t *testing.T) {
	svc := newWorker(t, errors.New("no redis"), nil)
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := newWorker(t, nil, boom)
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{Output: io.Discard}),
		DB:     fakePinger{}, Redis: fakePinger{}, PubSub: fakePinger{},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
