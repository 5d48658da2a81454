package cron

import (
	"context"
	"testing"
)

type namedJob string

func (n namedJob) Name() string                      { return string(n) }
func (n namedJob) Run(context.Context) (int, error) { return 0, nil }

func TestRegistryKeepsOrderAndRejectsDuplicates(t *testing.T) {
	registry, err := NewRegistry(namedJob("a"), nil, namedJob("b"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Register(namedJob("a")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = namedJob("mutated")
	if registry.Jobs()[0].Name() != "a" {
		t.Fatal("Jobs must return a copy")
	}
}

func TestNewRegistryDuplicate(t *testing.T) {
	if _, err := NewRegistry(namedJob("a"), namedJob("a")); err == nil {
		t.Fatal("expected error")
	}
}
