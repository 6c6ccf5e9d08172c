package memory_test

import (
	"context"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/memory"
	"github.com/thatique/keep/backendtest"
)

type harness struct {
	b keep.Backend
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return h.b, nil
}

func (h *harness) Close() {}

func newHarness(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
	return &harness{b: memory.New()}, nil
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceTests(t, newHarness)
}
