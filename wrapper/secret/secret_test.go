package secret_test

import (
	"context"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/memory"
	"github.com/thatique/keep/backendtest"
	"github.com/thatique/keep/wrapper/secret"
)

type harness struct {
	inner keep.Backend
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return secret.New(h.inner, secret.Options{Password: "hunter2", Salt: "conformance"}), nil
}

func (h *harness) Close() {}

func newHarness(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
	return &harness{inner: memory.New()}, nil
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceTests(t, newHarness)
}
