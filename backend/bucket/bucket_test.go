package bucket_test

import (
	"context"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/bucket"
	"github.com/thatique/keep/backendtest"
)

type harness struct {
	client *fakeClient
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return bucket.New(h.client, nil), nil
}

func (h *harness) Close() {}

func newHarness(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
	return &harness{client: newFakeClient()}, nil
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceTests(t, newHarness)
}
