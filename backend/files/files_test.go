package files_test

import (
	"context"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/files"
	"github.com/thatique/keep/backendtest"
)

type harness struct {
	dir string
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return files.New(h.dir, nil)
}

func (h *harness) Close() {}

func newHarness(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
	return &harness{dir: t.TempDir()}, nil
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceTests(t, newHarness)
}
