package compress_test

import (
	"context"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/memory"
	"github.com/thatique/keep/backendtest"
	"github.com/thatique/keep/wrapper/compress"
)

type harness struct {
	codec compress.Codec
	inner keep.Backend
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return compress.New(h.inner, h.codec), nil
}

func (h *harness) Close() {}

func TestConformance(t *testing.T) {
	for _, tc := range []struct {
		name  string
		codec compress.Codec
	}{
		{"Deflate", compress.Deflate},
		{"Gzip", compress.Gzip},
		{"Brotli", compress.Brotli},
		{"Zstd", compress.Zstd},
	} {
		t.Run(tc.name, func(t *testing.T) {
			codec := tc.codec
			backendtest.RunConformanceTests(t, func(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
				return &harness{codec: codec, inner: memory.New()}, nil
			})
		})
	}
}
