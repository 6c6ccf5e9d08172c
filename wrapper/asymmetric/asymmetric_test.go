package asymmetric_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/memory"
	"github.com/thatique/keep/backendtest"
	"github.com/thatique/keep/wrapper/asymmetric"
)

type harness struct {
	keys  asymmetric.KeyPair
	inner keep.Backend
}

func (h *harness) MakeBackend(ctx context.Context) (keep.Backend, error) {
	return asymmetric.New(h.inner, h.keys), nil
}

func (h *harness) Close() {}

func newHarness(ctx context.Context, t *testing.T) (backendtest.Harness, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &harness{keys: asymmetric.KeyPair{Public: &priv.PublicKey, Private: priv}, inner: memory.New()}, nil
}

func TestConformance(t *testing.T) {
	backendtest.RunConformanceTests(t, newHarness)
}
