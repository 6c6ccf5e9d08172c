// Package backendtest provides a reusable conformance suite for
// keep.Backend implementations, analogous to a storage driver's
// conformance test pack: write it once against the interface and run it
// against every concrete backend.
package backendtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/thatique/keep"
)

// Harness creates the keep.Backend under test. Multiple calls to
// MakeBackend during a single test run must refer to the same underlying
// storage, so tests can verify visibility across separately constructed
// clients.
type Harness interface {
	MakeBackend(ctx context.Context) (keep.Backend, error)
	Close()
}

// HarnessMaker constructs a Harness. It's called once per top-level
// subtest; Harness.Close is called when that subtest finishes.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests exercises the invariants every keep.Backend must
// satisfy.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Run("TestWriteRead", func(t *testing.T) { testWriteRead(t, newHarness) })
	t.Run("TestAbsent", func(t *testing.T) { testAbsent(t, newHarness) })
	t.Run("TestCAS", func(t *testing.T) { testCAS(t, newHarness) })
	t.Run("TestDelete", func(t *testing.T) { testDelete(t, newHarness) })
	t.Run("TestRename", func(t *testing.T) { testRename(t, newHarness) })
	t.Run("TestList", func(t *testing.T) { testList(t, newHarness) })
	t.Run("TestStream", func(t *testing.T) { testStream(t, newHarness) })
	t.Run("TestCASRace", func(t *testing.T) { testCASRace(t, newHarness) })
}

func mkBackend(ctx context.Context, t *testing.T, newHarness HarnessMaker) (keep.Backend, func()) {
	t.Helper()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.MakeBackend(ctx)
	if err != nil {
		h.Close()
		t.Fatal(err)
	}
	return b, func() { b.Close(); h.Close() }
}

func testWriteRead(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	data := []byte("hello, keep")
	id := keep.ContentIDOf(data)

	ok, err := b.Write(ctx, id, data, keep.MimeText, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first write of a fresh id should succeed")
	}

	obj, err := b.Read(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if obj == nil {
		t.Fatal("got nil object after write")
	}
	if !bytes.Equal(obj.Data, data) {
		t.Errorf("got %q want %q", obj.Data, data)
	}
	if obj.Type != keep.MimeText {
		t.Errorf("got type %q want %q", obj.Type, keep.MimeText)
	}

	exists, err := b.Exists(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Exists returned false for a written id")
	}

	typ, err := b.Type(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if typ != keep.MimeText {
		t.Errorf("Type got %q want %q", typ, keep.MimeText)
	}

	hash, err := b.Hash(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if hash == "" {
		t.Error("Hash returned empty string for a written id")
	}
}

func testAbsent(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	missing := keep.ContentIDOf([]byte("nothing stored under this"))

	obj, err := b.Read(ctx, missing)
	if err != nil {
		t.Fatal(err)
	}
	if obj != nil {
		t.Error("Read of an absent id should return nil, nil")
	}

	exists, err := b.Exists(ctx, missing)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("Exists returned true for an absent id")
	}

	typ, err := b.Type(ctx, missing)
	if err != nil {
		t.Fatal(err)
	}
	if typ != "" {
		t.Errorf("Type of absent id got %q want empty", typ)
	}

	tok, err := b.Token(ctx, missing)
	if err != nil {
		t.Fatal(err)
	}
	if tok != nil {
		t.Error("Token of an absent id should be nil")
	}
}

func testCAS(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	data := []byte("version one")
	id := keep.ContentIDOf(data)

	// The token of a not-yet-existing id is nil; it is kept as a stale
	// token for the last check below.
	bogus, err := b.Token(ctx, keep.ContentIDOf([]byte("unrelated")))
	if err != nil {
		t.Fatal(err)
	}
	if bogus != nil {
		t.Fatal("unexpected token for absent id")
	}

	ok, err := b.Write(ctx, id, data, keep.MimeText, nil)
	if err != nil || !ok {
		t.Fatalf("initial write failed: ok=%v err=%v", ok, err)
	}

	// Writing again with tok=nil must now fail (id already exists).
	ok, err = b.Write(ctx, id, data, keep.MimeText, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("write with nil token against an existing id should fail the CAS gate")
	}

	tok, err := b.Token(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if tok == nil {
		t.Fatal("Token of an existing id should be non-nil")
	}

	// Writing with the correct token should succeed (a harmless
	// same-content rewrite here, since id is content-addressed).
	ok, err = b.Write(ctx, id, data, keep.MimeText, tok)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("write with the current token should succeed")
	}

	// A stale token taken while nothing was stored (nil) must fail.
	ok, err = b.Write(ctx, id, data, keep.MimeText, bogus)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("write with a stale/nil token against an existing id should fail")
	}
}

func testDelete(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	data := []byte("to be deleted")
	id := keep.ContentIDOf(data)

	ok, err := b.Write(ctx, id, data, keep.MimeText, nil)
	if err != nil || !ok {
		t.Fatalf("write failed: ok=%v err=%v", ok, err)
	}

	tok, err := b.Token(ctx, id)
	if err != nil || tok == nil {
		t.Fatalf("Token failed: tok=%v err=%v", tok, err)
	}

	// Delete gated on a wrong token should fail.
	ok, err = b.Delete(ctx, id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("delete with nil token against an existing id should fail the CAS gate")
	}

	ok, err = b.Delete(ctx, id, tok)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("delete with the correct token should succeed")
	}

	exists, err := b.Exists(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("id still exists after a successful delete")
	}
}

func testRename(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	data := []byte("renamed content")
	tmp := keep.ContentIDOf([]byte("tmp-staging-key"))
	final := keep.ContentIDOf(data)

	ok, err := b.Write(ctx, tmp, data, keep.MimeOctetStream, nil)
	if err != nil || !ok {
		t.Fatalf("staging write failed: ok=%v err=%v", ok, err)
	}

	ok, err = b.Rename(ctx, tmp, final)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("rename of an existing source to a fresh target should succeed")
	}

	exists, err := b.Exists(ctx, tmp)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("source id should no longer exist after rename")
	}

	obj, err := b.Read(ctx, final)
	if err != nil {
		t.Fatal(err)
	}
	if obj == nil || !bytes.Equal(obj.Data, data) {
		t.Error("target id doesn't contain the renamed content")
	}

	// Renaming onto an existing target must fail.
	ok, err = b.Write(ctx, tmp, data, keep.MimeOctetStream, nil)
	if err != nil || !ok {
		t.Fatalf("re-staging write failed: ok=%v err=%v", ok, err)
	}
	ok, err = b.Rename(ctx, tmp, final)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("rename onto an existing target should fail")
	}
}

func testList(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	want := map[keep.ContentId]bool{}
	for i := 0; i < 5; i++ {
		data := []byte(fmt.Sprintf("list item %d", i))
		id := keep.ContentIDOf(data)
		ok, err := b.Write(ctx, id, data, keep.MimeOctetStream, nil)
		if err != nil || !ok {
			t.Fatalf("write %d failed: ok=%v err=%v", i, ok, err)
		}
		want[id] = true
	}

	got := map[keep.ContentId]bool{}
	iter := b.List(ctx)
	for {
		id, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got[id] = true
	}

	for id := range want {
		if !got[id] {
			t.Errorf("List did not return written id %s", id)
		}
	}
}

func testStream(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	data := bytes.Repeat([]byte("streamed-chunk-"), 1024)
	id := keep.ContentIDOf(data)

	ok, err := b.WriteStream(ctx, id, bytes.NewReader(data), keep.MimeOctetStream, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("WriteStream of a fresh id should succeed")
	}

	so, err := b.ReadStream(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if so == nil {
		t.Fatal("ReadStream returned nil for a written id")
	}
	defer so.Body.Close()

	got, err := io.ReadAll(so.Body)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, data); diff != "" {
		t.Errorf("streamed content mismatch (-got +want):\n%s", diff)
	}
}

// testCASRace verifies that under concurrent nil-token writes to the same
// fresh id, exactly one caller observes success.
func testCASRace(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	b, done := mkBackend(ctx, t, newHarness)
	defer done()

	id := keep.ContentIDOf([]byte("race target"))
	const attempts = 8

	var wg sync.WaitGroup
	results := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := b.Write(ctx, id, []byte("race target"), keep.MimeOctetStream, nil)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("got %d successful nil-token writes to a fresh id, want exactly 1", wins)
	}
}
