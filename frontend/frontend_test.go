package frontend_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thatique/keep"
	"github.com/thatique/keep/backend/memory"
	"github.com/thatique/keep/frontend"
)

func TestPushPullIsContentAddressedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	data := []byte("hello, content-addressed world")
	cid1, err := f.Push(ctx, data, keep.MimeText)
	require.NoError(t, err)
	cid2, err := f.Push(ctx, data, keep.MimeText)
	require.NoError(t, err)
	require.Equal(t, cid1, cid2, "pushing the same bytes twice should yield the same id")

	got, err := f.Pull(ctx, cid1)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPushStreamMatchesPush(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	data := bytes.Repeat([]byte("stream content "), 200)
	want, err := f.Push(ctx, data, keep.MimeOctetStream)
	require.NoError(t, err)
	got, err := f.PushStream(ctx, bytes.NewReader(data), keep.MimeOctetStream)
	require.NoError(t, err)
	require.Equal(t, want, got)

	rc, err := f.PullStream(ctx, got)
	require.NoError(t, err)
	defer rc.Close()
	readBack, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, readBack)
}

func TestSetGetAndHistory(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	ok, err := f.Set(ctx, "greeting", []byte("hello"), keep.MimeText, nil)
	require.NoError(t, err)
	require.True(t, ok, "first Set on a fresh name should succeed")

	has, err := f.Has(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, has)

	got, err := f.Text(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	tok, err := f.Token(ctx, "greeting")
	require.NoError(t, err)
	require.NotNil(t, tok)

	// A stale (nil) token against an existing name must fail the gate.
	ok, err = f.Set(ctx, "greeting", []byte("stale write"), keep.MimeText, nil)
	require.NoError(t, err)
	require.False(t, ok, "Set with a nil token against an existing name should fail")

	ok, err = f.Set(ctx, "greeting", []byte("hello again"), keep.MimeText, tok)
	require.NoError(t, err)
	require.True(t, ok, "Set with the current token should succeed")

	got, err = f.Text(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, "hello again", got)

	var seen []string
	for tag, err := range f.Tags(ctx, "greeting") {
		require.NoError(t, err)
		data, err := f.Pull(ctx, *tag.Cid)
		require.NoError(t, err)
		seen = append(seen, string(data))
	}
	require.Equal(t, []string{"hello again", "hello"}, seen)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	_, err := f.Set(ctx, "source", []byte("copy me"), keep.MimeText, nil)
	require.NoError(t, err)

	ok, err := f.Copy(ctx, "source", "dest", nil)
	require.NoError(t, err)
	require.True(t, ok, "Copy of an existing source to a fresh name should succeed")

	got, err := f.Text(ctx, "dest")
	require.NoError(t, err)
	require.Equal(t, "copy me", got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	_, err := f.Set(ctx, "ephemeral", []byte("gone soon"), keep.MimeText, nil)
	require.NoError(t, err)
	tok, err := f.Token(ctx, "ephemeral")
	require.NoError(t, err)

	ok, err := f.Delete(ctx, "ephemeral", tok)
	require.NoError(t, err)
	require.True(t, ok, "Delete with the current token should succeed")

	has, err := f.Has(ctx, "ephemeral")
	require.NoError(t, err)
	require.False(t, has)

	tag, err := f.Tag(ctx, "ephemeral")
	require.NoError(t, err)
	require.NotNil(t, tag)
	require.True(t, tag.IsTombstone())
	require.NotNil(t, tag.Pre, "tombstone should link back to the prior tag via Pre")
}

func TestJSON(t *testing.T) {
	ctx := context.Background()
	f := frontend.New(memory.New())

	type doc struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	payload, err := keep.NewMimeType("application/json")
	require.NoError(t, err)
	raw := []byte(`{"name":"widget","n":7}`)
	_, err = f.Set(ctx, "doc", raw, payload, nil)
	require.NoError(t, err)

	var got doc
	ok, err := f.JSON(ctx, "doc", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "widget", got.Name)
	require.Equal(t, 7, got.N)
}
