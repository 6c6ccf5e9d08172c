package bucket_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/thatique/keep/backend/bucket"
)

// fakeClient is an in-memory stand-in for an S3-compatible object store,
// used to exercise backend/bucket's conditional-write logic without a real
// network dependency.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	seq     int
}

type fakeObject struct {
	data        []byte
	contentType string
	etag        string
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]fakeObject)}
}

func (c *fakeClient) nextETag() string {
	c.seq++
	return "etag-" + itoa(c.seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (c *fakeClient) Head(ctx context.Context, name string) (*bucket.HeadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[name]
	if !ok {
		return nil, nil
	}
	return &bucket.HeadResult{ETag: o.etag, Type: o.contentType}, nil
}

func (c *fakeClient) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[name]
	if !ok {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (c *fakeClient) Put(ctx context.Context, name, contentType string, data io.Reader, size int64, ifMatchETag string, ifNoneMatch bool) (*bucket.PutResult, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur, exists := c.objects[name]
	if ifNoneMatch && exists {
		return nil, nil
	}
	if ifMatchETag != "" {
		if !exists || cur.etag != ifMatchETag {
			return nil, nil
		}
	}
	etag := c.nextETag()
	c.objects[name] = fakeObject{data: buf, contentType: contentType, etag: etag}
	return &bucket.PutResult{ETag: etag}, nil
}

func (c *fakeClient) Delete(ctx context.Context, name, ifMatchETag string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, exists := c.objects[name]
	if !exists || cur.etag != ifMatchETag {
		return false, nil
	}
	delete(c.objects, name)
	return true, nil
}

func (c *fakeClient) List(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name := range c.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *fakeClient) Copy(ctx context.Context, dst, src string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[src]
	if !ok {
		return io.ErrUnexpectedEOF
	}
	o.etag = c.nextETag()
	c.objects[dst] = o
	return nil
}
