package youtube

import (
	"context"
	"errors"
	"testing"

	"podtube/httpx"
	"podtube/platform"
)

type fakeGetter struct {
	calls int
	body  string
	err   error
}

func (g *fakeGetter) Get(ctx context.Context, url string) (*httpx.Response, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &httpx.Response{StatusCode: 200, Body: []byte(g.body)}, nil
}

const aboutPage = `<!DOCTYPE html><html><head>
<link rel="canonical" href="https://www.youtube.com/channel/UCabcdefghijklmnopqrstgw">
</head><body></body></html>`

func TestHandleResolver_Lookup(t *testing.T) {
	getter := &fakeGetter{body: aboutPage}
	h := NewHandleResolver(getter)

	id, err := h.Lookup(context.Background(), "@somecreator")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if id != "UCabcdefghijklmnopqrstgw" {
		t.Errorf("Lookup() = %q", id)
	}

	// Second lookup hits the cache.
	if _, err := h.Lookup(context.Background(), "somecreator"); err != nil {
		t.Fatalf("cached Lookup() error = %v", err)
	}
	if getter.calls != 1 {
		t.Errorf("fetches = %d, want 1", getter.calls)
	}
}

func TestHandleResolver_NoCanonicalLink(t *testing.T) {
	h := NewHandleResolver(&fakeGetter{body: "<html><head></head></html>"})

	_, err := h.Lookup(context.Background(), "ghost")
	if !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("Lookup() = %v, want ErrNotFound", err)
	}
}

func TestHandleResolver_EmptyHandle(t *testing.T) {
	h := NewHandleResolver(&fakeGetter{})

	_, err := h.Lookup(context.Background(), "@")
	if !errors.Is(err, platform.ErrInvalidRef) {
		t.Errorf("Lookup() = %v, want ErrInvalidRef", err)
	}
}

func TestHandleResolver_FetchError(t *testing.T) {
	h := NewHandleResolver(&fakeGetter{err: errors.New("connection refused")})

	if _, err := h.Lookup(context.Background(), "anyone"); err == nil {
		t.Error("Lookup() = nil, want error")
	}
}
