package bitchute

import (
	"context"
	"errors"
	"testing"
	"time"

	"podtube/httpx"
	"podtube/platform"
)

type fakeGetter struct {
	pages map[string]string
}

func (g *fakeGetter) Get(ctx context.Context, url string) (*httpx.Response, error) {
	body, ok := g.pages[url]
	if !ok {
		return nil, &httpx.HTTPError{StatusCode: 404, Body: []byte("not found")}
	}
	return &httpx.Response{StatusCode: 200, Body: []byte(body)}, nil
}

const channelPage = `<!DOCTYPE html><html><body>
<div class="channel-banner">
  <p class="name">Example Channel</p>
  <p class="owner">example_owner</p>
  <div class="image-container"><img data-src="https://static.bitchute.com/banner.jpg"></div>
  <a class="spa" href="/channel/example/"></a>
</div>
<div class="channel-videos-container">
  <div class="channel-videos-title"><a class="spa" href="/video/abc123/">First Upload</a></div>
  <div class="channel-videos-text">A description here</div>
  <div class="channel-videos-image"><img src="https://static.bitchute.com/abc123.jpg"></div>
  <span class="video-duration">14:02</span>
  <div class="channel-videos-details">Mar 1, 2024</div>
</div>
<div class="channel-videos-container">
  <div class="channel-videos-title"><a class="spa" href="/video/def456/">Second Upload</a></div>
  <span class="video-duration">3:05</span>
  <div class="channel-videos-details">Feb 1, 2024</div>
</div>
</body></html>`

const videoPage = `<!DOCTYPE html><html><body>
<video><source src="https://seed126.bitchute.com/abc123.mp4" type="video/mp4"></video>
</body></html>`

func newTestResolver() *Resolver {
	return New(&fakeGetter{pages: map[string]string{
		"https://www.bitchute.com/channel/example/": channelPage,
		"https://www.bitchute.com/video/abc123/":    videoPage,
	}})
}

func TestResolver_Channel(t *testing.T) {
	r := newTestResolver()

	feed, err := r.Resolve(context.Background(), platform.KindChannel, "example", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if feed.Meta.Title != "Example Channel" {
		t.Errorf("Title = %q", feed.Meta.Title)
	}
	if feed.Meta.Author != "example_owner" {
		t.Errorf("Author = %q", feed.Meta.Author)
	}
	if feed.Meta.Image != "https://static.bitchute.com/banner.jpg" {
		t.Errorf("Image = %q", feed.Meta.Image)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(feed.Items))
	}

	first := feed.Items[0]
	if first.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", first.ID)
	}
	if first.Description != "A description here" {
		t.Errorf("Description = %q", first.Description)
	}
	if first.Duration != 14*time.Minute+2*time.Second {
		t.Errorf("Duration = %s", first.Duration)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !first.Published.Equal(want) {
		t.Errorf("Published = %s, want %s", first.Published, want)
	}

	// Missing description falls back to the title.
	if feed.Items[1].Description != "Second Upload" {
		t.Errorf("fallback Description = %q", feed.Items[1].Description)
	}
}

func TestResolver_MaxItems(t *testing.T) {
	r := newTestResolver()

	feed, err := r.Resolve(context.Background(), platform.KindChannel, "example",
		&platform.ResolveOptions{MaxItems: 1})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(feed.Items) != 1 {
		t.Errorf("items = %d, want 1", len(feed.Items))
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), platform.KindChannel, "missing", nil)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("Resolve() = %v, want ErrNotFound", err)
	}
}

func TestResolver_UnsupportedKind(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), platform.KindUser, "example", nil)
	if !errors.Is(err, platform.ErrInvalidRef) {
		t.Errorf("Resolve() = %v, want ErrInvalidRef", err)
	}
}

func TestResolveVideoURL(t *testing.T) {
	r := newTestResolver()

	url, err := r.ResolveVideoURL(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ResolveVideoURL() error = %v", err)
	}
	if url != "https://seed126.bitchute.com/abc123.mp4" {
		t.Errorf("ResolveVideoURL() = %q", url)
	}
}

func TestResolveVideoURL_NoSource(t *testing.T) {
	r := New(&fakeGetter{pages: map[string]string{
		"https://www.bitchute.com/video/empty/": "<html><body></body></html>",
	}})

	_, err := r.ResolveVideoURL(context.Background(), "empty")
	if !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("ResolveVideoURL() = %v, want ErrNotFound", err)
	}
}
