package dailymotion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"podtube/httpx"
	"podtube/platform"
)

type fakeGetter struct {
	pages map[string]string
}

func (g *fakeGetter) Get(ctx context.Context, url string) (*httpx.Response, error) {
	best := ""
	for prefix := range g.pages {
		if strings.HasPrefix(url, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, &httpx.HTTPError{StatusCode: 404, Body: []byte("not found")}
	}
	return &httpx.Response{StatusCode: 200, Body: []byte(g.pages[best])}, nil
}

const userJSON = `{
	"id": "x1abcd",
	"username": "newsuser",
	"description": "Daily news clips",
	"avatar_360_url": "https://s1.dmcdn.net/avatar.jpg",
	"url": "https://www.dailymotion.com/newsuser"
}`

const videosJSON = `{"list":[
	{"id":"x7vid1","title":"Clip One","description":"first clip","duration":120,
	 "thumbnail_360_url":"https://s1.dmcdn.net/x7vid1.jpg","url":"https://www.dailymotion.com/video/x7vid1"},
	{"id":"x7vid2","title":"Clip Two","description":"","duration":45,
	 "thumbnail_360_url":"https://s1.dmcdn.net/x7vid2.jpg","url":"https://www.dailymotion.com/video/x7vid2"}
]}`

const videoPage = `<!DOCTYPE html><html><head>
<script type="application/ld+json">[{"embedUrl":"https://www.dailymotion.com/embed/video/x7vid1"}]</script>
</head><body></body></html>`

const embedPage = `<!DOCTYPE html><html><head>
<script>var config={"url":"https:\/\/proxy.dmcdn.net\/video.mp4","extra":true}</script>
</head><body></body></html>`

func newTestResolver() *Resolver {
	return New(&fakeGetter{pages: map[string]string{
		"https://api.dailymotion.com/user/newsuser/videos": videosJSON,
		"https://api.dailymotion.com/user/newsuser":        userJSON,
		"https://www.dailymotion.com/embed/video/x7vid1":   embedPage,
		"https://www.dailymotion.com/video/x7vid1":         videoPage,
	}})
}

func TestResolver_Channel(t *testing.T) {
	r := newTestResolver()

	feed, err := r.Resolve(context.Background(), platform.KindChannel, "newsuser", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if feed.Meta.Title != "newsuser" {
		t.Errorf("Title = %q", feed.Meta.Title)
	}
	if feed.Meta.Image != "https://s1.dmcdn.net/avatar.jpg" {
		t.Errorf("Image = %q", feed.Meta.Image)
	}
	if feed.CanonicalRef != "x1abcd" {
		t.Errorf("CanonicalRef = %q", feed.CanonicalRef)
	}
	if feed.Calls != 2 {
		t.Errorf("Calls = %d, want 2", feed.Calls)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(feed.Items))
	}
	if feed.Items[0].Duration != 2*time.Minute {
		t.Errorf("Duration = %s", feed.Items[0].Duration)
	}
	if feed.Items[1].Description != "Clip Two" {
		t.Errorf("fallback Description = %q", feed.Items[1].Description)
	}
}

func TestResolver_MaxItems(t *testing.T) {
	r := newTestResolver()

	feed, err := r.Resolve(context.Background(), platform.KindUser, "newsuser",
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

	_, err := r.Resolve(context.Background(), platform.KindChannel, "ghost", nil)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("Resolve() = %v, want ErrNotFound", err)
	}
}

func TestResolver_UnsupportedKind(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), platform.KindPlaylist, "x", nil)
	if !errors.Is(err, platform.ErrInvalidRef) {
		t.Errorf("Resolve() = %v, want ErrInvalidRef", err)
	}
}

func TestResolveVideoURL(t *testing.T) {
	r := newTestResolver()

	url, err := r.ResolveVideoURL(context.Background(), "video/x7vid1")
	if err != nil {
		t.Fatalf("ResolveVideoURL() error = %v", err)
	}
	if url != "https://proxy.dmcdn.net/video.mp4" {
		t.Errorf("ResolveVideoURL() = %q", url)
	}
}
