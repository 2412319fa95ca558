package youtube

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podtube/cache"
	"podtube/httpx"
	"podtube/platform"
)

// handleTTL is how long resolved channel IDs are kept. Handles rarely
// move between channels, so a day is safe.
const handleTTL = 24 * time.Hour

// Getter fetches a page body.
type Getter interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// HandleResolver maps channel handles to channel IDs by scraping the
// canonical link off the channel's about page.
type HandleResolver struct {
	client Getter
	ids    *cache.Cache[string]
}

// NewHandleResolver creates a resolver backed by client.
func NewHandleResolver(client Getter) *HandleResolver {
	return &HandleResolver{
		client: client,
		ids:    cache.New[string](),
	}
}

// Lookup implements HandleLookup.
func (h *HandleResolver) Lookup(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "@")
	if name == "" {
		return "", fmt.Errorf("youtube: %w: empty handle", platform.ErrInvalidRef)
	}

	if id, ok := h.ids.Get(name); ok {
		return id, nil
	}

	resp, err := h.client.Get(ctx, "https://www.youtube.com/@"+name+"/about")
	if err != nil {
		return "", fmt.Errorf("youtube: fetch about page for %q: %w", name, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("youtube: parse about page for %q: %w", name, err)
	}

	canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href")
	if !ok {
		return "", fmt.Errorf("youtube: %w: no canonical link for handle %q", platform.ErrNotFound, name)
	}
	id := strings.TrimPrefix(canonical, "https://www.youtube.com/channel/")
	if id == canonical || id == "" {
		return "", fmt.Errorf("youtube: %w: unexpected canonical link %q", platform.ErrNotFound, canonical)
	}

	h.ids.PutLabeled(name, id, id, handleTTL)
	return id, nil
}

// Cache exposes the handle cache for admin listings.
func (h *HandleResolver) Cache() *cache.Cache[string] { return h.ids }
