// Package rumble resolves Rumble listings by scraping the public site.
package rumble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podtube/httpx"
	"podtube/platform"
)

const baseURL = "https://rumble.com"

// Getter fetches a page body.
type Getter interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// Resolver scrapes user, channel, and category listing pages.
type Resolver struct {
	client Getter
}

// New creates a Rumble resolver backed by client.
func New(client Getter) *Resolver {
	return &Resolver{client: client}
}

// Name implements platform.Resolver.
func (r *Resolver) Name() string { return "rumble" }

// Resolve implements platform.Resolver.
func (r *Resolver) Resolve(ctx context.Context, kind platform.Kind, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	listingURL, err := listingURL(kind, ref)
	if err != nil {
		return nil, &platform.ResolveError{Platform: "rumble", Kind: kind, Ref: ref, Err: err}
	}

	feed, err := r.scrapeListing(ctx, listingURL, opts)
	if err != nil {
		return nil, &platform.ResolveError{Platform: "rumble", Kind: kind, Ref: ref, Err: err}
	}
	feed.CanonicalRef = ref
	return feed, nil
}

func listingURL(kind platform.Kind, ref string) (string, error) {
	switch kind {
	case platform.KindUser:
		return baseURL + "/user/" + ref, nil
	case platform.KindChannel:
		return baseURL + "/c/" + ref, nil
	case platform.KindCategory:
		return baseURL + "/category/" + ref, nil
	default:
		return "", fmt.Errorf("%w: kind %q", platform.ErrInvalidRef, kind)
	}
}

func (r *Resolver) scrapeListing(ctx context.Context, url string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	resp, err := r.client.Get(ctx, url)
	if err != nil {
		return nil, classifyFetchError(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	feed := &platform.Feed{Calls: 1}
	feed.Meta = platform.Meta{
		Title:    strings.TrimSpace(doc.Find("h1.listing-header--title").First().Text()),
		Link:     url,
		Language: "en",
	}
	if feed.Meta.Title == "" {
		return nil, fmt.Errorf("%w: no listing title at %s", platform.ErrNotFound, url)
	}
	feed.Meta.Author = feed.Meta.Title
	feed.Meta.Description = feed.Meta.Title
	if src, ok := doc.Find("img.listing-header--thumb").First().Attr("src"); ok {
		feed.Meta.Image = src
	}

	maxItems := 0
	if opts != nil {
		maxItems = opts.MaxItems
	}

	doc.Find("ol li").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		item, ok := parseListItem(sel)
		if !ok {
			return true
		}
		feed.Items = append(feed.Items, item)
		return maxItems <= 0 || len(feed.Items) < maxItems
	})
	return feed, nil
}

func parseListItem(sel *goquery.Selection) (platform.Item, bool) {
	title := strings.TrimSpace(sel.Find("h3.video-item--title").First().Text())
	href, ok := sel.Find("a.video-item--a").First().Attr("href")
	if title == "" || !ok {
		return platform.Item{}, false
	}

	item := platform.Item{
		ID:          strings.Trim(href, "/"),
		Title:       title,
		Description: title,
		Link:        baseURL + href,
	}
	if src, ok := sel.Find("img.video-item--img").First().Attr("src"); ok {
		item.Thumbnail = src
	}
	if dt, ok := sel.Find("time.video-item--meta").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			item.Published = t
		}
	}
	if dur, ok := sel.Find("span.video-item--duration").First().Attr("data-value"); ok {
		item.Duration = parseClock(dur)
	}
	return item, true
}

// parseClock converts "12:34" or "1:02:03" to a duration.
func parseClock(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	var total time.Duration
	for _, p := range parts {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return 0
		}
		total = total*60 + time.Duration(n)*time.Second
	}
	return total
}

var mp4Regex = regexp.MustCompile(`https[^"]*\.mp4`)

// ResolveVideoURL implements platform.VideoURLResolver. It walks from
// the video page through the embed player to the raw MP4 URL.
func (r *Resolver) ResolveVideoURL(ctx context.Context, ref string) (string, error) {
	resp, err := r.client.Get(ctx, baseURL+"/"+strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", classifyFetchError(err)
	}

	embedURL, err := embedURLFromPage(resp.Body)
	if err != nil {
		return "", err
	}

	embed, err := r.client.Get(ctx, embedURL)
	if err != nil {
		return "", classifyFetchError(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(embed.Body))
	if err != nil {
		return "", fmt.Errorf("parse embed page: %w", err)
	}
	script := doc.Find("script").First().Text()
	match := mp4Regex.FindString(script)
	if match == "" {
		return "", fmt.Errorf("%w: no mp4 url in embed page", platform.ErrNotFound)
	}
	return strings.ReplaceAll(match, `\`, ""), nil
}

// embedURLFromPage extracts the player URL from the video page's
// structured data block.
func embedURLFromPage(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse video page: %w", err)
	}

	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return "", fmt.Errorf("%w: no structured data on video page", platform.ErrNotFound)
	}

	var entries []struct {
		EmbedURL string `json:"embedUrl"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return "", fmt.Errorf("decode structured data: %w", err)
	}
	if len(entries) == 0 || entries[0].EmbedURL == "" {
		return "", fmt.Errorf("%w: structured data has no embed url", platform.ErrNotFound)
	}
	return entries[0].EmbedURL, nil
}

// classifyFetchError maps HTTP failures to domain sentinels.
func classifyFetchError(err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	var rateErr *httpx.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", platform.ErrRateLimited, err)
	}
	return err
}
