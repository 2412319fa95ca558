// Package bitchute resolves BitChute channels by scraping the public
// site.
package bitchute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podtube/httpx"
	"podtube/platform"
)

const baseURL = "https://www.bitchute.com"

// dateLayout is the human-readable date printed on channel pages.
const dateLayout = "Jan 2, 2006"

// Getter fetches a page body.
type Getter interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// Resolver scrapes channel pages.
type Resolver struct {
	client Getter
}

// New creates a BitChute resolver backed by client.
func New(client Getter) *Resolver {
	return &Resolver{client: client}
}

// Name implements platform.Resolver.
func (r *Resolver) Name() string { return "bitchute" }

// Resolve implements platform.Resolver.
func (r *Resolver) Resolve(ctx context.Context, kind platform.Kind, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	if kind != platform.KindChannel {
		return nil, &platform.ResolveError{
			Platform: "bitchute", Kind: kind, Ref: ref,
			Err: fmt.Errorf("%w: kind %q", platform.ErrInvalidRef, kind),
		}
	}

	feed, err := r.scrapeChannel(ctx, ref, opts)
	if err != nil {
		return nil, &platform.ResolveError{Platform: "bitchute", Kind: kind, Ref: ref, Err: err}
	}
	return feed, nil
}

func (r *Resolver) scrapeChannel(ctx context.Context, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	url := baseURL + "/channel/" + ref + "/"
	resp, err := r.client.Get(ctx, url)
	if err != nil {
		return nil, classifyFetchError(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse channel page: %w", err)
	}

	banner := doc.Find("div.channel-banner").First()
	title := strings.TrimSpace(banner.Find("p.name").First().Text())
	if title == "" {
		return nil, fmt.Errorf("%w: no channel banner at %s", platform.ErrNotFound, url)
	}

	feed := &platform.Feed{Calls: 1, CanonicalRef: ref}
	feed.Meta = platform.Meta{
		Title:       title,
		Description: title,
		Author:      strings.TrimSpace(banner.Find("p.owner").First().Text()),
		Link:        url,
		Language:    "en",
	}
	if feed.Meta.Author == "" {
		feed.Meta.Author = title
	}
	if src, ok := banner.Find("div.image-container img").First().Attr("data-src"); ok && src != "" {
		feed.Meta.Image = src
	} else if src, ok := banner.Find("div.image-container img").First().Attr("src"); ok {
		feed.Meta.Image = src
	}
	if href, ok := banner.Find("a.spa").First().Attr("href"); ok {
		feed.Meta.Link = baseURL + href
	}

	maxItems := 0
	if opts != nil {
		maxItems = opts.MaxItems
	}

	doc.Find("div.channel-videos-container").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		item, ok := parseVideoBlock(sel)
		if !ok {
			return true
		}
		feed.Items = append(feed.Items, item)
		return maxItems <= 0 || len(feed.Items) < maxItems
	})
	return feed, nil
}

func parseVideoBlock(sel *goquery.Selection) (platform.Item, bool) {
	link := sel.Find("div.channel-videos-title a.spa").First()
	title := strings.TrimSpace(link.Text())
	href, ok := link.Attr("href")
	if title == "" || !ok {
		return platform.Item{}, false
	}

	item := platform.Item{
		ID:          strings.Trim(strings.TrimPrefix(href, "/video"), "/"),
		Title:       title,
		Description: strings.TrimSpace(sel.Find("div.channel-videos-text").First().Text()),
		Link:        baseURL + href,
	}
	if item.Description == "" {
		item.Description = title
	}
	if src, ok := sel.Find("div.channel-videos-image img").First().Attr("data-src"); ok && src != "" {
		item.Thumbnail = src
	} else if src, ok := sel.Find("div.channel-videos-image img").First().Attr("src"); ok {
		item.Thumbnail = src
	}
	if dur := strings.TrimSpace(sel.Find("span.video-duration").First().Text()); dur != "" {
		item.Duration = parseClock(dur)
	}
	date := strings.TrimSpace(sel.Find("div.channel-videos-details").First().Text())
	if t, err := time.Parse(dateLayout, date); err == nil {
		item.Published = t
	}
	return item, true
}

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

// ResolveVideoURL implements platform.VideoURLResolver by reading the
// player source off the video page.
func (r *Resolver) ResolveVideoURL(ctx context.Context, ref string) (string, error) {
	resp, err := r.client.Get(ctx, baseURL+"/video/"+strings.Trim(ref, "/")+"/")
	if err != nil {
		return "", classifyFetchError(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse video page: %w", err)
	}
	src, ok := doc.Find("video source").First().Attr("src")
	if !ok || src == "" {
		return "", fmt.Errorf("%w: no video source for %q", platform.ErrNotFound, ref)
	}
	return src, nil
}

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
