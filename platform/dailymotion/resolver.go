// Package dailymotion resolves Dailymotion channels through the public
// REST API.
package dailymotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podtube/httpx"
	"podtube/platform"
)

const (
	apiBase  = "https://api.dailymotion.com"
	siteBase = "https://www.dailymotion.com"

	// listLimit matches the API's recent-videos page size.
	listLimit = 30
)

// Getter fetches a page body.
type Getter interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// Resolver lists a user's recent uploads via the REST API.
type Resolver struct {
	client Getter
}

// New creates a Dailymotion resolver backed by client.
func New(client Getter) *Resolver {
	return &Resolver{client: client}
}

// Name implements platform.Resolver.
func (r *Resolver) Name() string { return "dailymotion" }

type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_360_url"`
	URL         string `json:"url"`
}

type videoListResponse struct {
	List []struct {
		ID           string  `json:"id"`
		Title        string  `json:"title"`
		Description  string  `json:"description"`
		Duration     float64 `json:"duration"`
		ThumbnailURL string  `json:"thumbnail_360_url"`
		URL          string  `json:"url"`
	} `json:"list"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Resolve implements platform.Resolver.
func (r *Resolver) Resolve(ctx context.Context, kind platform.Kind, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	if kind != platform.KindChannel && kind != platform.KindUser {
		return nil, &platform.ResolveError{
			Platform: "dailymotion", Kind: kind, Ref: ref,
			Err: fmt.Errorf("%w: kind %q", platform.ErrInvalidRef, kind),
		}
	}

	feed, err := r.resolveUser(ctx, ref, opts)
	if err != nil {
		return nil, &platform.ResolveError{Platform: "dailymotion", Kind: kind, Ref: ref, Err: err}
	}
	return feed, nil
}

func (r *Resolver) resolveUser(ctx context.Context, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	user, err := r.fetchUser(ctx, ref)
	if err != nil {
		return nil, err
	}

	feed := &platform.Feed{Calls: 1, CanonicalRef: user.ID}
	feed.Meta = platform.Meta{
		Title:       user.Username,
		Description: user.Description,
		Author:      user.Username,
		Link:        user.URL,
		Image:       user.AvatarURL,
		Language:    "en",
	}
	if feed.Meta.Link == "" {
		feed.Meta.Link = siteBase + "/" + ref
	}
	if feed.Meta.Description == "" {
		feed.Meta.Description = user.Username
	}

	items, err := r.fetchVideos(ctx, ref, opts)
	if err != nil {
		return nil, err
	}
	feed.Calls++
	feed.Items = items
	return feed, nil
}

func (r *Resolver) fetchUser(ctx context.Context, ref string) (*userResponse, error) {
	query := url.Values{"fields": {"description,avatar_360_url,id,url,username"}}
	resp, err := r.client.Get(ctx, apiBase+"/user/"+url.PathEscape(ref)+"?"+query.Encode())
	if err != nil {
		return nil, classifyFetchError(err)
	}

	var user userResponse
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: no such user %q", platform.ErrNotFound, ref)
	}
	return &user, nil
}

func (r *Resolver) fetchVideos(ctx context.Context, ref string, opts *platform.ResolveOptions) ([]platform.Item, error) {
	query := url.Values{
		"sort":   {"recent"},
		"limit":  {fmt.Sprint(listLimit)},
		"fields": {"description,duration,id,thumbnail_360_url,url,title"},
		"flags":  {"no_live"},
	}
	resp, err := r.client.Get(ctx, apiBase+"/user/"+url.PathEscape(ref)+"/videos?"+query.Encode())
	if err != nil {
		return nil, classifyFetchError(err)
	}

	var list videoListResponse
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}
	if list.Error != nil {
		if list.Error.Code == 404 {
			return nil, fmt.Errorf("%w: %s", platform.ErrNotFound, list.Error.Message)
		}
		return nil, fmt.Errorf("dailymotion api: %s", list.Error.Message)
	}

	maxItems := 0
	if opts != nil {
		maxItems = opts.MaxItems
	}

	var items []platform.Item
	for _, v := range list.List {
		item := platform.Item{
			ID:          v.ID,
			Title:       v.Title,
			Description: v.Description,
			Link:        v.URL,
			Thumbnail:   v.ThumbnailURL,
			Duration:    time.Duration(v.Duration) * time.Second,
		}
		if item.Description == "" {
			item.Description = v.Title
		}
		items = append(items, item)
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}
	return items, nil
}

var mp4Regex = regexp.MustCompile(`https[^"]*\.mp4`)

// ResolveVideoURL implements platform.VideoURLResolver. The video page
// carries the embed player URL in its structured data, and the embed
// page leaks the raw MP4 URL inside its first script block.
func (r *Resolver) ResolveVideoURL(ctx context.Context, ref string) (string, error) {
	resp, err := r.client.Get(ctx, siteBase+"/"+strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", classifyFetchError(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse video page: %w", err)
	}
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return "", fmt.Errorf("%w: no structured data for %q", platform.ErrNotFound, ref)
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

	embed, err := r.client.Get(ctx, entries[0].EmbedURL)
	if err != nil {
		return "", classifyFetchError(err)
	}
	embedDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(embed.Body))
	if err != nil {
		return "", fmt.Errorf("parse embed page: %w", err)
	}
	match := mp4Regex.FindString(embedDoc.Find("script").First().Text())
	if match == "" {
		return "", fmt.Errorf("%w: no mp4 url in embed page", platform.ErrNotFound)
	}
	return strings.ReplaceAll(strings.Split(match, `"`)[0], `\`, ""), nil
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
