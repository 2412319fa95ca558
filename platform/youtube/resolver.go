// Package youtube resolves channels and playlists through the YouTube
// Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"podtube/internal/retry"
	"podtube/platform"
)

const (
	// pageSize is the Data API maximum for playlistItems.list.
	pageSize = 50
	// DefaultMaxPages bounds pagination when the caller gives no limit.
	DefaultMaxPages = 3
)

var channelIDRegex = regexp.MustCompile(`^UC[\w-]{21}[AQgw]$`)

// HandleLookup turns a channel handle or vanity name into a channel ID.
type HandleLookup interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Resolver lists channel and playlist contents via the Data API.
type Resolver struct {
	service *yt.Service

	// Handles resolves @handle refs when set.
	Handles HandleLookup
	// RetryConfig overrides the default backoff policy.
	RetryConfig *retry.Config
}

// New creates a Data API resolver. Extra options follow the API key,
// which lets tests point the service at a local endpoint.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Resolver, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube: api key required")
	}

	options := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := yt.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return &Resolver{service: service}, nil
}

// Name implements platform.Resolver.
func (r *Resolver) Name() string { return "youtube" }

// Resolve implements platform.Resolver.
func (r *Resolver) Resolve(ctx context.Context, kind platform.Kind, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	if opts == nil {
		opts = &platform.ResolveOptions{}
	}

	var (
		feed *platform.Feed
		err  error
	)
	switch kind {
	case platform.KindChannel, platform.KindUser:
		feed, err = r.resolveChannel(ctx, ref, opts)
	case platform.KindPlaylist:
		feed, err = r.resolvePlaylist(ctx, ref, opts)
	default:
		err = fmt.Errorf("%w: kind %q", platform.ErrInvalidRef, kind)
	}
	if err != nil {
		return nil, &platform.ResolveError{Platform: "youtube", Kind: kind, Ref: ref, Err: err}
	}
	return feed, nil
}

func (r *Resolver) resolveChannel(ctx context.Context, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	feed := &platform.Feed{}

	channelID := ref
	if strings.HasPrefix(ref, "@") {
		if r.Handles == nil {
			return nil, fmt.Errorf("%w: handle refs not supported", platform.ErrInvalidRef)
		}
		id, err := r.Handles.Lookup(ctx, strings.TrimPrefix(ref, "@"))
		if err != nil {
			return nil, fmt.Errorf("resolve handle %q: %w", ref, err)
		}
		channelID = id
	}

	channel, err := r.lookupChannel(ctx, channelID, feed)
	if err != nil {
		return nil, err
	}

	feed.Meta = platform.Meta{
		Title:       channel.Snippet.Title,
		Description: channel.Snippet.Description,
		Author:      channel.Snippet.Title,
		Link:        "https://www.youtube.com/channel/" + channel.Id,
		Image:       widestThumbnail(channel.Snippet.Thumbnails),
		Language:    "en",
	}
	feed.CanonicalRef = channel.Id

	uploads := ""
	if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
		uploads = channel.ContentDetails.RelatedPlaylists.Uploads
	}
	if uploads == "" {
		return nil, fmt.Errorf("channel %s: no uploads playlist: %w", channel.Id, platform.ErrNotFound)
	}

	items, err := r.listPlaylistItems(ctx, uploads, opts, feed)
	if err != nil {
		return nil, err
	}
	feed.Items = items
	return feed, nil
}

// lookupChannel finds a channel by ID, falling back to the legacy
// username lookup when the ID query returns nothing.
func (r *Resolver) lookupChannel(ctx context.Context, ref string, feed *platform.Feed) (*yt.Channel, error) {
	parts := []string{"snippet", "contentDetails"}

	channel, err := r.channelsList(ctx, feed, func() *yt.ChannelsListCall {
		return r.service.Channels.List(parts).Id(ref).MaxResults(1)
	})
	if err == nil {
		return channel, nil
	}
	// UC-shaped refs are never legacy usernames, so a miss is final.
	if !errors.Is(err, platform.ErrNotFound) || channelIDRegex.MatchString(ref) {
		return nil, err
	}

	return r.channelsList(ctx, feed, func() *yt.ChannelsListCall {
		return r.service.Channels.List(parts).ForUsername(ref).MaxResults(1)
	})
}

func (r *Resolver) channelsList(ctx context.Context, feed *platform.Feed, build func() *yt.ChannelsListCall) (*yt.Channel, error) {
	var channel *yt.Channel
	err := r.do(ctx, feed, func(ctx context.Context) error {
		resp, err := build().Context(ctx).Do()
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Items) == 0 {
			return platform.ErrNotFound
		}
		channel = resp.Items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return channel, nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, ref string, opts *platform.ResolveOptions) (*platform.Feed, error) {
	feed := &platform.Feed{CanonicalRef: ref}

	var playlist *yt.Playlist
	err := r.do(ctx, feed, func(ctx context.Context) error {
		resp, err := r.service.Playlists.List([]string{"snippet"}).Id(ref).MaxResults(1).Context(ctx).Do()
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Items) == 0 {
			return platform.ErrNotFound
		}
		playlist = resp.Items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	feed.Meta = platform.Meta{
		Title:       playlist.Snippet.Title,
		Description: playlist.Snippet.Description,
		Author:      playlist.Snippet.ChannelTitle,
		Link:        "https://www.youtube.com/playlist?list=" + ref,
		Image:       widestThumbnail(playlist.Snippet.Thumbnails),
		Language:    "en",
	}

	// Subscribers can ask for the feed to carry the owning channel's
	// identity instead of the playlist's.
	if opts.AsChannel && playlist.Snippet.ChannelId != "" {
		channel, err := r.channelsList(ctx, feed, func() *yt.ChannelsListCall {
			return r.service.Channels.List([]string{"snippet"}).Id(playlist.Snippet.ChannelId).MaxResults(1)
		})
		if err == nil {
			feed.Meta.Title = channel.Snippet.Title
			feed.Meta.Author = channel.Snippet.Title
			feed.Meta.Description = channel.Snippet.Description
			feed.Meta.Link = "https://www.youtube.com/channel/" + channel.Id
			if img := widestThumbnail(channel.Snippet.Thumbnails); img != "" {
				feed.Meta.Image = img
			}
		}
	}

	items, err := r.listPlaylistItems(ctx, ref, opts, feed)
	if err != nil {
		return nil, err
	}
	feed.Items = items
	return feed, nil
}

func (r *Resolver) listPlaylistItems(ctx context.Context, playlistID string, opts *platform.ResolveOptions, feed *platform.Feed) ([]platform.Item, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var items []platform.Item
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		var resp *yt.PlaylistItemListResponse
		err := r.do(ctx, feed, func(ctx context.Context) error {
			var err error
			resp, err = r.service.PlaylistItems.List([]string{"snippet"}).
				PlaylistId(playlistID).
				MaxResults(pageSize).
				PageToken(pageToken).
				Context(ctx).
				Do()
			if err != nil {
				return classifyAPIError(err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		var (
			pageItems []platform.Item
			ids       []string
		)
		for _, pi := range resp.Items {
			if pi.Snippet == nil || pi.Snippet.ResourceId == nil {
				continue
			}
			id := pi.Snippet.ResourceId.VideoId
			if id == "" {
				continue
			}
			item := platform.Item{
				ID:          id,
				Title:       pi.Snippet.Title,
				Description: pi.Snippet.Description,
				Author:      pi.Snippet.ChannelTitle,
				Link:        "https://www.youtube.com/watch?v=" + id,
				Thumbnail:   widestThumbnail(pi.Snippet.Thumbnails),
			}
			if t, err := time.Parse(time.RFC3339, pi.Snippet.PublishedAt); err == nil {
				item.Published = t
			}
			pageItems = append(pageItems, item)
			ids = append(ids, id)
		}

		details, err := r.videoDetails(ctx, ids, feed)
		if err != nil {
			// Snippet data alone still makes a serviceable feed.
			details = nil
		}

		for _, item := range pageItems {
			d, ok := details[item.ID]
			if ok && d.hasStatus {
				if d.private {
					continue
				}
			} else if strings.Contains(strings.ToLower(item.Title), "private") {
				// Deleted and private uploads stay in the playlist with a
				// placeholder title.
				continue
			}
			item.Duration = d.duration
			if d.liveNote != "" {
				item.Description += d.liveNote
			}
			items = append(items, item)
			if opts.MaxItems > 0 && len(items) >= opts.MaxItems {
				return items, nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return items, nil
}

// videoDetail carries the per-video fields a playlistItems snippet
// leaves out.
type videoDetail struct {
	duration  time.Duration
	private   bool
	hasStatus bool
	liveNote  string
}

// videoDetails fetches durations, privacy status and live-stream data
// for one page of videos.
func (r *Resolver) videoDetails(ctx context.Context, ids []string, feed *platform.Feed) (map[string]videoDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp *yt.VideoListResponse
	err := r.do(ctx, feed, func(ctx context.Context) error {
		var err error
		resp, err = r.service.Videos.List([]string{"contentDetails", "status", "liveStreamingDetails"}).
			Id(ids...).
			Context(ctx).
			Do()
		if err != nil {
			return classifyAPIError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := make(map[string]videoDetail, len(resp.Items))
	for _, v := range resp.Items {
		d := videoDetail{liveNote: liveStreamNote(v.LiveStreamingDetails)}
		if v.ContentDetails != nil {
			d.duration = parseISODuration(v.ContentDetails.Duration)
		}
		if v.Status != nil {
			d.hasStatus = true
			d.private = strings.EqualFold(v.Status.PrivacyStatus, "private")
		}
		details[v.Id] = d
	}
	return details, nil
}

// liveStreamNote renders stream timing as a description suffix.
func liveStreamNote(d *yt.VideoLiveStreamingDetails) string {
	if d == nil {
		return ""
	}
	var lines []string
	if d.ScheduledStartTime != "" {
		lines = append(lines, "Live stream scheduled to start at "+d.ScheduledStartTime)
	}
	if d.ActualStartTime != "" {
		lines = append(lines, "Live stream started at "+d.ActualStartTime)
	}
	if d.ActualEndTime != "" {
		lines = append(lines, "Live stream ended at "+d.ActualEndTime)
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\nLive stream information:\n" + strings.Join(lines, "\n")
}

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseISODuration reads the ISO 8601 durations the Data API reports.
// Unparseable input maps to zero.
func parseISODuration(s string) time.Duration {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num := func(i int) time.Duration {
		if m[i] == "" {
			return 0
		}
		v, _ := strconv.Atoi(m[i])
		return time.Duration(v)
	}
	return num(1)*24*time.Hour + num(2)*time.Hour + num(3)*time.Minute + num(4)*time.Second
}

// do runs one API call with retries, counting it toward the feed's
// upstream call total.
func (r *Resolver) do(ctx context.Context, feed *platform.Feed, fn func(ctx context.Context) error) error {
	cfg := retry.DefaultConfig()
	if r.RetryConfig != nil {
		cfg = *r.RetryConfig
	}
	feed.Calls++
	return retry.Do(ctx, cfg, apiErrorClassifier, fn)
}

// apiErrorClassifier reports whether a Data API error is worth
// retrying.
func apiErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, platform.ErrNotFound) || errors.Is(err, platform.ErrInvalidRef) {
		return false
	}
	if errors.Is(err, platform.ErrRateLimited) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return true
}

// classifyAPIError maps googleapi failures to domain sentinels.
func classifyAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		case apiErr.Code == 403 || apiErr.Code == 429:
			return fmt.Errorf("%w: %v", platform.ErrRateLimited, err)
		}
	}
	return err
}

// widestThumbnail picks the largest available thumbnail variant.
func widestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	best := ""
	var bestWidth int64 = -1
	for _, thumb := range []*yt.Thumbnail{t.Default, t.Medium, t.High, t.Standard, t.Maxres} {
		if thumb == nil {
			continue
		}
		if thumb.Width > bestWidth {
			bestWidth = thumb.Width
			best = thumb.Url
		}
	}
	return best
}
