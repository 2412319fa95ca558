// Package platform defines the common model for upstream video platforms.
package platform

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for resolver operations.
var (
	ErrNotFound       = errors.New("platform: not found")
	ErrRateLimited    = errors.New("platform: rate limited")
	ErrNetworkTimeout = errors.New("platform: network timeout")
	ErrInvalidRef     = errors.New("platform: invalid reference")
	ErrUnavailable    = errors.New("platform: media unavailable")
)

// Kind identifies the grouping a feed reference points at.
type Kind string

const (
	KindChannel  Kind = "channel"
	KindUser     Kind = "user"
	KindPlaylist Kind = "playlist"
	KindCategory Kind = "category"
)

// Format selects the enclosure type generated for feed items.
type Format string

const (
	FormatAudio Format = "audio"
	FormatVideo Format = "video"
)

// ParseFormat maps a path segment to a Format, defaulting to audio.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "", string(FormatAudio):
		return FormatAudio, true
	case string(FormatVideo):
		return FormatVideo, true
	}
	return FormatAudio, false
}

// Resolver resolves a (kind, reference) pair against an upstream platform
// and returns the media items that belong to it. Implementations exist per
// platform and may use official APIs or page scraping.
type Resolver interface {
	// Name returns the platform identifier used in routes and logs.
	Name() string

	// Resolve fetches feed metadata and items for the given reference.
	Resolve(ctx context.Context, kind Kind, ref string, opts *ResolveOptions) (*Feed, error)
}

// VideoURLResolver resolves a single media identifier to a direct,
// playable URL. Platforms that only hide the media URL behind embed
// pages implement this for redirect handlers.
type VideoURLResolver interface {
	ResolveVideoURL(ctx context.Context, ref string) (string, error)
}

// ResolveOptions configures feed resolution.
type ResolveOptions struct {
	// MaxPages caps the number of listing pages fetched. 0 means no cap.
	MaxPages int

	// MaxItems caps the number of items returned. Values < 1 mean no cap.
	MaxItems int

	// AsChannel replaces playlist metadata with the owning channel's
	// title, description and image.
	AsChannel bool
}

// Feed is the resolved result: metadata plus items, newest first.
type Feed struct {
	Meta  Meta
	Items []Item

	// CanonicalRef is the platform's canonical identifier for the
	// reference that was resolved, when it differs from the request
	// (e.g. a legacy YouTube username resolved to a channel ID).
	CanonicalRef string

	// Calls is the number of upstream requests used to build the feed.
	// Feed caches use it to scale the cache TTL.
	Calls int
}

// Meta describes the feed itself.
type Meta struct {
	Title       string
	Description string
	Author      string
	Link        string
	Image       string
	Language    string
}

// Item is a single media entry in a feed.
type Item struct {
	// ID is the platform's media identifier (video ID or path).
	ID          string
	Title       string
	Description string
	Author      string
	Link        string
	Thumbnail   string
	Duration    time.Duration
	Published   time.Time
}

// ResolveError wraps resolution errors with context about what failed.
// Use errors.As() to extract it:
//
//	var resErr *platform.ResolveError
//	if errors.As(err, &resErr) {
//		fmt.Printf("%s %s %s: %v\n", resErr.Platform, resErr.Kind, resErr.Ref, resErr.Err)
//	}
type ResolveError struct {
	Platform string
	Kind     Kind
	Ref      string
	Err      error
}

func (e *ResolveError) Error() string {
	return "platform: " + e.Platform + " " + string(e.Kind) + " " + e.Ref + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ResolveError) Unwrap() error { return e.Err }
