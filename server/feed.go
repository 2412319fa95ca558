package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"podtube/cache"
	"podtube/feed"
	"podtube/platform"
)

// splitFormat peels a trailing /audio or /video segment off a ref.
// Audio is the default.
func splitFormat(ref string) (string, platform.Format) {
	if idx := strings.LastIndexByte(ref, '/'); idx != -1 {
		if format, ok := platform.ParseFormat(ref[idx+1:]); ok {
			return ref[:idx], format
		}
	}
	return ref, platform.FormatAudio
}

// parseOptions reads the shared feed query parameters.
func parseOptions(c *gin.Context) *platform.ResolveOptions {
	opts := &platform.ResolveOptions{}

	if raw := c.Query("max"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			opts.MaxPages = n
		}
	}
	if raw := c.Query("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			// Unparseable limits collapse to a single item rather
			// than an unbounded fetch.
			n = 1
		}
		if n > 0 {
			opts.MaxItems = n
		}
	}
	if raw := c.Query("as_channel"); raw != "" {
		opts.AsChannel = raw == "true" || raw == "1"
	}
	return opts
}

func feedKey(platformName string, kind platform.Kind, ref string, format platform.Format, opts *platform.ResolveOptions) string {
	return fmt.Sprintf("%s/%s/%s/%s/p%d-i%d-c%t",
		platformName, kind, ref, format, opts.MaxPages, opts.MaxItems, opts.AsChannel)
}

func (s *Server) feedCache(kind platform.Kind) *cache.Cache[[]byte] {
	if kind == platform.KindPlaylist {
		return s.playlistFeeds
	}
	return s.channelFeeds
}

func (s *Server) handleFeed(platformName string, kind platform.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := strings.Trim(c.Param("ref"), "/")
		if ref == "" {
			c.String(http.StatusBadRequest, "missing %s reference", kind)
			return
		}
		ref, format := splitFormat(ref)
		opts := parseOptions(c)

		cch := s.feedCache(kind)
		key := feedKey(platformName, kind, ref, format, opts)
		if body, ok := cch.Get(key); ok {
			s.metrics.FeedCacheHits.WithLabelValues("hit").Inc()
			c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", body)
			return
		}
		s.metrics.FeedCacheHits.WithLabelValues("miss").Inc()

		resolver, ok := s.resolvers[platformName]
		if !ok {
			c.String(http.StatusNotFound, "unknown platform %q", platformName)
			return
		}

		resolved, err := resolver.Resolve(c.Request.Context(), kind, ref, opts)
		if err != nil {
			s.renderResolveError(c, err)
			return
		}

		body, err := feed.Build(resolved, feed.Options{
			SelfLink:     requestURL(c),
			Format:       format,
			Generator:    "podtube " + Version,
			EnclosureURL: s.enclosureURL(c, platformName, format),
		})
		if err != nil {
			s.log.Error("feed render failed",
				zap.String("platform", platformName),
				zap.String("ref", ref),
				zap.Error(err))
			c.String(http.StatusInternalServerError, "feed render failed")
			return
		}

		// The more upstream calls a feed cost, the longer it is kept.
		calls := resolved.Calls
		if calls < 1 {
			calls = 1
		}
		ttl := time.Duration(calls) * time.Hour
		cch.PutLabeled(key, resolved.Meta.Title, body, ttl)
		if resolved.CanonicalRef != "" && resolved.CanonicalRef != ref {
			alias := feedKey(platformName, kind, resolved.CanonicalRef, format, opts)
			cch.PutLabeled(alias, resolved.Meta.Title, body, ttl)
		}

		s.autoloadNewest(platformName, format, resolved)

		c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", body)
	}
}

func (s *Server) headFeed(c *gin.Context) {
	c.Header("Content-Type", "application/rss+xml")
	c.Header("Accept-Ranges", "bytes")
	c.Status(http.StatusOK)
}

// enclosureURL routes media through this host: converted audio for
// YouTube, redirecting video endpoints for the scraped platforms.
func (s *Server) enclosureURL(c *gin.Context, platformName string, format platform.Format) func(platform.Item) string {
	base := requestBase(c)
	return func(it platform.Item) string {
		if platformName == "youtube" {
			if format == platform.FormatAudio {
				return base + "/youtube/audio/" + it.ID
			}
			return it.Link
		}
		return base + "/" + platformName + "/video/" + it.ID
	}
}

// autoloadNewest warms the converter with the newest feed item so the
// first subscriber download is instant.
func (s *Server) autoloadNewest(platformName string, format platform.Format, resolved *platform.Feed) {
	if !s.cfg.AutoloadNewest || s.converter == nil {
		return
	}
	if platformName != "youtube" || format != platform.FormatAudio || len(resolved.Items) == 0 {
		return
	}
	id := resolved.Items[0].ID
	if s.store != nil && s.store.HasAudio(id) {
		return
	}
	if _, err := s.converter.Enqueue(id); err != nil {
		s.log.Debug("autoload skipped", zap.String("video_id", id), zap.Error(err))
	}
}

func (s *Server) renderResolveError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, platform.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, platform.ErrInvalidRef):
		status = http.StatusBadRequest
	case errors.Is(err, platform.ErrRateLimited):
		status = http.StatusTooManyRequests
	default:
		status = http.StatusBadGateway
	}

	var rerr *platform.ResolveError
	if errors.As(err, &rerr) {
		s.log.Warn("resolve failed",
			zap.String("platform", rerr.Platform),
			zap.String("kind", string(rerr.Kind)),
			zap.String("ref", rerr.Ref),
			zap.Int("status", status),
			zap.Error(rerr.Err))
	} else {
		s.log.Warn("resolve failed", zap.Int("status", status), zap.Error(err))
	}
	c.String(status, "upstream resolution failed")
}

func requestBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

func requestURL(c *gin.Context) string {
	return requestBase(c) + c.Request.URL.RequestURI()
}
