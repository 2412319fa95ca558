package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"podtube/platform"
)

// videoLinkTTL caps how long resolved media URLs stay cached. Upstream
// CDN links expire, so this stays short.
const videoLinkTTL = time.Hour

// linkTTL derives a cache lifetime from the URL's expire parameter,
// which CDNs stamp with a unix deadline. Falls back to videoLinkTTL.
func linkTTL(rawURL string, now time.Time) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return videoLinkTTL
	}
	v := u.Query().Get("expire")
	if v == "" {
		return videoLinkTTL
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return videoLinkTTL
	}
	if d := time.Unix(secs, 0).Sub(now); d > 0 && d < videoLinkTTL {
		return d
	}
	return videoLinkTTL
}

// handleVideoRedirect resolves a platform video ref to its raw media
// URL and redirects the client there.
func (s *Server) handleVideoRedirect(platformName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := strings.Trim(c.Param("ref"), "/")
		if ref == "" {
			c.Status(http.StatusBadRequest)
			return
		}

		key := platformName + "/" + ref
		if url, ok := s.videoLinks.Get(key); ok {
			c.Redirect(http.StatusFound, url)
			return
		}

		resolver, ok := s.videoURLs[platformName]
		if !ok {
			c.String(http.StatusNotFound, "unknown platform %q", platformName)
			return
		}

		url, err := resolver.ResolveVideoURL(c.Request.Context(), ref)
		if err != nil {
			s.renderResolveError(c, err)
			return
		}

		s.videoLinks.PutLabeled(key, ref, url, linkTTL(url, time.Now()))
		s.log.Debug("resolved video url",
			zap.String("platform", platformName),
			zap.String("ref", ref))
		c.Redirect(http.StatusFound, url)
	}
}

// handleUserRedirect resolves a @handle or vanity name to its channel
// ID and redirects to the channel feed, keeping any format suffix and
// query parameters.
func (s *Server) handleUserRedirect(c *gin.Context) {
	ref := strings.Trim(c.Param("ref"), "/")
	if ref == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if s.handles == nil {
		c.String(http.StatusNotFound, "handle lookup not configured")
		return
	}

	suffix := ""
	if idx := strings.LastIndexByte(ref, '/'); idx != -1 {
		if _, ok := platform.ParseFormat(ref[idx+1:]); ok {
			suffix = "/" + ref[idx+1:]
			ref = ref[:idx]
		}
	}

	id, err := s.handles.Lookup(c.Request.Context(), strings.TrimPrefix(ref, "@"))
	if err != nil {
		s.renderResolveError(c, err)
		return
	}

	target := "/youtube/channel/" + id + suffix
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	c.Redirect(http.StatusFound, target)
}

// handleWatchRedirect points a video ID at its watch page.
func (s *Server) handleWatchRedirect(c *gin.Context) {
	id := strings.Trim(c.Param("ref"), "/")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	c.Redirect(http.StatusFound, "https://www.youtube.com/watch?v="+id)
}
