package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"podtube/store"
)

// Cache class names accepted by the admin endpoint.
const (
	classChannelFeed     = "CHANNEL_FEED"
	classPlaylistFeed    = "PLAYLIST_FEED"
	classVideoLinks      = "VIDEO_LINKS"
	classChannelNameToID = "CHANNEL_NAME_TO_ID"
	classAudioFiles      = "AUDIO_FILES"
	classVideoFiles      = "VIDEO_FILES"

	clearAll  = "ALL"
	clearNone = "NONE"
)

type cacheEntryView struct {
	Key    string    `json:"key"`
	Label  string    `json:"label,omitempty"`
	Expire time.Time `json:"expire,omitempty"`
}

func (s *Server) memoryCaches() map[string]LabeledCache {
	classes := map[string]LabeledCache{
		classChannelFeed:  s.channelFeeds,
		classPlaylistFeed: s.playlistFeeds,
		classVideoLinks:   s.videoLinks,
	}
	if s.handleIDs != nil {
		classes[classChannelNameToID] = s.handleIDs
	}
	return classes
}

// handleCacheAdmin lists cache contents and clears selected entries.
// Each query parameter names a cache class with a value of ALL, NONE,
// or a specific key.
func (s *Server) handleCacheAdmin(c *gin.Context) {
	cleared := map[string]int{}

	for class, cch := range s.memoryCaches() {
		switch value := c.Query(class); value {
		case "", clearNone:
		case clearAll:
			cleared[class] = cch.Clear()
		default:
			if cch.Delete(value) {
				cleared[class] = 1
			} else {
				cleared[class] = 0
			}
		}
	}
	s.clearMediaClass(c, classAudioFiles, cleared)
	s.clearMediaClass(c, classVideoFiles, cleared)

	if len(cleared) > 0 {
		s.log.Info("cache cleared by request",
			zap.Any("cleared", cleared),
			zap.String("client", c.ClientIP()))
		c.JSON(http.StatusOK, gin.H{"cleared": cleared})
		return
	}

	classes := map[string][]cacheEntryView{}
	for class, cch := range s.memoryCaches() {
		views := []cacheEntryView{}
		for _, e := range cch.Entries() {
			views = append(views, cacheEntryView{Key: e.Key, Label: e.Label, Expire: e.Expire})
		}
		classes[class] = views
	}
	classes[classAudioFiles] = s.mediaEntries(s.store.ListAudio)
	classes[classVideoFiles] = s.mediaEntries(s.store.ListVideo)

	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"classes": classes,
	})
}

func (s *Server) clearMediaClass(c *gin.Context, class string, cleared map[string]int) {
	if s.store == nil {
		return
	}
	value := c.Query(class)
	if value == "" || value == clearNone {
		return
	}

	var (
		count int
		err   error
	)
	if value == clearAll {
		if class == classAudioFiles {
			count, err = s.store.ClearAudio()
		} else {
			count, err = s.store.ClearVideo()
		}
	} else {
		if !store.ValidID(value) {
			s.log.Warn("rejected media key", zap.String("class", class), zap.String("key", value))
			return
		}
		if class == classAudioFiles {
			err = s.store.RemoveAudio(value)
		} else {
			err = s.store.RemoveVideo(value)
		}
		count = 1
	}
	if err != nil {
		s.log.Warn("media clear failed", zap.String("class", class), zap.Error(err))
		return
	}
	cleared[class] = count
}

func (s *Server) mediaEntries(list func() ([]store.FileInfo, error)) []cacheEntryView {
	views := []cacheEntryView{}
	if s.store == nil {
		return views
	}
	files, err := list()
	if err != nil {
		s.log.Warn("media listing failed", zap.Error(err))
		return views
	}
	for _, f := range files {
		views = append(views, cacheEntryView{
			Key:    f.ID,
			Expire: f.ModTime.Add(s.cfg.AudioTTL),
		})
	}
	return views
}

const infoPage = `<!DOCTYPE html>
<html>
<head><title>PodTube</title></head>
<body>
<h1>PodTube %s</h1>
<p>Podcast feeds for video platforms.</p>
<ul>
<li>/youtube/channel/&lt;id or @handle&gt;[/audio|/video]</li>
<li>/youtube/playlist/&lt;id&gt;[/audio|/video]</li>
<li>/youtube/user/&lt;@handle or name&gt;</li>
<li>/youtube/video/&lt;video id&gt;</li>
<li>/youtube/audio/&lt;video id&gt;</li>
<li>/youtube/cache</li>
<li>/rumble/user/&lt;name&gt;</li>
<li>/rumble/channel/&lt;name&gt;</li>
<li>/rumble/category/&lt;name&gt;</li>
<li>/rumble/video/&lt;ref&gt;</li>
<li>/bitchute/channel/&lt;name&gt;</li>
<li>/bitchute/video/&lt;id&gt;</li>
<li>/dailymotion/channel/&lt;name&gt;</li>
<li>/dailymotion/video/&lt;id&gt;</li>
</ul>
<p>Feed parameters: max (pages), max_items, as_channel.</p>
</body>
</html>`

func (s *Server) handleInfo(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.String(http.StatusOK, infoPage, Version)
}
