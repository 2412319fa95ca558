// Package server wires the HTTP surface: feed endpoints, audio
// delivery, video redirects, and cache administration.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"podtube/cache"
	"podtube/config"
	"podtube/converter"
	"podtube/metrics"
	"podtube/platform"
	"podtube/store"
)

// Version is reported on the info page and in feed generators.
const Version = "2.0.0"

// Waiter blocks until a scheduled conversion completes.
type Waiter interface {
	Wait(ctx context.Context) error
}

// HandleLookup resolves a channel handle or vanity name to its ID.
type HandleLookup interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Converter schedules media conversions.
type Converter interface {
	Enqueue(id string) (Waiter, error)
}

// converterAdapter narrows *converter.Converter to the server's view.
type converterAdapter struct {
	c *converter.Converter
}

func (a converterAdapter) Enqueue(id string) (Waiter, error) {
	job, err := a.c.Enqueue(id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// AdaptConverter wraps the background converter for use by the server.
func AdaptConverter(c *converter.Converter) Converter {
	return converterAdapter{c: c}
}

// LabeledCache is the subset of cache behavior the admin endpoint
// needs from any cache class.
type LabeledCache interface {
	Entries() []cache.EntryInfo
	Delete(key string) bool
	Clear() int
	Sweep() int
	Len() int
}

// Server holds every handler dependency.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	resolvers map[string]platform.Resolver
	videoURLs map[string]platform.VideoURLResolver
	handles   HandleLookup

	channelFeeds  *cache.Cache[[]byte]
	playlistFeeds *cache.Cache[[]byte]
	videoLinks    *cache.Cache[string]
	handleIDs     *cache.Cache[string]

	store     *store.Store
	converter Converter

	engine *gin.Engine
}

// Options configures a Server.
type Options struct {
	Config    *config.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Store     *store.Store
	Converter Converter

	// Resolvers maps platform names to feed resolvers.
	Resolvers map[string]platform.Resolver
	// VideoURLs maps platform names to direct video URL resolvers.
	VideoURLs map[string]platform.VideoURLResolver
	// Handles backs the /youtube/user redirect when present.
	Handles HandleLookup
	// HandleIDs is the channel handle lookup cache, shown in the
	// admin listing when present.
	HandleIDs *cache.Cache[string]
}

// New assembles the router. Call Handler or Run afterwards.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	s := &Server{
		cfg:           opts.Config,
		log:           opts.Log,
		metrics:       opts.Metrics,
		resolvers:     opts.Resolvers,
		videoURLs:     opts.VideoURLs,
		handles:       opts.Handles,
		channelFeeds:  cache.New[[]byte](),
		playlistFeeds: cache.New[[]byte](),
		videoLinks:    cache.New[string](),
		handleIDs:     opts.HandleIDs,
		store:         opts.Store,
		converter:     opts.Converter,
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.logRequests(), s.observe())

	r.GET("/", s.handleInfo)
	r.HEAD("/", s.handleInfo)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/youtube/channel/*ref", s.handleFeed("youtube", platform.KindChannel))
	r.HEAD("/youtube/channel/*ref", s.headFeed)
	r.GET("/youtube/playlist/*ref", s.handleFeed("youtube", platform.KindPlaylist))
	r.HEAD("/youtube/playlist/*ref", s.headFeed)
	r.GET("/youtube/user/*ref", s.handleUserRedirect)
	r.GET("/youtube/video/*ref", s.handleWatchRedirect)
	r.GET("/youtube/audio/*ref", s.handleAudio)
	r.HEAD("/youtube/audio/*ref", s.headAudio)
	r.GET("/youtube/cache", s.handleCacheAdmin)
	r.GET("/youtube/cache/", s.handleCacheAdmin)
	r.POST("/youtube/cache", s.handleCacheAdmin)
	r.POST("/youtube/cache/", s.handleCacheAdmin)

	r.GET("/rumble/user/*ref", s.handleFeed("rumble", platform.KindUser))
	r.GET("/rumble/channel/*ref", s.handleFeed("rumble", platform.KindChannel))
	r.GET("/rumble/category/*ref", s.handleFeed("rumble", platform.KindCategory))
	r.GET("/rumble/video/*ref", s.handleVideoRedirect("rumble"))

	r.GET("/bitchute/channel/*ref", s.handleFeed("bitchute", platform.KindChannel))
	r.GET("/bitchute/video/*ref", s.handleVideoRedirect("bitchute"))

	r.GET("/dailymotion/channel/*ref", s.handleFeed("dailymotion", platform.KindChannel))
	r.GET("/dailymotion/video/*ref", s.handleVideoRedirect("dailymotion"))

	return r
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
}
