// Command podtube serves podcast RSS feeds generated from video
// platform channels and playlists, converting videos to audio in the
// background.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"podtube/cache"
	"podtube/config"
	"podtube/converter"
	"podtube/httpx"
	"podtube/internal/retry"
	"podtube/metrics"
	"podtube/platform"
	"podtube/platform/bitchute"
	"podtube/platform/dailymotion"
	"podtube/platform/rumble"
	"podtube/platform/youtube"
	"podtube/server"
	"podtube/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "podtube:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		port       = flag.Int("port", 0, "HTTP listen port")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
		dataDir    = flag.String("data-dir", "", "directory for converted media")
		apiKey     = flag.String("youtube-api-key", "", "YouTube Data API key")
	)
	flag.Parse()

	// A .env file is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	path := *configPath
	if path == "" {
		path = os.Getenv("PODTUBE_CONFIG_FILE")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cfg, *port, *logLevel, *dataDir, *apiKey)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return err
	}
	if removed, err := st.RemoveTempFiles(); err != nil {
		log.Warn("temp file sweep failed", zap.Error(err))
	} else if removed > 0 {
		log.Info("removed leftover temp files", zap.Int("count", removed))
	}

	hcfg := httpx.DefaultConfig()
	hcfg.Timeout = cfg.HTTPTimeout
	hcfg.ProxyURL = cfg.ProxyURL
	hcfg.Retry.MaxRetries = cfg.MaxRetries
	hcfg.Retry.InitialBackoff = cfg.RetryBackoff
	hcfg.RateLimiter.DefaultRPS = cfg.RateLimit
	for host, rps := range cfg.RateLimitPerHost {
		hcfg.RateLimiter.PerHost[host] = rps
	}
	client, err := httpx.New(hcfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	conv := converter.New(converter.Config{
		Interval:      cfg.ConvertInterval,
		MaxConcurrent: cfg.MaxConversions,
	}, st, converter.NewYouTubeFetcher(client.HTTPClient()), &converter.FFmpegTranscoder{Binary: cfg.FFmpegPath}, log.Named("converter"))
	conv.OnFinish = func(id string, d time.Duration, err error) {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		m.ConversionsTotal.WithLabelValues(outcome).Inc()
		m.ConversionDuration.Observe(d.Seconds())
		m.QueueDepth.Set(float64(conv.Queue().Len()))
	}

	resolvers, videoURLs, handles, err := buildResolvers(cfg, client, log)
	if err != nil {
		return err
	}

	var handleCache *cache.Cache[string]
	var handleLookup server.HandleLookup
	if handles != nil {
		handleCache = handles.Cache()
		handleLookup = handles
	}
	srv := server.New(server.Options{
		Config:    cfg,
		Log:       log.Named("http"),
		Metrics:   m,
		Store:     st,
		Converter: server.AdaptConverter(conv),
		Resolvers: resolvers,
		VideoURLs: videoURLs,
		Handles:   handleLookup,
		HandleIDs: handleCache,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := conv.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := srv.RunMaintenance(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// applyFlags overrides loaded config with explicitly set flags.
func applyFlags(cfg *config.Config, port int, logLevel, dataDir, apiKey string) {
	if port != 0 {
		cfg.Port = port
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if apiKey != "" {
		cfg.YouTubeAPIKey = apiKey
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func buildResolvers(cfg *config.Config, client *httpx.Client, log *zap.Logger) (map[string]platform.Resolver, map[string]platform.VideoURLResolver, *youtube.HandleResolver, error) {
	resolvers := map[string]platform.Resolver{}
	videoURLs := map[string]platform.VideoURLResolver{}

	var handles *youtube.HandleResolver
	if cfg.YouTubeAPIKey != "" {
		yt, err := youtube.New(context.Background(), cfg.YouTubeAPIKey)
		if err != nil {
			return nil, nil, nil, err
		}
		handles = youtube.NewHandleResolver(client)
		yt.Handles = handles
		rcfg := retry.DefaultConfig()
		rcfg.MaxRetries = cfg.MaxRetries
		rcfg.InitialBackoff = cfg.RetryBackoff
		yt.RetryConfig = &rcfg
		resolvers["youtube"] = yt
	} else {
		log.Warn("no YouTube API key configured, /youtube feeds disabled")
	}

	rb := rumble.New(client)
	resolvers["rumble"] = rb
	videoURLs["rumble"] = rb

	bc := bitchute.New(client)
	resolvers["bitchute"] = bc
	videoURLs["bitchute"] = bc

	dm := dailymotion.New(client)
	resolvers["dailymotion"] = dm
	videoURLs["dailymotion"] = dm

	return resolvers, videoURLs, handles, nil
}
