// Package converter downloads platform videos and renders them to MP3.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"podtube/cache"
	"podtube/platform"
	"podtube/store"
)

// Fetcher downloads the best available stream for a video to w. It
// reports whether the stream is audio-only. Implementations return an
// error wrapping platform.ErrUnavailable for live or removed videos.
type Fetcher interface {
	Fetch(ctx context.Context, id string, w io.Writer) (audioOnly bool, err error)
}

// Transcoder extracts the audio track of input into an MP3 at output.
type Transcoder interface {
	ToMP3(ctx context.Context, input, output string) error
}

// Config tunes the conversion worker.
type Config struct {
	// Interval between queue polls.
	Interval time.Duration
	// MaxConcurrent bounds simultaneous conversions.
	MaxConcurrent int
	// UnavailableTTL is how long failed lookups for live or removed
	// videos are remembered before retrying.
	UnavailableTTL time.Duration
}

// DefaultConfig returns conversion settings suitable for a small host.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		MaxConcurrent:  2,
		UnavailableTTL: 6 * time.Hour,
	}
}

// Converter drains the queue in the background, at most
// MaxConcurrent jobs at a time.
type Converter struct {
	cfg        Config
	queue      *Queue
	store      *store.Store
	fetcher    Fetcher
	transcoder Transcoder
	log        *zap.Logger

	sem         chan struct{}
	unavailable *cache.Cache[time.Time]

	// OnFinish, when set, observes every finished job.
	OnFinish func(id string, d time.Duration, err error)
}

// New creates a converter. Defaults are applied for zero config fields.
func New(cfg Config, st *store.Store, fetcher Fetcher, transcoder Transcoder, log *zap.Logger) *Converter {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.UnavailableTTL <= 0 {
		cfg.UnavailableTTL = def.UnavailableTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Converter{
		cfg:         cfg,
		queue:       NewQueue(),
		store:       st,
		fetcher:     fetcher,
		transcoder:  transcoder,
		log:         log,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		unavailable: cache.New[time.Time](),
	}
}

// Queue returns the underlying job queue.
func (c *Converter) Queue() *Queue { return c.queue }

// Enqueue schedules a conversion for id. It fails fast with
// platform.ErrUnavailable when the video was recently found to be live
// or removed. IDs that cannot name a store file are rejected before
// they reach the filesystem.
func (c *Converter) Enqueue(id string) (*Job, error) {
	if !store.ValidID(id) {
		return nil, fmt.Errorf("converter: invalid video id %q: %w", id, platform.ErrInvalidRef)
	}
	if _, ok := c.unavailable.Get(id); ok {
		return nil, fmt.Errorf("converter: %s: %w", id, platform.ErrUnavailable)
	}
	return c.queue.Enqueue(id), nil
}

// Run polls the queue until the context is canceled. In-flight jobs
// finish before Run returns.
func (c *Converter) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case <-ticker.C:
			c.dispatch(ctx)
		}
	}
}

// dispatch starts queued jobs while worker slots are free.
func (c *Converter) dispatch(ctx context.Context) {
	for {
		select {
		case c.sem <- struct{}{}:
		default:
			return
		}
		job := c.queue.next()
		if job == nil {
			<-c.sem
			return
		}
		go func(job *Job) {
			defer func() { <-c.sem }()
			start := time.Now()
			err := c.convert(ctx, job.ID)
			c.queue.complete(job, err)
			d := time.Since(start)
			if c.OnFinish != nil {
				c.OnFinish(job.ID, d, err)
			}
			if err != nil {
				c.log.Warn("conversion failed",
					zap.String("video_id", job.ID),
					zap.Duration("elapsed", d),
					zap.Error(err))
				return
			}
			c.log.Info("conversion finished",
				zap.String("video_id", job.ID),
				zap.Duration("elapsed", d))
		}(job)
	}
}

// drain waits for in-flight jobs by filling the semaphore.
func (c *Converter) drain() {
	for i := 0; i < cap(c.sem); i++ {
		c.sem <- struct{}{}
	}
}

func (c *Converter) convert(ctx context.Context, id string) error {
	if _, ok := c.unavailable.Get(id); ok {
		return fmt.Errorf("converter: %s: %w", id, platform.ErrUnavailable)
	}
	if c.store.HasAudio(id) {
		return nil
	}

	videoPath := c.store.VideoPath(id)
	if err := c.download(ctx, id, videoPath); err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			c.unavailable.Put(id, time.Now(), c.cfg.UnavailableTTL)
		}
		return err
	}

	audioPath := c.store.AudioPath(id)
	audioTemp := store.TempPath(audioPath)
	if err := c.transcoder.ToMP3(ctx, videoPath, audioTemp); err != nil {
		os.Remove(audioTemp)
		c.store.RemoveVideo(id)
		return fmt.Errorf("transcode %s: %w", id, err)
	}
	if err := store.Promote(audioTemp, audioPath); err != nil {
		c.store.RemoveVideo(id)
		return fmt.Errorf("promote audio %s: %w", id, err)
	}
	if err := c.store.RemoveVideo(id); err != nil {
		c.log.Warn("failed to remove intermediate video", zap.String("video_id", id), zap.Error(err))
	}
	return nil
}

func (c *Converter) download(ctx context.Context, id, videoPath string) error {
	temp := store.TempPath(videoPath)
	f, err := os.Create(temp)
	if err != nil {
		return fmt.Errorf("create temp %s: %w", id, err)
	}
	if _, err := c.fetcher.Fetch(ctx, id, f); err != nil {
		f.Close()
		os.Remove(temp)
		return fmt.Errorf("fetch %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(temp)
		return fmt.Errorf("close temp %s: %w", id, err)
	}
	if err := store.Promote(temp, videoPath); err != nil {
		return fmt.Errorf("promote video %s: %w", id, err)
	}
	return nil
}
