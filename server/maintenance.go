package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunMaintenance periodically sweeps expired cache entries and media
// files until the context is canceled.
func (s *Server) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	entries := 0
	for class, cch := range s.memoryCaches() {
		n := cch.Sweep()
		entries += n
		s.metrics.FeedCacheEntries.WithLabelValues(class).Set(float64(cch.Len()))
	}

	files := 0
	if s.store != nil {
		n, err := s.store.SweepExpired(s.cfg.AudioTTL)
		if err != nil {
			s.log.Warn("media sweep failed", zap.Error(err))
		}
		files = n
		s.updateMediaGauges()
	}

	if entries > 0 || files > 0 {
		s.log.Info("maintenance sweep",
			zap.Int("cache_entries", entries),
			zap.Int("media_files", files))
	}
}

func (s *Server) updateMediaGauges() {
	audio, err := s.store.ListAudio()
	if err != nil {
		return
	}
	var bytes int64
	for _, f := range audio {
		bytes += f.Size
	}
	s.metrics.AudioFiles.Set(float64(len(audio)))
	s.metrics.AudioBytes.Set(float64(bytes))
}
