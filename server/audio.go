package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"podtube/platform"
	"podtube/store"
)

func (s *Server) headAudio(c *gin.Context) {
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "audio/mpeg")
	c.Status(http.StatusOK)
}

// handleAudio serves a converted audio file, scheduling the conversion
// and blocking until it completes when necessary.
func (s *Server) handleAudio(c *gin.Context) {
	id := strings.Trim(c.Param("ref"), "/")
	if !store.ValidID(id) {
		c.Status(http.StatusBadRequest)
		return
	}

	if !s.store.HasAudio(id) {
		if err := s.awaitConversion(c.Request.Context(), id); err != nil {
			switch {
			case errors.Is(err, platform.ErrUnavailable):
				// Live streams and removed videos cannot be converted.
				c.Status(http.StatusUnprocessableEntity)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.Status(http.StatusRequestTimeout)
			default:
				s.log.Warn("conversion failed for request", zap.String("video_id", id), zap.Error(err))
				c.Status(http.StatusNotFound)
			}
			return
		}
	}
	if !s.store.HasAudio(id) {
		c.Status(http.StatusNotFound)
		return
	}

	s.serveAudioFile(c, id)
}

func (s *Server) awaitConversion(ctx context.Context, id string) error {
	if s.converter == nil {
		return fmt.Errorf("no converter configured")
	}
	waiter, err := s.converter.Enqueue(id)
	if err != nil {
		return err
	}
	return waiter.Wait(ctx)
}

func (s *Server) serveAudioFile(c *gin.Context, id string) {
	info, err := s.store.AudioInfo(id)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	size := info.Size

	start, end, partial, ok := parseRange(c.GetHeader("Range"), size)
	if !ok {
		c.Header("Content-Type", "audio/mpeg")
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, size))
	}

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Length", strconv.FormatInt(end-start, 10))
	c.Status(status)

	if c.Request.Method == http.MethodHead {
		return
	}

	f, err := os.Open(s.store.AudioPath(id))
	if err != nil {
		return
	}
	defer f.Close()
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return
		}
	}
	// Client disconnects surface as write errors and just end the copy.
	io.CopyN(c.Writer, f, end-start)
}

// parseRange interprets a Range header against a file of the given
// size. It returns half-open [start, end) offsets. partial is false
// when the range covers the whole file, which must be served as a
// plain 200: some players refuse 206 responses to "bytes=0-". ok is
// false only for unsatisfiable ranges. A missing or malformed header
// selects the whole file.
func parseRange(header string, size int64) (start, end int64, partial, ok bool) {
	full := func() (int64, int64, bool, bool) { return 0, size, false, true }

	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return full()
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		// Multipart ranges are not supported; serve the whole file.
		return full()
	}
	dash := strings.IndexByte(spec, '-')
	if dash == -1 {
		return full()
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return full()
		}
		if n == 0 {
			return 0, 0, false, false
		}
		if n > size {
			n = size
		}
		start = size - n
		return start, size, start != 0, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return full()
	}
	if start >= size {
		return 0, 0, false, false
	}

	end = size
	if endStr != "" {
		last, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return full()
		}
		end = last + 1
		if end > size {
			end = size
		}
		if end <= start {
			return 0, 0, false, false
		}
	}
	return start, end, end-start != size, true
}
