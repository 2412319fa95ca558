package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	yt "github.com/kkdai/youtube/v2"

	"podtube/platform"
)

// YouTubeFetcher downloads streams through the InnerTube player API,
// preferring audio-only formats to keep downloads small.
type YouTubeFetcher struct {
	client yt.Client
}

// NewYouTubeFetcher creates a fetcher. A nil httpClient uses the
// default transport.
func NewYouTubeFetcher(httpClient *http.Client) *YouTubeFetcher {
	return &YouTubeFetcher{
		client: yt.Client{HTTPClient: httpClient},
	}
}

// Fetch implements Fetcher.
func (f *YouTubeFetcher) Fetch(ctx context.Context, id string, w io.Writer) (bool, error) {
	video, err := f.client.GetVideoContext(ctx, id)
	if err != nil {
		return false, classifyError(id, err)
	}
	// Live streams report no duration and cannot be converted.
	if video.Duration == 0 {
		return false, fmt.Errorf("youtube fetch %s: live stream: %w", id, platform.ErrUnavailable)
	}

	format, audioOnly, err := pickFormat(video)
	if err != nil {
		return false, err
	}

	stream, _, err := f.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return false, fmt.Errorf("youtube stream %s: %w", id, err)
	}
	defer stream.Close()

	if _, err := io.Copy(w, stream); err != nil {
		return false, fmt.Errorf("youtube download %s: %w", id, err)
	}
	return audioOnly, nil
}

// pickFormat prefers the highest-bitrate audio-only format and falls
// back to a muxed format with audio channels.
func pickFormat(video *yt.Video) (*yt.Format, bool, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, false, fmt.Errorf("youtube %s: no audio formats: %w", video.ID, platform.ErrUnavailable)
	}

	var audio *yt.Format
	for i := range formats {
		if !strings.HasPrefix(formats[i].MimeType, "audio/") {
			continue
		}
		if audio == nil || formats[i].Bitrate > audio.Bitrate {
			audio = &formats[i]
		}
	}
	if audio != nil {
		return audio, true, nil
	}
	return &formats[0], false, nil
}

// classifyError maps player API failures to domain sentinels so the
// caller can distinguish gone videos from transient faults.
func classifyError(id string, err error) error {
	var playability *yt.ErrPlayabiltyStatus
	if errors.As(err, &playability) {
		return fmt.Errorf("youtube fetch %s: %s: %w", id, playability.Reason, platform.ErrUnavailable)
	}
	if errors.Is(err, yt.ErrVideoPrivate) {
		return fmt.Errorf("youtube fetch %s: %w", id, platform.ErrUnavailable)
	}
	return fmt.Errorf("youtube fetch %s: %w", id, err)
}
