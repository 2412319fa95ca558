package converter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// FFmpegTranscoder shells out to ffmpeg for audio extraction.
type FFmpegTranscoder struct {
	// Binary is the ffmpeg executable. Empty means "ffmpeg" on PATH.
	Binary string
}

// ToMP3 implements Transcoder.
func (t *FFmpegTranscoder) ToMP3(ctx context.Context, input, output string) error {
	binary := t.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-vn",
		"-codec:a", "libmp3lame",
		"-q:a", "2",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
