package enhance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// FilterChain doubles the resolution with Lanczos resampling and applies a
// light unsharp mask.
const FilterChain = "scale=iw*2:ih*2:flags=lanczos,unsharp=5:5:1.0:5:5:0.0"

// ErrEmptyOutput is returned when the transform exits cleanly but writes
// nothing.
var ErrEmptyOutput = errors.New("transform produced no output")

// stderrTail is how much of the process stderr is kept for error messages.
const stderrTail = 512

// FFmpegTransformer runs ffmpeg with FilterChain.
type FFmpegTransformer struct {
	// Path is the ffmpeg binary; empty means "ffmpeg" on PATH.
	Path string
}

var _ Transformer = (*FFmpegTransformer)(nil)

// Args returns the ffmpeg arguments for one run.
func (t *FFmpegTransformer) Args(in, out string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", in,
		"-vf", FilterChain,
		"-c:a", "copy",
		out,
	}
}

// Transform runs ffmpeg. It succeeds only when the process exits with status
// zero and out is a non-empty file.
func (t *FFmpegTransformer) Transform(ctx context.Context, in, out string) error {
	bin := t.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, t.Args(in, out)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := tail(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if info.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}
