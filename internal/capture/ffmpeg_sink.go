package capture

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"repcount/internal/frame"
)

// FFmpegSink encodes JPEG frames piped on stdin into an MPEG-4 video file.
type FFmpegSink struct {
	path    string
	quality int
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tailBuffer
	frames  int
	closed  bool
}

// OpenFFmpegSink creates path and starts the encoder. The frame rate comes
// from info, with DefaultFPS standing in for an unknown rate.
func OpenFFmpegSink(path string, info StreamInfo, quality int) (*FFmpegSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create output dir: %v", ErrSinkUnavailable, err)
	}
	// Fail early on unwritable paths instead of on the first frame.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	f.Close()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-framerate", strconv.FormatFloat(info.FrameRate(), 'f', -1, 64),
		"-i", "-",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "mpeg4",
		"-q:v", "5",
		"-pix_fmt", "yuv420p",
		path,
	}

	s := &FFmpegSink{
		path:    path,
		quality: quality,
		stderr:  &tailBuffer{max: 2048},
	}
	s.cmd = exec.Command("ffmpeg", args...)
	s.cmd.Stderr = s.stderr

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: error creating stdin pipe: %v", ErrSinkUnavailable, err)
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: error starting ffmpeg: %v", ErrSinkUnavailable, err)
	}

	log.Printf("[FFmpegSink] Writing %s at %.2f fps", path, info.FrameRate())
	return s, nil
}

// Write appends one frame to the video.
func (s *FFmpegSink) Write(f *frame.Frame) error {
	if s.closed {
		return fmt.Errorf("%w: sink closed", ErrSinkUnavailable)
	}
	data, err := f.JPEG(s.quality)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: error writing frame %d: %v (stderr: %s)", ErrSinkUnavailable, f.Seq, err, s.stderr.String())
	}
	s.frames++
	return nil
}

// Close flushes the encoder and waits for it to finish the file. A sink
// that received no frames removes its output file instead.
func (s *FFmpegSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.stdin.Close()
	err := s.cmd.Wait()
	if s.frames == 0 {
		// ffmpeg rejects empty input; there is no video to keep.
		os.Remove(s.path)
		log.Printf("[FFmpegSink] No frames written, removed %s", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: ffmpeg failed: %v (stderr: %s)", ErrSinkUnavailable, err, s.stderr.String())
	}
	log.Printf("[FFmpegSink] Finished %s (%d frames)", s.path, s.frames)
	return nil
}

var _ Sink = (*FFmpegSink)(nil)
