package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"repcount/internal/frame"
)

// FFmpegSource decodes a file, camera or network stream with an ffmpeg
// subprocess emitting MJPEG on stdout.
type FFmpegSource struct {
	source string
	info   StreamInfo
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	// Read is called from one goroutine at a time; readMu guards against
	// accidental concurrent use.
	readMu      sync.Mutex
	frameBuffer []byte
	chunk       []byte
	seq         atomic.Uint64

	closed   atomic.Bool
	waitOnce sync.Once
	waitErr  error
}

// OpenFFmpeg starts decoding source. Files are probed first so that
// unreadable inputs fail here rather than on the first Read.
func OpenFFmpeg(ctx context.Context, source string, cfg Config) (*FFmpegSource, error) {
	var (
		args []string
		info StreamInfo
	)

	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	switch {
	case strings.HasPrefix(source, "rtsp://"):
		info = StreamInfo{Width: cfg.Width, Height: cfg.Height, FPS: float64(fps)}
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", source,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", strconv.Itoa(fps),
			"-q:v", "5",
			"-",
		}
	case isNetworkSource(source):
		info = StreamInfo{Width: cfg.Width, Height: cfg.Height, FPS: float64(fps)}
		args = []string{
			"-i", source,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", strconv.Itoa(fps),
			"-q:v", "5",
			"-",
		}
	case isCameraDevice(source):
		device := cameraDevice(source)
		if err := deviceAccessible(device); err != nil {
			return nil, fmt.Errorf("%w: camera device %s is not accessible: %v", ErrSourceUnavailable, device, err)
		}
		info = StreamInfo{Width: cfg.Width, Height: cfg.Height, FPS: float64(fps)}
		args = []string{"-f", "v4l2"}
		if cfg.Width > 0 && cfg.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		}
		args = append(args,
			"-framerate", strconv.Itoa(fps),
			"-i", device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		)
	default:
		if err := deviceAccessible(source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		probed, err := probe(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
		}
		info = probed
		// Every decoded frame is kept; no -r so the output matches the input timing.
		args = []string{
			"-i", source,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "3",
			"-",
		}
	}

	args = append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)

	s := &FFmpegSource{
		source:      source,
		info:        info,
		stderr:      &tailBuffer{max: 2048},
		frameBuffer: make([]byte, 0, 1024*1024),
		chunk:       make([]byte, 64*1024),
	}
	s.cmd = exec.Command("ffmpeg", args...)
	s.cmd.Stderr = s.stderr

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: error creating stdout pipe: %v", ErrSourceUnavailable, err)
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: error starting ffmpeg: %v", ErrSourceUnavailable, err)
	}

	log.Printf("[FFmpegSource] Opened %s (%dx%d @ %.2f fps)", source, info.Width, info.Height, info.FPS)
	return s, nil
}

func (s *FFmpegSource) Info() StreamInfo { return s.info }

// Read returns the next decoded frame, io.EOF once ffmpeg finished cleanly.
func (s *FFmpegSource) Read(ctx context.Context) (*frame.Frame, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if data := extractJPEGFrame(&s.frameBuffer); data != nil {
			return frame.FromJPEG(s.seq.Add(1), data), nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.closed.Load() {
			return nil, io.ErrClosedPipe
		}

		n, err := s.stdout.Read(s.chunk)
		if n > 0 {
			s.frameBuffer = append(s.frameBuffer, s.chunk[:n]...)
			continue
		}
		if err == nil {
			continue
		}

		if s.closed.Load() {
			return nil, io.ErrClosedPipe
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: error reading frame: %v", ErrSourceUnavailable, err)
		}
		if werr := s.wait(); werr != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited: %v (stderr: %s)", ErrSourceUnavailable, werr, s.stderr.String())
		}
		return nil, io.EOF
	}
}

// Close stops ffmpeg.
func (s *FFmpegSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.wait()
	log.Printf("[FFmpegSource] Closed %s after %d frames", s.source, s.seq.Load())
	return nil
}

func (s *FFmpegSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

var _ Source = (*FFmpegSource)(nil)
