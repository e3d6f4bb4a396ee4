// Package capture reads frames from video files and cameras and writes
// annotated frames back to video files.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"repcount/internal/frame"
)

var (
	ErrSourceUnavailable = errors.New("video source unavailable")
	ErrSinkUnavailable   = errors.New("video sink unavailable")
)

// DefaultFPS is substituted when a source does not report its frame rate.
const DefaultFPS = 20

// StreamInfo describes the frames a source produces.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64 // 0 when unknown
}

// FrameRate returns the frame rate to encode output with.
func (i StreamInfo) FrameRate() float64 {
	if i.FPS <= 0 {
		return DefaultFPS
	}
	return i.FPS
}

// Source produces frames until it is exhausted.
type Source interface {
	// Read blocks until the next frame is available. It returns io.EOF at
	// the end of a finite stream.
	Read(ctx context.Context) (*frame.Frame, error)

	// Info returns stream metadata
	Info() StreamInfo

	// Close releases the capture handle. Safe to call more than once.
	Close() error
}

// Sink consumes frames, typically encoding them into a video file.
type Sink interface {
	Write(f *frame.Frame) error
	Close() error
}

// OpenFunc opens a source. source is a file path, a camera device
// (/dev/video0, or a bare index such as "0") or a network URL.
type OpenFunc func(ctx context.Context, source string) (Source, error)

// SinkFunc opens a sink writing to path.
type SinkFunc func(path string, info StreamInfo) (Sink, error)

// Config selects the capture backend.
type Config struct {
	Backend string // "ffmpeg" (default) or "opencv" when built with -tags gocv
	Width   int    // camera capture size
	Height  int
	FPS     int
	Quality int // JPEG quality for re-encoded frames
}

type backend struct {
	open func(cfg Config) OpenFunc
	sink func(cfg Config) SinkFunc
}

var backends = map[string]backend{
	"ffmpeg": {
		open: func(cfg Config) OpenFunc {
			return func(ctx context.Context, source string) (Source, error) {
				return OpenFFmpeg(ctx, source, cfg)
			}
		},
		sink: func(cfg Config) SinkFunc {
			return func(path string, info StreamInfo) (Sink, error) {
				return OpenFFmpegSink(path, info, cfg.Quality)
			}
		},
	},
}

// New returns the open functions of the configured backend.
func New(cfg Config) (OpenFunc, SinkFunc, error) {
	name := strings.ToLower(cfg.Backend)
	if name == "" {
		name = "ffmpeg"
	}
	b, ok := backends[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown capture backend %q (available: %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
	return b.open(cfg), b.sink(cfg), nil
}

// Backends lists the compiled-in capture backends.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
