package pose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repcount/internal/frame"
)

var (
	ErrDetectionUnavailable = errors.New("pose detection unavailable")
)

// Detector estimates body landmarks for a single frame.
type Detector interface {
	// Name returns the backend identifier (e.g., "mediapipe", "http", "grpc")
	Name() string

	// Detect runs pose estimation on a frame. A result without landmarks is
	// a normal outcome, not an error.
	Detect(ctx context.Context, f *frame.Frame) (*Result, error)

	// Close releases backend resources
	Close() error
}

// Factory opens a new detector handle. Each live session and each batch
// run owns the handle it opens.
type Factory func(ctx context.Context) (Detector, error)

// Backend identifiers accepted by NewFactory.
const (
	BackendMediaPipe = "mediapipe"
	BackendHTTP      = "http"
	BackendGRPC      = "grpc"
)

// Config selects and configures a pose backend.
type Config struct {
	Backend  string
	Endpoint string        // http and grpc backends
	Script   string        // mediapipe backend: path to the pose service script
	Python   string        // mediapipe backend: interpreter, defaults to python3
	Timeout  time.Duration // per-request timeout
}

// NewFactory returns a Factory for the configured backend. Errors from the
// returned Factory wrap ErrDetectionUnavailable.
func NewFactory(cfg Config) (Factory, error) {
	var open func(ctx context.Context) (Detector, error)

	switch cfg.Backend {
	case BackendMediaPipe, "":
		open = func(ctx context.Context) (Detector, error) {
			return NewMediaPipeDetector(ctx, MediaPipeConfig{
				Script:  cfg.Script,
				Python:  cfg.Python,
				Timeout: cfg.Timeout,
			})
		}
	case BackendHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("pose backend %q requires an endpoint", cfg.Backend)
		}
		open = func(ctx context.Context) (Detector, error) {
			return NewHTTPDetector(ctx, cfg.Endpoint, cfg.Timeout)
		}
	case BackendGRPC:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("pose backend %q requires an endpoint", cfg.Backend)
		}
		open = func(ctx context.Context) (Detector, error) {
			return NewGRPCDetector(ctx, GRPCConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout})
		}
	default:
		return nil, fmt.Errorf("unknown pose backend %q", cfg.Backend)
	}

	return func(ctx context.Context) (Detector, error) {
		d, err := open(ctx)
		if err != nil {
			if errors.Is(err, ErrDetectionUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
		}
		return d, nil
	}, nil
}
