//go:build gocv

package capture

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"repcount/internal/frame"
)

func init() {
	backends["opencv"] = backend{
		open: func(cfg Config) OpenFunc {
			return func(ctx context.Context, source string) (Source, error) {
				return OpenOpenCV(source, cfg)
			}
		},
		sink: func(cfg Config) SinkFunc {
			return func(path string, info StreamInfo) (Sink, error) {
				return OpenOpenCVSink(path, info)
			}
		},
	}
}

// OpenCVSource reads frames through OpenCV's VideoCapture.
type OpenCVSource struct {
	source  string
	capture *gocv.VideoCapture
	info    StreamInfo
	mat     gocv.Mat
	seq     uint64
	mu      sync.Mutex
	closed  bool
}

// OpenOpenCV opens a file or, for a bare index, a camera.
func OpenOpenCV(source string, cfg Config) (*OpenCVSource, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(source); convErr == nil {
		vc, err = gocv.VideoCaptureDevice(id)
	} else {
		vc, err = gocv.VideoCaptureFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s could not be opened", ErrSourceUnavailable, source)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	s := &OpenCVSource{
		source:  source,
		capture: vc,
		mat:     gocv.NewMat(),
		info: StreamInfo{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    vc.Get(gocv.VideoCaptureFPS),
		},
	}
	log.Printf("[OpenCVSource] Opened %s (%dx%d @ %.2f fps)", source, s.info.Width, s.info.Height, s.info.FPS)
	return s, nil
}

func (s *OpenCVSource) Info() StreamInfo { return s.info }

func (s *OpenCVSource) Read(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	s.seq++
	return frame.FromImage(s.seq, img), nil
}

func (s *OpenCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.capture.Close()
}

// OpenCVSink writes frames with OpenCV's VideoWriter using the mp4v codec.
type OpenCVSink struct {
	writer *gocv.VideoWriter
}

func OpenOpenCVSink(path string, info StreamInfo) (*OpenCVSink, error) {
	vw, err := gocv.VideoWriterFile(path, "mp4v", info.FrameRate(), info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%w: %s could not be opened for writing", ErrSinkUnavailable, path)
	}
	return &OpenCVSink{writer: vw}, nil
}

func (s *OpenCVSink) Write(f *frame.Frame) error {
	img, err := f.RGBA()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer mat.Close()

	if err := s.writer.Write(mat); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	return nil
}

func (s *OpenCVSink) Close() error {
	return s.writer.Close()
}
