package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"repcount/internal/frame"
)

// MediaPipeConfig configures the subprocess backend.
type MediaPipeConfig struct {
	Script  string
	Python  string
	Timeout time.Duration
}

// MediaPipeDetector runs MediaPipe Pose in a Python subprocess. Frames are
// written to its stdin as a 4-byte big-endian length followed by the JPEG
// bytes; the process answers each frame with one JSON line.
type MediaPipeDetector struct {
	config MediaPipeConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	pipe   chan struct{} // holds one token while no request owns stdin/stdout
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

type mediaPipeReply struct {
	Landmarks []Landmark `json:"landmarks"`
	Error     string     `json:"error,omitempty"`
}

// NewMediaPipeDetector starts the pose service process.
func NewMediaPipeDetector(ctx context.Context, config MediaPipeConfig) (*MediaPipeDetector, error) {
	script := config.Script
	if script == "" {
		script = findPoseScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%w: pose_service.py not found", ErrDetectionUnavailable)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	config.Script = script

	python := config.Python
	if python == "" {
		python = "python3"
	}

	d := &MediaPipeDetector{
		config: config,
		pipe:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.pipe <- struct{}{}
	d.cmd = exec.Command(python, script)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start pose service: %v", ErrDetectionUnavailable, err)
	}
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	go func() {
		_ = d.cmd.Wait()
		close(d.done)
	}()

	log.Printf("[MediaPipe] Started pose service %s (pid %d)", script, d.cmd.Process.Pid)
	return d, nil
}

func (d *MediaPipeDetector) Name() string { return BackendMediaPipe }

// Detect sends one frame to the subprocess and waits for its reply. When
// ctx ends first the request is abandoned but its reply is still read off
// the pipe, so the next Detect stays in sync with the service. Errors wrap
// ErrDetectionUnavailable once the detector is closed or the service exited.
func (d *MediaPipeDetector) Detect(ctx context.Context, f *frame.Frame) (*Result, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: mediapipe detector closed", ErrDetectionUnavailable)
	}
	select {
	case <-d.done:
		return nil, errServiceExited
	default:
	}

	data, err := f.JPEG(frame.DefaultQuality)
	if err != nil {
		return nil, err
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	// Wait for an abandoned request to drain its reply.
	select {
	case <-d.pipe:
	case <-d.done:
		return nil, errServiceExited
	case <-ctx.Done():
		return nil, fmt.Errorf("pose service busy: %w", ctx.Err())
	}

	start := time.Now()
	type reply struct {
		res *Result
		err error
	}
	replyCh := make(chan reply, 1)

	go func() {
		res, err := d.roundTrip(data)
		d.pipe <- struct{}{}
		replyCh <- reply{res, err}
	}()

	select {
	case r := <-replyCh:
		if r.res != nil {
			r.res.InferenceTimeMs = float32(time.Since(start).Microseconds()) / 1000
		}
		return r.res, r.err
	case <-d.done:
		return nil, errServiceExited
	case <-ctx.Done():
		return nil, fmt.Errorf("pose service: %w", ctx.Err())
	}
}

var errServiceExited = fmt.Errorf("%w: pose service exited", ErrDetectionUnavailable)

func (d *MediaPipeDetector) roundTrip(data []byte) (*Result, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	// A broken pipe means the service is gone for good.
	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("%w: write length: %v", ErrDetectionUnavailable, err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("%w: write data: %v", ErrDetectionUnavailable, err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDetectionUnavailable, err)
	}
	return parseMediaPipeReply(line)
}

func parseMediaPipeReply(line []byte) (*Result, error) {
	var r mediaPipeReply
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("pose service: %s", r.Error)
	}
	return &Result{Landmarks: r.Landmarks}, nil
}

// Close stops the subprocess.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdown()
	return nil
}

func (d *MediaPipeDetector) shutdown() {
	if d.closed {
		return
	}
	d.closed = true

	// Closing stdin asks the service to exit on its own.
	d.stdin.Close()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		if d.cmd.Process != nil {
			d.cmd.Process.Kill()
		}
		<-d.done
	}
	log.Printf("[MediaPipe] Pose service stopped")
}

// findPoseScript looks for the pose service next to the executable and in
// the working directory.
func findPoseScript() string {
	candidates := []string{filepath.Join("scripts", "pose_service.py")}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "scripts", "pose_service.py"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

var _ Detector = (*MediaPipeDetector)(nil)
