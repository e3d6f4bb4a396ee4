package capture

import (
	"bytes"
	"sync"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// extractJPEGFrame extracts the first complete JPEG frame from buffer and
// drops everything up to its end. It returns nil when no complete frame is
// buffered yet.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := bytes.Index(*buffer, jpegStart)
	if startIdx == -1 {
		return nil
	}

	rel := bytes.Index((*buffer)[startIdx+2:], jpegEnd)
	if rel == -1 {
		return nil
	}
	endIdx := startIdx + 2 + rel + 2

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
