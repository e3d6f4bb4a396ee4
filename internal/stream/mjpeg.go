package stream

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log"
	"net/http"
)

// Boundary separates parts of the multipart stream.
const Boundary = "frame"

// ContentType is the response content type of an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Chunk wraps one JPEG in its multipart part header. Each chunk decodes on
// its own.
func Chunk(jpegData []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(jpegData) + 96)
	fmt.Fprintf(&b, "--%s\r\n", Boundary)
	fmt.Fprintf(&b, "Content-Type: image/jpeg\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(jpegData))
	b.Write(jpegData)
	b.WriteString("\r\n")
	return b.Bytes()
}

// ChunkSource yields multipart chunks until the stream ends.
type ChunkSource func(ctx context.Context) iter.Seq[[]byte]

// Handler serves a chunk sequence as an MJPEG response. The response ends
// when the sequence ends or the client goes away.
func Handler(name string, chunks ChunkSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		log.Printf("[MJPEGStream] Client %s connected to %s", r.RemoteAddr, name)

		sent := 0
		for chunk := range chunks(r.Context()) {
			if _, err := w.Write(chunk); err != nil {
				break
			}
			flusher.Flush()
			sent++
		}

		log.Printf("[MJPEGStream] Client %s left %s after %d frames", r.RemoteAddr, name, sent)
	})
}
