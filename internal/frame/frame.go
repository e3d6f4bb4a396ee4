// Package frame defines the video frame passed between capture, pose
// detection, annotation and output.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"
)

// DefaultQuality is the JPEG quality used when re-encoding frames.
const DefaultQuality = 85

// Frame is one captured video frame. It carries the compressed JPEG bytes
// as delivered by the capture backend and decodes them on demand.
type Frame struct {
	Seq       uint64    // Frame sequence number within its source
	Timestamp time.Time // Capture timestamp
	Data      []byte    // JPEG frame data, nil until encoded for image-backed frames

	img *image.RGBA
}

// FromJPEG wraps compressed frame data.
func FromJPEG(seq uint64, data []byte) *Frame {
	return &Frame{Seq: seq, Timestamp: time.Now(), Data: data}
}

// FromImage wraps a decoded image. The image is copied into an RGBA buffer
// unless it already is one.
func FromImage(seq uint64, img image.Image) *Frame {
	return &Frame{Seq: seq, Timestamp: time.Now(), img: toRGBA(img)}
}

// RGBA returns the decoded frame, decoding the JPEG data on first use.
// The returned image is owned by the frame; drawing on it mutates the frame.
func (f *Frame) RGBA() (*image.RGBA, error) {
	if f.img != nil {
		return f.img, nil
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("frame %d has no data", f.Seq)
	}

	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", f.Seq, err)
	}
	f.img = toRGBA(img)
	return f.img, nil
}

// Size returns the frame dimensions in pixels.
func (f *Frame) Size() (int, int, error) {
	img, err := f.RGBA()
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// JPEG returns the compressed frame, encoding the decoded image when the
// frame was built from pixels.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if len(f.Data) > 0 {
		return f.Data, nil
	}
	if f.img == nil {
		return nil, fmt.Errorf("frame %d has no data", f.Seq)
	}
	return Encode(f.img, quality)
}

// Encode compresses an image as JPEG.
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}
