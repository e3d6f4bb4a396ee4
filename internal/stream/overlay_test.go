package stream

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func white(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func countColor(img *image.RGBA, r image.Rectangle, c color.RGBA) int {
	n := 0
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestDrawCounterBox(t *testing.T) {
	t.Parallel()

	img := white(640, 480)
	Draw(img, Overlay{Label: "Squats", Count: 7})

	assert.Equal(t, BoxColor, img.RGBAAt(2, 2))
	assert.Equal(t, BoxColor, img.RGBAAt(boxWidth-1, boxHeight-1))
	assert.NotEqual(t, BoxColor, img.RGBAAt(boxWidth, boxHeight))
	assert.Positive(t, countColor(img, image.Rect(0, 0, boxWidth, boxHeight), CountColor), "count text")
	assert.Zero(t, countColor(img, img.Bounds(), JointColor), "no joints without a pose")
	assert.Zero(t, countColor(img, img.Bounds(), AngleColor), "no angle without a pose")
}

func TestDrawJointsAndAngle(t *testing.T) {
	t.Parallel()

	img := white(640, 480)
	joints := []image.Point{{400, 200}, {420, 300}, {430, 420}}
	Draw(img, Overlay{
		Label:    "Squats",
		Count:    0,
		Joints:   joints,
		Angle:    123.7,
		HasAngle: true,
		Vertex:   joints[1],
	})

	for _, p := range joints {
		assert.Equal(t, JointColor, img.RGBAAt(p.X, p.Y))
		assert.Equal(t, JointColor, img.RGBAAt(p.X+JointRadius, p.Y))
		assert.NotEqual(t, JointColor, img.RGBAAt(p.X+JointRadius+1, p.Y+JointRadius+1))
	}

	// Angle text sits just above the vertex.
	above := image.Rect(joints[1].X, joints[1].Y-15-13, joints[1].X+100, joints[1].Y-10)
	assert.Positive(t, countColor(img, above, AngleColor))
}

func TestDrawClipsAtEdges(t *testing.T) {
	t.Parallel()

	img := white(400, 300)
	Draw(img, Overlay{
		Label:    "Crunches",
		Count:    123,
		Joints:   []image.Point{{-3, -3}, {399, 299}, {500, 500}},
		HasAngle: true,
		Vertex:   image.Point{X: 390, Y: 5},
	})
	assert.Equal(t, JointColor, img.RGBAAt(399, 299))
	assert.Positive(t, countColor(img, image.Rect(boxWidth, 0, 400, 20), AngleColor))
}

func TestDrawTextScales(t *testing.T) {
	t.Parallel()

	small := white(200, 60)
	big := white(200, 60)
	DrawText(small, 0, 40, "8", CountColor, 1)
	DrawText(big, 0, 40, "8", CountColor, 2)

	n1 := countColor(small, small.Bounds(), CountColor)
	n2 := countColor(big, big.Bounds(), CountColor)
	assert.Positive(t, n1)
	assert.Equal(t, 4*n1, n2)
}
