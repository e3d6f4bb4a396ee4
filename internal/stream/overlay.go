// Package stream draws the rep counter overlay onto frames and frames the
// annotated JPEGs as a multipart MJPEG stream.
package stream

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	AngleColor = color.RGBA{0, 255, 0, 255}   // green
	JointColor = color.RGBA{255, 0, 0, 255}   // red
	CountColor = color.RGBA{255, 255, 0, 255} // yellow
	BoxColor   = color.RGBA{0, 0, 0, 255}
)

// Overlay geometry, in pixels.
const (
	JointRadius = 6
	boxWidth    = 260
	boxHeight   = 80
	countScale  = 2
)

// Overlay is everything drawn onto one frame.
type Overlay struct {
	Label    string
	Count    int
	Joints   []image.Point // highlighted joints, vertex in the middle
	Angle    float64
	HasAngle bool
	Vertex   image.Point // where the angle text is anchored
}

// Draw renders the overlay onto img in place.
func Draw(img *image.RGBA, o Overlay) {
	if o.HasAngle {
		DrawText(img, o.Vertex.X, o.Vertex.Y-15, fmt.Sprintf("Angle: %d", int(o.Angle)), AngleColor, 1)
	}
	for _, p := range o.Joints {
		DrawDisc(img, p, JointRadius, JointColor)
	}

	FillRect(img, image.Rect(0, 0, boxWidth, boxHeight), BoxColor)
	DrawText(img, 10, 55, fmt.Sprintf("%s: %d", o.Label, o.Count), CountColor, countScale)
}

// FillRect paints an opaque rectangle, clipped to the image.
func FillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawDisc paints a filled circle.
func DrawDisc(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	bounds := img.Bounds()
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			p := image.Pt(center.X+dx, center.Y+dy)
			if p.In(bounds) {
				img.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// DrawText draws label with its baseline at (x, y). scale enlarges the
// 7x13 bitmap font by an integer factor.
func DrawText(img *image.RGBA, x, y int, label string, c color.RGBA, scale int) {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	if x < 0 {
		x = 0
	}
	if top := y - face.Ascent*scale; top < 0 {
		y -= top
	}

	if scale == 1 {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(label)
		return
	}

	// Render at native size, then scale up onto the frame.
	w := font.MeasureString(face, label).Ceil()
	h := face.Height
	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(label)

	top := y - face.Ascent*scale
	dst := image.Rect(x, top, x+w*scale, top+h*scale)
	xdraw.NearestNeighbor.Scale(img, dst, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}
