package source

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const stampPadding = 5

// stampIndex burns "#<index>" into the top-left corner of a mono frame,
// drawing text pixels at value.
func stampIndex(buf []byte, width, height int, t frame.ElementType, index int, value float64) {
	text := fmt.Sprintf("#%d", index)
	face := basicfont.Face7x13

	d := &font.Drawer{Face: face}
	textWidth := int(d.MeasureString(text) >> 6)
	textHeight := face.Height

	w := textWidth + stampPadding*2
	h := textHeight + stampPadding*2
	if w > width || h > height {
		return
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	drawer := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(color.Gray{Y: 255}),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(stampPadding), Y: fixed.I(stampPadding + face.Ascent)},
	}
	drawer.DrawString(text)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.GrayAt(x, y).Y > 127 {
				frame.PutValue(buf, y*width+x, t, value)
			}
		}
	}
}
