// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package diag renders non-hot-path diagnostics for a stacking run: an AP
// coverage heatmap showing, per pixel, what fraction of available frames
// contributed to the stack there.
package diag

import (
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/luckystack/internal/apgrid"
)

// CoverageHeatmap renders a width x height RGBA image over the intersection
// window: each AP's patch is tinted from red (low coverage) to green (full
// coverage) by the fraction of numFrames actually selected for that AP
// (len(ap.FrameShifts) / numFrames), giving an at-a-glance view of where the
// stack is starved for frames. Pixels outside every AP patch keep a dark gray
// background; clipping at stacking time is not reflected.
func CoverageHeatmap(aps []*apgrid.AlignmentPoint, width, height, numFrames int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	low := colorful.Hcl(10, 0.8, 0.35)  // dark red
	high := colorful.Hcl(140, 0.8, 0.6) // green
	background := color.RGBA{32, 32, 32, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, background)
		}
	}
	for _, ap := range aps {
		fraction := 0.0
		if numFrames > 0 {
			fraction = float64(len(ap.FrameShifts)) / float64(numFrames)
		}
		col := low.BlendHcl(high, fraction).Clamped()
		r, g, b, a := col.RGBA()
		rgba := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
		for y := ap.Patch.YLow; y < ap.Patch.YHigh; y++ {
			if y < 0 || y >= height {
				continue
			}
			for x := ap.Patch.XLow; x < ap.Patch.XHigh; x++ {
				if x < 0 || x >= width {
					continue
				}
				img.Set(x, y, rgba)
			}
		}
	}
	return img
}
