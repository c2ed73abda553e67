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

package main

import (
	"image"
	"image/color"

	"github.com/mlnoga/luckystack/internal/pipeline"
)

// toRGBAImage renders a StackedImage's channel-major uint16 data, scaled down
// from its source bit depth, as an 8-bit image/color.RGBA for PNG encoding.
// Mono images are replicated across R/G/B; three-channel images are assumed
// to already be in R,G,B plane order.
func toRGBAImage(img *pipeline.StackedImage) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	shift := uint(img.Depth)
	if shift > 16 {
		shift = 16
	}
	planeSize := img.Width * img.Height

	scale := func(v uint16) uint8 {
		return uint8((uint32(v) * 255) >> shift)
	}

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			idx := y*img.Width + x
			var r, g, b uint8
			switch img.Channels {
			case 1:
				v := scale(img.Data[idx])
				r, g, b = v, v, v
			case 3:
				r = scale(img.Data[idx])
				g = scale(img.Data[planeSize+idx])
				b = scale(img.Data[2*planeSize+idx])
			default:
				v := scale(img.Data[idx])
				r, g, b = v, v, v
			}
			out.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return out
}
