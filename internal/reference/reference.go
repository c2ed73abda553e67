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

// Package reference builds the averaged reference image used for AP placement
// and local-shift measurement, from the K best globally-aligned frames.
package reference

import (
	"github.com/mlnoga/luckystack/internal/align"
	"github.com/mlnoga/luckystack/internal/qsort"
)

// Build averages the intersection region of the K highest-scoring frames
// (picked by scores, descending, ties broken by ascending index), each offset
// by its own global shift, into a single float32 image covering intersection.
// monoBlurred[i] must be a full-frame width x height view for frame i.
func Build(monoBlurred [][]float32, width int, shifts []align.Shift, intersection align.Rect,
	scores []float32, referenceSize int) []float32 {

	indices := qsort.TopKIndices(scores, referenceSize)

	iw, ih := intersection.Width(), intersection.Height()
	sum := make([]float32, iw*ih)
	for _, idx := range indices {
		shift := shifts[idx]
		frameData := monoBlurred[idx]
		for y := 0; y < ih; y++ {
			srcY := intersection.YLow + y - shift.DY
			for x := 0; x < iw; x++ {
				srcX := intersection.XLow + x - shift.DX
				sum[y*iw+x] += frameData[srcY*width+srcX]
			}
		}
	}
	inv := float32(1) / float32(len(indices))
	for i := range sum {
		sum[i] *= inv
	}
	return sum
}
