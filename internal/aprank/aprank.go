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

// Package aprank scores and ranks frames per alignment point, selecting the
// top fraction of frames the stacker draws on at each AP.
package aprank

import (
	"math"

	"github.com/mlnoga/luckystack/internal/apgrid"
	"github.com/mlnoga/luckystack/internal/qsort"
)

// LocalContrast is the mean absolute gradient magnitude over a box window of
// a width-stride mono_blurred field, the same structure measure used by
// APGrid placement and the global anchor-rectangle search.
func LocalContrast(data []float32, width int, yLow, yHigh, xLow, xHigh int) float32 {
	sum := float32(0)
	n := 0
	for y := yLow; y < yHigh-1; y++ {
		for x := xLow; x < xHigh-1; x++ {
			c := data[y*width+x]
			gx := data[y*width+x+1] - c
			gy := data[(y+1)*width+x] - c
			sum += float32(math.Abs(float64(gx))) + float32(math.Abs(float64(gy)))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

// RankAndSelect computes, for AP a, a quality score for every frame (the
// caller supplies quality[i] already measured at a's box in frame i's warped
// coordinate system), then keeps the top stackSize frames, stable ties broken
// by ascending frame index. It records the selection onto ap.FrameShifts
// (already populated with per-frame shift and quality by the caller) by
// truncating to the selected subset, and returns the selected frame indices
// in selection order.
func RankAndSelect(ap *apgrid.AlignmentPoint, stackSize int) []int {
	n := len(ap.FrameShifts)
	if stackSize > n {
		stackSize = n
	}
	scores := make([]float32, n)
	for i, fs := range ap.FrameShifts {
		scores[i] = fs.Quality
	}
	selected := qsort.TopKIndices(scores, stackSize)

	kept := make([]apgrid.LocalShift, len(selected))
	frameIndices := make([]int, len(selected))
	for i, idx := range selected {
		kept[i] = ap.FrameShifts[idx]
		frameIndices[i] = ap.FrameShifts[idx].FrameIndex
	}
	ap.FrameShifts = kept
	return frameIndices
}
