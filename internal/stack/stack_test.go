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

package stack

import (
	"math"
	"testing"

	"github.com/mlnoga/luckystack/internal/align"
	"github.com/mlnoga/luckystack/internal/apgrid"
)

// uniformFrame returns a width x height, single-channel frame filled with v.
func uniformFrame(width, height int, v float32) []float32 {
	out := make([]float32, width*height)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAccumulateIdenticalFramesZeroShiftsReproducesInput(t *testing.T) {
	width, height := 40, 40
	value := float32(77)
	frames := [][]float32{
		uniformFrame(width, height, value),
		uniformFrame(width, height, value),
		uniformFrame(width, height, value),
	}
	getFrame := func(i int) ([]float32, int, int, int, error) {
		return frames[i], width, height, 1, nil
	}

	ap := &apgrid.AlignmentPoint{
		CenterY: 20, CenterX: 20,
		Patch: apgrid.Rect{YLow: 10, YHigh: 30, XLow: 10, XHigh: 30},
		FrameShifts: []apgrid.LocalShift{
			{FrameIndex: 0}, {FrameIndex: 1}, {FrameIndex: 2},
		},
	}
	shifts := []align.Shift{{0, 0}, {0, 0}, {0, 0}}
	intersection := align.Rect{YLow: 0, YHigh: height, XLow: 0, XHigh: width}

	img, err := Accumulate([]*apgrid.AlignmentPoint{ap}, shifts, intersection, 1, getFrame)
	if err != nil {
		t.Fatal(err)
	}
	for y := ap.Patch.YLow; y < ap.Patch.YHigh; y++ {
		for x := ap.Patch.XLow; x < ap.Patch.XHigh; x++ {
			got := img.Data[y*img.Width+x]
			if math.Abs(float64(got-value)) > 1e-2 {
				t.Fatalf("pixel (%d,%d): got %f want %f", y, x, got, value)
			}
		}
	}
}

func TestAccumulateClippedPatchNoNaN(t *testing.T) {
	width, height := 20, 20
	frame := uniformFrame(width, height, 50)
	getFrame := func(i int) ([]float32, int, int, int, error) {
		return frame, width, height, 1, nil
	}
	// AP patch sits near the bottom-right corner, with a shift that pushes
	// part of the source patch outside the frame, exercising the boundary
	// clipping path (spec S6).
	ap := &apgrid.AlignmentPoint{
		Patch: apgrid.Rect{YLow: 10, YHigh: 20, XLow: 10, XHigh: 20},
		FrameShifts: []apgrid.LocalShift{
			{FrameIndex: 0, DY: 5, DX: 5},
		},
	}
	shifts := []align.Shift{{0, 0}}
	intersection := align.Rect{YLow: 0, YHigh: height, XLow: 0, XHigh: width}

	img, err := Accumulate([]*apgrid.AlignmentPoint{ap}, shifts, intersection, 1, getFrame)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range img.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("found NaN/Inf in clipped-patch output: %f", v)
		}
	}
}

// TestAccumulateNonZeroIntersectionOrigin exercises an intersection whose
// origin isn't (0,0), as GlobalAlign produces whenever frames shift toward
// the bottom/right of the reference frame. ap.Patch is always 0-based within
// the intersection-sized accumulator (see apgrid.Place), while the source
// frame is still full-resolution, so the two coordinate systems must be
// reconciled in opposite directions.
func TestAccumulateNonZeroIntersectionOrigin(t *testing.T) {
	frameWidth, frameHeight := 60, 60
	value := float32(100)
	frame := uniformFrame(frameWidth, frameHeight, value)
	getFrame := func(i int) ([]float32, int, int, int, error) {
		return frame, frameWidth, frameHeight, 1, nil
	}

	// Intersection starts at (15,15) in the full frame, sized 30x30.
	intersection := align.Rect{YLow: 15, YHigh: 45, XLow: 15, XHigh: 45}
	// Patch coordinates are 0-based within the intersection, per apgrid.Place.
	ap := &apgrid.AlignmentPoint{
		CenterY: 10, CenterX: 10,
		Patch: apgrid.Rect{YLow: 5, YHigh: 15, XLow: 5, XHigh: 15},
		FrameShifts: []apgrid.LocalShift{
			{FrameIndex: 0},
		},
	}
	shifts := []align.Shift{{0, 0}}

	img, err := Accumulate([]*apgrid.AlignmentPoint{ap}, shifts, intersection, 1, getFrame)
	if err != nil {
		t.Fatal(err)
	}
	for y := ap.Patch.YLow; y < ap.Patch.YHigh; y++ {
		for x := ap.Patch.XLow; x < ap.Patch.XHigh; x++ {
			got := img.Data[y*img.Width+x]
			if math.Abs(float64(got-value)) > 1e-2 {
				t.Fatalf("pixel (%d,%d): got %f want %f (AP contribution silently dropped or sampled from the wrong region)", y, x, got, value)
			}
		}
	}
}

func TestToDepthClipsToRange(t *testing.T) {
	img := &Image{Width: 2, Height: 1, Channels: 1, Data: []float32{-10, 300}}
	out := img.ToDepth(8, 255)
	if out[0] != 0 {
		t.Errorf("negative input should clip to 0, got %d", out[0])
	}
	if out[1] != 255 {
		t.Errorf("over-range input should clip to 255, got %d", out[1])
	}
}
