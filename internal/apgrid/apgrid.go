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

// Package apgrid places alignment points on a regular grid over the reference
// image's intersection window and drops candidates lacking structure or
// brightness.
package apgrid

import (
	"math"

	"github.com/mlnoga/luckystack/internal/align"
	"github.com/mlnoga/luckystack/internal/lserr"
)

// Rect is an axis-aligned window, [YLow,YHigh) x [XLow,XHigh), adapted from
// the bounding-box shape the reference tool used for light-frame extents.
type Rect struct {
	YLow, YHigh, XLow, XHigh int
}

func (r Rect) Height() int { return r.YHigh - r.YLow }
func (r Rect) Width() int  { return r.XHigh - r.XLow }

// Contains reports whether other lies wholly within r.
func (r Rect) Contains(other Rect) bool {
	return other.YLow >= r.YLow && other.YHigh <= r.YHigh && other.XLow >= r.XLow && other.XHigh <= r.XHigh
}

// LocalShift records one frame's measured local warp at an AP.
type LocalShift struct {
	FrameIndex    int
	DY, DX        float32
	Quality       float32
	LowConfidence bool
}

// AlignmentPoint is a fixed record of typed fields, per spec §9's guidance
// against string-keyed attribute maps.
type AlignmentPoint struct {
	CenterY, CenterX int
	Box, Patch       Rect
	FrameShifts       []LocalShift
	Buffer            []float32 // patch-shaped, channel-major
	Counter           []float32 // same shape as Buffer, per-pixel contribution count
}

// Place lays APs on a regular grid with step g ~= 5*patchHalfWidth/3 (spec
// §4.5's ~40% patch overlap), starting at a margin of 2*patchHalfWidth
// from the intersection edges, and drops any
// candidate failing the structure, brightness, or containment checks.
// referenceMono is the reference image's intersection-sized mono data.
func Place(referenceMono []float32, intersectionWidth int, boxHalfWidth, patchHalfWidth int,
	structureThreshold, brightnessThreshold float64) ([]*AlignmentPoint, error) {

	height := len(referenceMono) / intersectionWidth
	width := intersectionWidth
	step := (5 * patchHalfWidth) / 3
	if step < 1 {
		step = 1
	}
	margin := 2 * patchHalfWidth

	type candidate struct {
		cy, cx    int
		structure float32
	}
	var candidates []candidate
	maxStructure := float32(0)

	for cy := margin; cy+margin <= height; cy += step {
		for cx := margin; cx+margin <= width; cx += step {
			box := Rect{cy - boxHalfWidth, cy + boxHalfWidth, cx - boxHalfWidth, cx + boxHalfWidth}
			if box.YLow < 0 || box.XLow < 0 || box.YHigh > height || box.XHigh > width {
				continue
			}
			s := localContrast(referenceMono, width, box)
			if s > maxStructure {
				maxStructure = s
			}
			candidates = append(candidates, candidate{cy, cx, s})
		}
	}

	var aps []*AlignmentPoint
	for _, c := range candidates {
		normStructure := float32(0)
		if maxStructure > 0 {
			normStructure = c.structure / maxStructure
		}
		if float64(normStructure) < structureThreshold {
			continue
		}
		box := Rect{c.cy - boxHalfWidth, c.cy + boxHalfWidth, c.cx - boxHalfWidth, c.cx + boxHalfWidth}
		if maxOf(referenceMono, width, box) < float32(brightnessThreshold) {
			continue
		}
		patch := Rect{c.cy - patchHalfWidth, c.cy + patchHalfWidth, c.cx - patchHalfWidth, c.cx + patchHalfWidth}
		full := Rect{0, height, 0, width}
		if !full.Contains(patch) {
			continue
		}
		aps = append(aps, &AlignmentPoint{CenterY: c.cy, CenterX: c.cx, Box: box, Patch: patch})
	}

	if len(aps) == 0 {
		return nil, lserr.New(lserr.Degenerate, "place_APs", "no alignment points survived structure/brightness thresholds")
	}
	return aps, nil
}

func localContrast(data []float32, width int, r Rect) float32 {
	sum := float32(0)
	n := 0
	for y := r.YLow; y < r.YHigh-1; y++ {
		for x := r.XLow; x < r.XHigh-1; x++ {
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

func maxOf(data []float32, width int, r Rect) float32 {
	m := float32(0)
	for y := r.YLow; y < r.YHigh; y++ {
		for x := r.XLow; x < r.XHigh; x++ {
			if v := data[y*width+x]; v > m {
				m = v
			}
		}
	}
	return m
}

// ToAlignRect adapts an apgrid.Rect to the align package's Rect, since both
// packages model the same axis-aligned window shape for their own concerns.
func ToAlignRect(r Rect) align.Rect {
	return align.Rect{YLow: r.YLow, YHigh: r.YHigh, XLow: r.XLow, XHigh: r.XHigh}
}
