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

package diag

import (
	"testing"

	"github.com/mlnoga/luckystack/internal/apgrid"
)

func TestCoverageHeatmapDimensionsAndTinting(t *testing.T) {
	width, height := 40, 40
	aps := []*apgrid.AlignmentPoint{
		{
			Patch:       apgrid.Rect{YLow: 5, YHigh: 15, XLow: 5, XHigh: 15},
			FrameShifts: make([]apgrid.LocalShift, 10), // full coverage
		},
		{
			Patch:       apgrid.Rect{YLow: 20, YHigh: 30, XLow: 20, XHigh: 30},
			FrameShifts: make([]apgrid.LocalShift, 2), // low coverage
		},
	}
	img := CoverageHeatmap(aps, width, height, 10)
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		t.Fatalf("got %dx%d, want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), width, height)
	}
	fullCov := img.RGBAAt(10, 10)
	lowCov := img.RGBAAt(25, 25)
	if fullCov.G <= lowCov.G {
		t.Errorf("full-coverage AP should be greener than low-coverage AP: full=%v low=%v", fullCov, lowCov)
	}
}

func TestCoverageHeatmapIgnoresOutOfBoundsPatch(t *testing.T) {
	aps := []*apgrid.AlignmentPoint{
		{Patch: apgrid.Rect{YLow: -5, YHigh: 5, XLow: -5, XHigh: 5}, FrameShifts: make([]apgrid.LocalShift, 3)},
	}
	img := CoverageHeatmap(aps, 20, 20, 5)
	if img.Bounds().Dx() != 20 {
		t.Fatalf("unexpected width %d", img.Bounds().Dx())
	}
}
