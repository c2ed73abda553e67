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

package apgrid

import "testing"

func checkerboard(width, height int) []float32 {
	out := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/4+y/4)%2 == 0 {
				out[y*width+x] = 200
			} else {
				out[y*width+x] = 20
			}
		}
	}
	return out
}

func TestPlaceProducesContainedAPs(t *testing.T) {
	width, height := 256, 256
	data := checkerboard(width, height)
	aps, err := Place(data, width, 24, 48, 0.04, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(aps) == 0 {
		t.Fatal("expected at least one AP")
	}
	full := Rect{0, height, 0, width}
	for _, ap := range aps {
		if !full.Contains(ap.Patch) {
			t.Errorf("AP at (%d,%d): patch %v not contained in frame", ap.CenterY, ap.CenterX, ap.Patch)
		}
		if !ap.Patch.Contains(ap.Box) {
			t.Errorf("AP at (%d,%d): box %v not contained in patch %v", ap.CenterY, ap.CenterX, ap.Box, ap.Patch)
		}
	}
}

func TestPlaceUniformFieldIsDegenerate(t *testing.T) {
	width, height := 256, 256
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 128
	}
	_, err := Place(data, width, 24, 48, 0.04, 10)
	if err == nil {
		t.Fatal("expected Degenerate error for a uniform-gray field")
	}
}
