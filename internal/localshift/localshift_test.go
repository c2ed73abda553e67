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

package localshift

import "testing"

func TestQuadraticSubpixelMinimumRecoversKnownOffset(t *testing.T) {
	// f(x,y) = (x-0.3)^2 + (y+0.2)^2, sampled at the 3x3 stencil offsets.
	var f [9]float32
	k := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := float32(dx), float32(dy)
			f[k] = (x-0.3)*(x-0.3) + (y+0.2)*(y+0.2)
			k++
		}
	}
	dy, dx, ok := quadraticSubpixelMinimum(f)
	if !ok {
		t.Fatal("expected a well-conditioned fit")
	}
	if dx < 0.25 || dx > 0.35 {
		t.Errorf("dx=%f, want ~0.3", dx)
	}
	if dy < -0.25 || dy > -0.15 {
		t.Errorf("dy=%f, want ~-0.2", dy)
	}
}

func TestQuadraticSubpixelMinimumDegenerateFlat(t *testing.T) {
	var f [9]float32
	for i := range f {
		f[i] = 5
	}
	_, _, ok := quadraticSubpixelMinimum(f)
	if ok {
		t.Fatal("a perfectly flat stencil should be reported as degenerate")
	}
}

func TestLocalSearchFindsShiftedPatch(t *testing.T) {
	refW, refH := 9, 9
	searchWidth := 4
	searchW := refW + 2*searchWidth
	searchH := refH + 2*searchWidth

	target := make([]float32, searchW*searchH)
	for i := range target {
		target[i] = 10
	}
	// Place a distinctive bright block at an offset of (1,-2) from center.
	blockY, blockX := searchWidth+1, searchWidth-2
	for y := 0; y < refH; y++ {
		for x := 0; x < refW; x++ {
			target[(blockY+y)*searchW+blockX+x] = 200
		}
	}
	reference := make([]float32, refW*refH)
	for i := range reference {
		reference[i] = 200
	}

	res := LocalSearch(reference, target, refW, refH, searchWidth)
	if res.LowConfidence {
		t.Fatal("did not expect a saturated search")
	}
	if int(res.DY) != 1 || int(res.DX) != -2 {
		t.Errorf("got shift (%v,%v), want (1,-2)", res.DY, res.DX)
	}
}
