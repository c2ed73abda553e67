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

package aprank

import (
	"testing"

	"github.com/mlnoga/luckystack/internal/apgrid"
)

func TestRankAndSelectKeepsTopKStableOnTies(t *testing.T) {
	ap := &apgrid.AlignmentPoint{
		FrameShifts: []apgrid.LocalShift{
			{FrameIndex: 0, Quality: 5},
			{FrameIndex: 1, Quality: 9},
			{FrameIndex: 2, Quality: 9},
			{FrameIndex: 3, Quality: 1},
		},
	}
	selected := RankAndSelect(ap, 2)
	if len(selected) != 2 {
		t.Fatalf("got %d selected, want 2", len(selected))
	}
	if selected[0] != 1 || selected[1] != 2 {
		t.Errorf("got %v, want [1 2] (ties broken by ascending frame index)", selected)
	}
}
