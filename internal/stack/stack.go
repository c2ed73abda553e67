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

// Package stack accumulates de-warped patches from selected (frame, AP) pairs
// into a single normalized composite image.
package stack

import (
	"math"

	"github.com/mlnoga/luckystack/internal/align"
	"github.com/mlnoga/luckystack/internal/apgrid"
)

// contributionEpsilon seeds the global counter so uncovered pixels divide by a
// small positive value instead of zero, matching the reference
// implementation's single_frame_contributions initialization.
const contributionEpsilon = 1e-4

// Image is the final merged, full-depth result, covering the intersection
// window in the reference coordinate system.
type Image struct {
	Width, Height, Channels int
	Data                    []float32 // channel-major, already scaled to target depth's range
}

// FrameAccess retrieves the original-resolution channel-major data for frame i,
// so the stacker needs no direct dependency on the frame package's Store type.
type FrameAccess func(i int) (data []float32, width, height, channels int, err error)

// Accumulate implements spec §4.8's preferred global-accumulator formulation:
// one float accumulator G and one float counter C sized to the intersection,
// updated by every selected (frame, AP) with a shifted, boundary-clipped patch.
func Accumulate(aps []*apgrid.AlignmentPoint, shifts []align.Shift,
	intersection align.Rect, channels int, getFrame FrameAccess) (*Image, error) {

	iw, ih := intersection.Width(), intersection.Height()
	accum := make([]float32, channels*iw*ih)
	counter := make([]float32, iw*ih)
	for i := range counter {
		counter[i] = contributionEpsilon
	}

	// Patches overlap by design (spec §4.5's ~40% overlap), so APs do not
	// write straight into the shared accumulator. Each AP first accumulates
	// into its own local buffer and counter; the APs are processed one after
	// another on the calling goroutine (this pass is not parallel), and the
	// local results are then folded into the shared image sequentially, so no
	// locking is needed.
	type apResult struct {
		patch   apgrid.Rect
		buffer  []float32
		counts  []float32
	}
	results := make([]apResult, len(aps))

	for apIdx, ap := range aps {
		pw, ph := ap.Patch.Width(), ap.Patch.Height()
		buf := make([]float32, channels*pw*ph)
		cnt := make([]float32, pw*ph)

		for _, fs := range ap.FrameShifts {
			frameIdx := fs.FrameIndex
			data, width, height, ch, err := getFrame(frameIdx)
			if err != nil {
				return nil, err
			}
			shift := shifts[frameIdx]
			totalDY := float64(shift.DY) + float64(fs.DY)
			totalDX := float64(shift.DX) + float64(fs.DX)
			ty := int(math.Round(totalDY))
			tx := int(math.Round(totalDX))

			for y := 0; y < ph; y++ {
				srcY := ap.Patch.YLow + intersection.YLow + y + ty
				if srcY < 0 || srcY >= height {
					continue
				}
				for x := 0; x < pw; x++ {
					srcX := ap.Patch.XLow + intersection.XLow + x + tx
					if srcX < 0 || srcX >= width {
						continue
					}
					for c := 0; c < ch; c++ {
						buf[c*pw*ph+y*pw+x] += data[c*width*height+srcY*width+srcX]
					}
					cnt[y*pw+x]++
				}
			}
		}
		results[apIdx] = apResult{ap.Patch, buf, cnt}
		ap.Buffer = buf
		ap.Counter = cnt
	}

	// Fold every AP's local buffer into the shared accumulator. Overlapping
	// patches add their contributions and contribution counts; the final
	// division normalizes brightness uniformly across overlaps.
	for _, r := range results {
		pw, ph := r.patch.Width(), r.patch.Height()
		for y := 0; y < ph; y++ {
			gy := r.patch.YLow + y
			if gy < 0 || gy >= ih {
				continue
			}
			for x := 0; x < pw; x++ {
				gx := r.patch.XLow + x
				if gx < 0 || gx >= iw {
					continue
				}
				c := r.counts[y*pw+x]
				if c == 0 {
					continue
				}
				counter[gy*iw+gx] += c
				for ch := 0; ch < channels; ch++ {
					accum[ch*iw*ih+gy*iw+gx] += r.buffer[ch*pw*ph+y*pw+x]
				}
			}
		}
	}

	for ch := 0; ch < channels; ch++ {
		base := ch * iw * ih
		for i := 0; i < iw*ih; i++ {
			accum[base+i] /= counter[i]
		}
	}

	return &Image{Width: iw, Height: ih, Channels: channels, Data: accum}, nil
}

// ToDepth scales and clips img to the full dynamic range of the given output
// bit depth (8 or 16), rounding to the nearest integer, and returns the result
// as a depth-appropriate uint16 slice (values for an 8-bit depth fit in the
// low byte). sourceMax is the maximum value an input pixel could have taken
// (e.g. 255 for 8-bit original frames), used to compute the scale factor.
func (img *Image) ToDepth(depth int, sourceMax float32) []uint16 {
	maxOut := float32((1 << uint(depth)) - 1)
	scale := maxOut / sourceMax
	out := make([]uint16, len(img.Data))
	for i, v := range img.Data {
		scaled := v * scale
		if scaled < 0 {
			scaled = 0
		}
		if scaled > maxOut {
			scaled = maxOut
		}
		out[i] = uint16(math.Round(float64(scaled)))
	}
	return out
}
