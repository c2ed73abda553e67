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

// Package align computes global, whole-frame shifts against a chosen anchor,
// either by FFT phase correlation over a high-gradient anchor rectangle
// (surface mode) or by center-of-brightness (planet mode).
package align

import (
	"math"
	"math/cmplx"

	"github.com/mlnoga/luckystack/internal/lserr"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Rect is an axis-aligned window in image coordinates, [YLow,YHigh) x [XLow,XHigh).
type Rect struct {
	YLow, YHigh, XLow, XHigh int
}

func (r Rect) Height() int { return r.YHigh - r.YLow }
func (r Rect) Width() int  { return r.XHigh - r.XLow }

// Shift is a signed integer displacement, (dy, dx).
type Shift struct {
	DY, DX int
}

const epsilon = 1e-6

// fft2 computes the 2D FFT of a real width x height field via row-then-column
// 1D complex FFTs, since gonum's dsp/fourier package only exposes 1D transforms.
func fft2(data []float32, width, height int) []complex128 {
	out := make([]complex128, width*height)
	for i, v := range data {
		out[i] = complex(float64(v), 0)
	}
	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		copy(row, out[y*width:(y+1)*width])
		coeffs := rowFFT.Coefficients(nil, row)
		copy(out[y*width:(y+1)*width], coeffs)
	}
	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = out[y*width+x]
		}
		coeffs := colFFT.Coefficients(nil, col)
		for y := 0; y < height; y++ {
			out[y*width+x] = coeffs[y]
		}
	}
	return out
}

// ifft2 computes the 2D inverse FFT, returning a width x height real-valued
// field formed from the real part of each entry (the cross-power spectrum
// fed to it is conjugate-symmetric by construction, so the imaginary part is
// numerical noise).
func ifft2(data []complex128, width, height int) []float32 {
	tmp := make([]complex128, width*height)
	copy(tmp, data)

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = tmp[y*width+x]
		}
		seq := colFFT.Sequence(nil, col)
		for y := 0; y < height; y++ {
			tmp[y*width+x] = seq[y] / complex(float64(height), 0)
		}
	}
	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	out := make([]float32, width*height)
	for y := 0; y < height; y++ {
		copy(row, tmp[y*width:(y+1)*width])
		seq := rowFFT.Sequence(nil, row)
		for x := 0; x < width; x++ {
			out[y*width+x] = float32(real(seq[x]) / float64(width))
		}
	}
	return out
}

// Translation computes the integer (dy,dx) shift that best registers target
// onto reference, both width x height, via FFT phase correlation:
// C = IFFT2(FFT2(R) * conj(FFT2(T)) / (|FFT2(R)| * |FFT2(T)| + eps)), argmax|C|,
// with indices beyond width/2 or height/2 mapped to negative shifts.
func Translation(reference, target []float32, width, height int) (dy, dx int) {
	fr := fft2(reference, width, height)
	ft := fft2(target, width, height)
	cross := make([]complex128, len(fr))
	for i := range cross {
		num := fr[i] * cmplx.Conj(ft[i])
		denom := cmplx.Abs(fr[i])*cmplx.Abs(ft[i]) + epsilon
		cross[i] = num / complex(denom, 0)
	}
	corr := ifft2(cross, width, height)

	best := -1
	bestVal := float32(-1)
	for i, v := range corr {
		av := float32(math.Abs(float64(v)))
		if av > bestVal {
			bestVal = av
			best = i
		}
	}
	y, x := best/width, best%width
	if y > height/2 {
		y -= height
	}
	if x > width/2 {
		x -= width
	}
	return y, x
}

// SelectAnchorRect picks the non-overlapping (height/scale, width/scale) tile of
// the best frame's blurred view with the highest local-contrast score,
// following the original's exhaustive-tiling approach.
func SelectAnchorRect(blurred []float32, width, height, scale int) Rect {
	tileH, tileW := height/scale, width/scale
	if tileH < 1 {
		tileH = height
	}
	if tileW < 1 {
		tileW = width
	}
	bestScore := float32(-1)
	best := Rect{0, tileH, 0, tileW}
	for ty := 0; ty+tileH <= height; ty += tileH {
		for tx := 0; tx+tileW <= width; tx += tileW {
			score := localContrast(blurred, width, ty, ty+tileH, tx, tx+tileW)
			if score > bestScore {
				bestScore = score
				best = Rect{ty, ty + tileH, tx, tx + tileW}
			}
		}
	}
	return best
}

// localContrast is the mean absolute horizontal+vertical gradient over a window,
// the same cheap structure measure used throughout Ranker and APGrid.
func localContrast(data []float32, width, yLow, yHigh, xLow, xHigh int) float32 {
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

// CenterOfBrightness computes the first image moment (centroid) of data after
// binary thresholding at half the maximum value, used by planet mode.
func CenterOfBrightness(data []float32, width, height int) (cy, cx float32) {
	maxVal := float32(0)
	for _, v := range data {
		if v > maxVal {
			maxVal = v
		}
	}
	thresh := maxVal / 2
	sumW, sumY, sumX := float32(0), float32(0), float32(0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := data[y*width+x]
			if v >= thresh {
				sumW++
				sumY += float32(y)
				sumX += float32(x)
			}
		}
	}
	if sumW == 0 {
		return float32(height) / 2, float32(width) / 2
	}
	return sumY / sumW, sumX / sumW
}

// Result is the outcome of a global alignment pass across a frame set.
type Result struct {
	Shifts       []Shift
	Intersection Rect
}

// GlobalAlign computes per-frame shifts against anchorIdx's blurred view, using
// either surface mode (FFT phase correlation over an anchor rectangle) or
// planet mode (center-of-brightness difference), and the resulting common
// intersection window.
func GlobalAlign(blurredViews [][]float32, width, height, anchorIdx int, planetMode bool,
	rectScale, searchWidth int) (Result, error) {

	n := len(blurredViews)
	shifts := make([]Shift, n)

	if planetMode {
		ay, ax := CenterOfBrightness(blurredViews[anchorIdx], width, height)
		for i, v := range blurredViews {
			y, x := CenterOfBrightness(v, width, height)
			shifts[i] = Shift{int(math.Round(float64(ay - y))), int(math.Round(float64(ax - x)))}
		}
	} else {
		rect := SelectAnchorRect(blurredViews[anchorIdx], width, height, rectScale)
		refWindow := extract(blurredViews[anchorIdx], width, rect)
		for i, v := range blurredViews {
			if i == anchorIdx {
				shifts[i] = Shift{0, 0}
				continue
			}
			tgtWindow := extract(v, width, rect)
			dy, dx := Translation(refWindow, tgtWindow, rect.Width(), rect.Height())
			shifts[i] = Shift{dy, dx}
		}
	}

	for _, s := range shifts {
		if abs(s.DY) > searchWidth*4 || abs(s.DX) > searchWidth*4 {
			return Result{}, lserr.New(lserr.Degenerate, "align", "shift (%d,%d) exceeds plausible search bound", s.DY, s.DX)
		}
	}

	intersection := computeIntersection(shifts, width, height)
	if intersection.Width() <= 0 || intersection.Height() <= 0 {
		return Result{}, lserr.New(lserr.Degenerate, "align", "empty intersection across %d frames", n)
	}
	return Result{Shifts: shifts, Intersection: intersection}, nil
}

func extract(data []float32, width int, r Rect) []float32 {
	out := make([]float32, r.Height()*r.Width())
	for y := r.YLow; y < r.YHigh; y++ {
		copy(out[(y-r.YLow)*r.Width():(y-r.YLow+1)*r.Width()], data[y*width+r.XLow:y*width+r.XHigh])
	}
	return out
}

// computeIntersection returns the rectangle, in the anchor's coordinate system,
// common to every frame once shifted by its global shift.
func computeIntersection(shifts []Shift, width, height int) Rect {
	yLow, yHigh, xLow, xHigh := 0, height, 0, width
	for _, s := range shifts {
		if s.DY > yLow {
			yLow = s.DY
		}
		if height+s.DY < yHigh {
			yHigh = height + s.DY
		}
		if s.DX > xLow {
			xLow = s.DX
		}
		if width+s.DX < xHigh {
			xHigh = width + s.DX
		}
	}
	return Rect{yLow, yHigh, xLow, xHigh}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
