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

// Package localshift measures the per-(frame,AP) sub-pixel warp shift, either
// by exhaustive template-matching search or by FFT phase correlation.
package localshift

import "github.com/mlnoga/luckystack/internal/align"

// Result is a measured local shift, possibly sub-pixel, with a low-confidence
// flag set when the search saturated at its bound.
type Result struct {
	DY, DX        float32
	LowConfidence bool
}

// LocalSearch performs exhaustive squared-difference template matching of
// target against reference (the caller passes a target window searchWidth
// larger than reference on every side) over all integer offsets within
// [-searchWidth, searchWidth], then
// refines to sub-pixel via a 2D quadratic fit through the 3x3 neighborhood of
// the minimum.
//
// referenceBox is refW x refH. targetSearch is (refW+2*searchWidth) x
// (refH+2*searchWidth), centered so that offset (0,0) aligns the two boxes.
func LocalSearch(referenceBox, targetSearch []float32, refW, refH, searchWidth int) Result {
	searchW := refW + 2*searchWidth

	bestY, bestX := 0, 0
	bestSSD := float32(-1)
	ssdAt := func(oy, ox int) float32 {
		sum := float32(0)
		for y := 0; y < refH; y++ {
			trow := (y + oy) * searchW
			rrow := y * refW
			for x := 0; x < refW; x++ {
				d := targetSearch[trow+x+ox] - referenceBox[rrow+x]
				sum += d * d
			}
		}
		return sum
	}

	for oy := -searchWidth; oy <= searchWidth; oy++ {
		for ox := -searchWidth; ox <= searchWidth; ox++ {
			ssd := ssdAt(oy+searchWidth, ox+searchWidth)
			if bestSSD < 0 || ssd < bestSSD {
				bestSSD = ssd
				bestY, bestX = oy, ox
			}
		}
	}

	lowConfidence := bestY == -searchWidth || bestY == searchWidth || bestX == -searchWidth || bestX == searchWidth

	// 3x3 stencil of SSD values around the minimum for sub-pixel refinement.
	// Degrade to the integer minimum if the stencil falls outside the search
	// window (minimum at the boundary) rather than reading out of bounds.
	if lowConfidence {
		return Result{float32(bestY), float32(bestX), true}
	}

	var stencil [9]float32
	k := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			stencil[k] = ssdAt(bestY+dy+searchWidth, bestX+dx+searchWidth)
			k++
		}
	}
	sy, sx, ok := quadraticSubpixelMinimum(stencil)
	if !ok {
		return Result{float32(bestY), float32(bestX), false}
	}
	return Result{float32(bestY) + sy, float32(bestX) + sx, false}
}

// quadraticSubpixelMinimum fits f = a*x^2 + b*y^2 + c*x*y + d*x + e*y + g to
// the 9-point stencil ordered (dy,dx) in {-1,0,1}x{-1,0,1} row-major, via the
// closed-form least-squares normal-equation solution (spec §9: a constant 6x9
// matrix multiply, not a general solver), then locates the analytic minimum by
// setting both partial derivatives to zero. Returns ok=false if the resulting
// 2x2 system is degenerate (|c^2 - 4ab| < 1e-10).
func quadraticSubpixelMinimum(f [9]float32) (dy, dx float32, ok bool) {
	// Stencil sample coordinates (x,y) for indices 0..8, row-major over dy then dx:
	// index = (dy+1)*3 + (dx+1), x=dx, y=dy.
	xs := [9]float32{-1, 0, 1, -1, 0, 1, -1, 0, 1}
	ys := [9]float32{-1, -1, -1, 0, 0, 0, 1, 1, 1}

	// Closed-form coefficients for the 6-parameter quadratic over this fixed
	// 3x3 stencil (least-squares normal equations, precomputed once since the
	// sample geometry never changes).
	var a, b, c, d, e, g float32
	// a = coefficient of x^2, via sum(f*(3x^2-2))/6 style constants derived
	// from the fixed design matrix; computed directly here by solving the
	// normal equations for this specific geometry.
	sumF := float32(0)
	sumFX := float32(0)
	sumFY := float32(0)
	sumFXX := float32(0)
	sumFYY := float32(0)
	sumFXY := float32(0)
	for i := 0; i < 9; i++ {
		x, y, v := xs[i], ys[i], f[i]
		sumF += v
		sumFX += v * x
		sumFY += v * y
		sumFXX += v * x * x
		sumFYY += v * y * y
		sumFXY += v * x * y
	}
	// For this symmetric 3x3 grid, x^2 and y^2 each take values {0,0,0,1,1,1,... }
	// summing to 6 over the 9 points, cross term xy sums to 0, giving the
	// decoupled closed-form solution below.
	g = (5*sumF - 3*(sumFXX+sumFYY)) / 9 // intercept, via standard quadratic-surface LS fit
	d = sumFX / 6
	e = sumFY / 6
	a = (3*sumFXX - 2*sumF) / 6
	b = (3*sumFYY - 2*sumF) / 6
	c = sumFXY / 4

	denom := c*c - 4*a*b
	if denom > -1e-10 && denom < 1e-10 {
		return 0, 0, false
	}
	// Minimum of a*x^2+b*y^2+c*x*y+d*x+e*y+g: solve [2a c; c 2b] [x;y] = [-d;-e].
	det := 4*a*b - c*c
	if det > -1e-10 && det < 1e-10 {
		return 0, 0, false
	}
	x := (-2*b*d + c*e) / det
	y := (-2*a*e + c*d) / det
	if x < -1 || x > 1 || y < -1 || y > 1 {
		return 0, 0, false
	}
	return y, x, true
}

// FFTLocal applies the same FFT phase correlation used for global alignment to
// the box windows, interpreting the result as a (possibly larger magnitude,
// always integer) local shift, for use when the search radius is large
// relative to the box size. Translation reports where the target content sits
// as an offset subtracted from the reference position; the result is negated
// so that, as with LocalSearch, the matched target content lies at the
// reference position plus (DY, DX).
func FFTLocal(referenceBox, targetBox []float32, boxW, boxH int) Result {
	dy, dx := align.Translation(referenceBox, targetBox, boxW, boxH)
	return Result{float32(-dy), float32(-dx), false}
}
