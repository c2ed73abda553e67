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

package frame

import "math"

var sqrt2 = float32(math.Sqrt2)

// gaussianDefiniteIntegral returns the definite integral of the gaussian function
// with midpoint mu and standard deviation sigma for input x.
func gaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(float64((x-mu)/(sqrt2*sigma)))))
}

// GaussianKernel1DFixedWidth generates a 1D Gaussian kernel of exactly the given
// odd width, via symbolic integration of the Gaussian over each pixel's span.
// Sigma is derived from width using the common three-sigma-per-side rule so a
// width-W kernel captures essentially the whole mass of the distribution it
// represents; this lets the config's gauss_width (spec §6) drive the blur
// directly, rather than the variable-width search used when going the other
// way (sigma to width).
func GaussianKernel1DFixedWidth(width int) []float32 {
	if width < 1 {
		width = 1
	}
	if width%2 == 0 {
		width++
	}
	radius := width / 2
	sigma := float32(radius)/3.0 + 1e-3

	kernel := make([]float32, width)
	mu := float32(0)
	sum := float32(0)
	lower := gaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
	for i := 0; i <= radius; i++ {
		upper := gaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius)+float32(i+1))
		delta := upper - lower
		kernel[i] = delta
		sum += delta
		lower = upper
	}
	for i := 1; i <= radius; i++ {
		v := kernel[radius-i]
		kernel[radius+i] = v
		sum += v
	}
	factor := float32(1.0) / sum
	for i := range kernel {
		kernel[i] *= factor
	}
	return kernel
}

// convolve1DX convolves data (width x height) along the x axis with kernel,
// reflecting at the image boundary.
func convolve1DX(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				x1 := reflect(width, x+i)
				sum += data[y*width+x1] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// convolve1DY convolves data (width x height) along the y axis with kernel,
// reflecting at the image boundary.
func convolve1DY(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				y1 := reflect(height, y+i)
				sum += data[y1*width+x] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// GaussFilter2D separably convolves data (imgWidth x height) with a Gaussian
// kernel of the given odd pixel width (spec §6's gauss_width), via two 1D
// passes. tmp must be len(data) and is overwritten as scratch space; the
// result is written to res.
func GaussFilter2D(res, tmp, data []float32, imgWidth, gaussWidth int) {
	kernel := GaussianKernel1DFixedWidth(gaussWidth)
	convolve1DX(tmp, data, imgWidth, kernel)
	convolve1DY(res, tmp, imgWidth, kernel)
}
