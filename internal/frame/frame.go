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

// Package frame provides uniform typed access to the original, monochrome,
// Gaussian-blurred and Laplacian-downsampled views of each input frame.
package frame

import (
	"math"

	"github.com/mlnoga/luckystack/internal/config"
	"github.com/mlnoga/luckystack/internal/lserr"
)

// Frame is a single, immutable-once-acquired capture. Original is channel-major
// float32 data (Channels planes of Height*Width each), matching the original
// bit depth rescaled to float32 for uniform downstream arithmetic.
type Frame struct {
	Index    int
	Height   int
	Width    int
	Channels int
	Depth    int // 8 or 16

	Original []float32 // Channels*Height*Width, channel-major

	mono        []float32 // Height*Width
	blurred     []float32 // Height*Width
	laplacianDS []uint8   // (Height/Stride)*(Width/Stride)
}

// NewFrame wraps already-decoded channel-major float32 data.
func NewFrame(index, height, width, channels, depth int, data []float32) *Frame {
	return &Frame{Index: index, Height: height, Width: width, Channels: channels, Depth: depth, Original: data}
}

// LaplacianStride is the subsampling stride S used for laplacian_ds (spec default 2).
const LaplacianStride = 2

// Store is the uniform accessor over a frame set, spec §4.1's FrameStore.
type Store interface {
	GetOriginal(i int) (*Frame, error)
	GetMono(i int) ([]float32, error)
	GetBlurred(i int) ([]float32, error)
	GetLaplacianDS(i int) ([]uint8, int, int, error)
	Len() int
}

type baseStore struct {
	frames   []*Frame
	cfg      *config.Config
	buffered bool
}

// NewStore builds a Store over frames. When cfg.BufferViews is true, derived
// views are cached after first computation; otherwise they are recomputed
// deterministically from Original on every call, trading memory for CPU per
// spec §5's memory envelope clause. Both policies share one implementation,
// switched by that flag.
func NewStore(frames []*Frame, cfg *config.Config) Store {
	return &baseStore{frames: frames, cfg: cfg, buffered: cfg.BufferViews}
}

func (s *baseStore) Len() int { return len(s.frames) }

func (s *baseStore) GetOriginal(i int) (*Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, lserr.New(lserr.InputError, "read", "frame index %d out of range [0,%d)", i, len(s.frames))
	}
	return s.frames[i], nil
}

func (s *baseStore) GetMono(i int) ([]float32, error) {
	f, err := s.GetOriginal(i)
	if err != nil {
		return nil, err
	}
	if s.buffered && f.mono != nil {
		return f.mono, nil
	}
	mono := ExtractMono(f.Original, f.Height, f.Width, f.Channels, s.cfg.MonoChannel)
	if s.buffered {
		f.mono = mono
	}
	return mono, nil
}

func (s *baseStore) GetBlurred(i int) ([]float32, error) {
	f, err := s.GetOriginal(i)
	if err != nil {
		return nil, err
	}
	if s.buffered && f.blurred != nil {
		return f.blurred, nil
	}
	mono, err := s.GetMono(i)
	if err != nil {
		return nil, err
	}
	blurred := make([]float32, len(mono))
	tmp := make([]float32, len(mono))
	GaussFilter2D(blurred, tmp, mono, f.Width, s.cfg.GaussWidth)
	if s.buffered {
		f.blurred = blurred
	}
	return blurred, nil
}

func (s *baseStore) GetLaplacianDS(i int) ([]uint8, int, int, error) {
	f, err := s.GetOriginal(i)
	if err != nil {
		return nil, 0, 0, err
	}
	dsw, dsh := f.Width/LaplacianStride, f.Height/LaplacianStride
	if s.buffered && f.laplacianDS != nil {
		return f.laplacianDS, dsw, dsh, nil
	}
	blurred, err := s.GetBlurred(i)
	if err != nil {
		return nil, 0, 0, err
	}
	ds := LaplacianDownsample(blurred, f.Width, f.Height, LaplacianStride)
	if s.buffered {
		f.laplacianDS = ds
	}
	return ds, dsw, dsh, nil
}

// ExtractMono reduces channel-major data to a single-channel luminance view.
func ExtractMono(data []float32, height, width, channels int, ch config.MonoChannel) []float32 {
	mono := make([]float32, height*width)
	if channels == 1 {
		copy(mono, data[:height*width])
		return mono
	}
	plane := height * width
	switch ch {
	case config.ChannelRed:
		copy(mono, data[0:plane])
	case config.ChannelGreen:
		if channels > 1 {
			copy(mono, data[plane:2*plane])
		} else {
			copy(mono, data[0:plane])
		}
	case config.ChannelBlue:
		if channels > 2 {
			copy(mono, data[2*plane:3*plane])
		} else {
			copy(mono, data[0:plane])
		}
	case config.ChannelLuminance:
		r := data[0:plane]
		g := data[plane : 2*plane]
		var b []float32
		if channels > 2 {
			b = data[2*plane : 3*plane]
		}
		for i := 0; i < plane; i++ {
			bv := float32(0)
			if b != nil {
				bv = b[i]
			}
			mono[i] = 0.299*r[i] + 0.587*g[i] + 0.114*bv
		}
	}
	return mono
}

// LaplacianDownsample computes the absolute discrete Laplacian of data, sampled
// on a stride grid and rescaled to 8-bit.
func LaplacianDownsample(data []float32, width, height, stride int) []uint8 {
	dsw, dsh := width/stride, height/stride
	out := make([]uint8, dsw*dsh)
	maxVal := float32(0)
	vals := make([]float32, dsw*dsh)
	for dy := 0; dy < dsh; dy++ {
		y := dy * stride
		for dx := 0; dx < dsw; dx++ {
			x := dx * stride
			c := data[y*width+x]
			up := data[reflect(height, y-1)*width+x]
			down := data[reflect(height, y+1)*width+x]
			left := data[y*width+reflect(width, x-1)]
			right := data[y*width+reflect(width, x+1)]
			lap := float32(math.Abs(float64(up + down + left + right - 4*c)))
			vals[dy*dsw+dx] = lap
			if lap > maxVal {
				maxVal = lap
			}
		}
	}
	if maxVal == 0 {
		return out
	}
	scale := 255.0 / maxVal
	for i, v := range vals {
		out[i] = uint8(v * scale)
	}
	return out
}

// reflect clamps an out-of-bounds coordinate back into [0,size-1] by mirroring,
// avoiding a hard edge discontinuity at the frame boundary.
func reflect(size, x int) int {
	if x < 0 {
		return -x - 1
	}
	if x >= size {
		return 2*size - x - 1
	}
	return x
}
