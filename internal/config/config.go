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

// Package config holds the flat, closed-set configuration for a stacking run.
package config

import (
	"encoding/json"
	"runtime"

	"github.com/mlnoga/luckystack/internal/lserr"
	"github.com/pbnjay/memory"
)

// MonoChannel selects which channel (or combination) feeds the monochrome views.
type MonoChannel int

const (
	ChannelRed MonoChannel = iota
	ChannelGreen
	ChannelBlue
	ChannelLuminance
)

// AlignMode selects the global alignment strategy.
type AlignMode int

const (
	AlignSurface AlignMode = iota
	AlignPlanet
)

// APMethod selects the local shift measurement technique.
type APMethod int

const (
	APMethodLocalSearch APMethod = iota
	APMethodFFT
)

// RankerMethod selects the frame scoring function.
type RankerMethod int

const (
	RankContrast RankerMethod = iota
	RankLaplacian
)

// Config is the closed set of tunable parameters from the external interface.
// Every field has a default matching the reference implementation; Validate
// rejects out-of-range values with a ConfigError.
type Config struct {
	MonoChannel MonoChannel
	GaussWidth  int // odd integer, default 7

	RankerMethod RankerMethod

	AlignMode        AlignMode
	AlignRectScale   int // tiles per side for surface-mode anchor search, default 3
	AlignSearchWidth int // default 14

	ReferencePercent float64 // best fraction of frames averaged into the reference, default 5

	APBoxHalfWidth     int     // default 24
	APPatchHalfWidth    int     // default 48
	APStructureThreshold float64 // default 0.04, after max-normalization across the grid
	APBrightnessThreshold float64 // default 10
	APSearchWidth        int     // default 14
	APMethod              APMethod

	StackPercent float64 // default 10
	StackNumber  int     // overrides StackPercent if > 0

	// Ambient, not in spec §6's closed option list but required to realize §5.
	Parallelism  int  // default runtime.NumCPU()
	BufferViews  bool // default true in NewDefaultConfig; DecideBufferViews derives it from available memory
}

// NewDefaultConfig returns a Config populated with the reference defaults.
func NewDefaultConfig() *Config {
	return &Config{
		MonoChannel:           ChannelGreen,
		GaussWidth:            7,
		RankerMethod:          RankContrast,
		AlignMode:             AlignSurface,
		AlignRectScale:        3,
		AlignSearchWidth:      14,
		ReferencePercent:      5,
		APBoxHalfWidth:        24,
		APPatchHalfWidth:      48,
		APStructureThreshold:  0.04,
		APBrightnessThreshold: 10,
		APSearchWidth:         14,
		APMethod:              APMethodLocalSearch,
		StackPercent:          10,
		StackNumber:           0,
		Parallelism:           runtime.NumCPU(),
		BufferViews:           true,
	}
}

// UnmarshalJSON merges JSON fields onto the reference defaults, so a config file
// only needs to set the options it wants to override.
func (c *Config) UnmarshalJSON(data []byte) error {
	type defaults Config
	def := defaults(*NewDefaultConfig())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*c = Config(def)
	return nil
}

// DecideBufferViews picks the FrameStore buffering policy (spec §5 "Memory envelope")
// from available physical memory, generalizing the batch-size search in the
// teacher's memory-envelope estimator from "how many frames per batch" to
// "can every derived view be kept in memory at once."
func DecideBufferViews(frameCount, height, width int) bool {
	bytesPerFrameAllViews := int64(height) * int64(width) * 4 // mono + blurred + laplacian_ds + original estimate, float32-equivalent
	total := int64(frameCount) * bytesPerFrameAllViews
	avail := int64(memory.TotalMemory())
	// Leave half of physical memory for everything else the process needs
	// (stacking buffers, OS, other processes).
	return total < avail/2
}

// Validate rejects parameter combinations outside their valid ranges.
func (c *Config) Validate() error {
	if c.GaussWidth < 1 || c.GaussWidth%2 == 0 {
		return lserr.New(lserr.ConfigError, "", "gauss_width must be a positive odd integer, got %d", c.GaussWidth)
	}
	if c.AlignRectScale < 1 {
		return lserr.New(lserr.ConfigError, "", "align_rect_scale must be >= 1, got %d", c.AlignRectScale)
	}
	if c.AlignSearchWidth < 1 {
		return lserr.New(lserr.ConfigError, "", "align_search_width must be >= 1, got %d", c.AlignSearchWidth)
	}
	if c.ReferencePercent <= 0 || c.ReferencePercent > 100 {
		return lserr.New(lserr.ConfigError, "", "reference_percent must be in (0,100], got %g", c.ReferencePercent)
	}
	if c.APBoxHalfWidth < 1 {
		return lserr.New(lserr.ConfigError, "", "ap_box_half_width must be >= 1, got %d", c.APBoxHalfWidth)
	}
	if c.APPatchHalfWidth < c.APBoxHalfWidth+c.APSearchWidth {
		return lserr.New(lserr.ConfigError, "", "ap_patch_half_width (%d) must be >= ap_box_half_width (%d) + ap_search_width (%d)",
			c.APPatchHalfWidth, c.APBoxHalfWidth, c.APSearchWidth)
	}
	if c.APStructureThreshold < 0 {
		return lserr.New(lserr.ConfigError, "", "ap_structure_threshold must be >= 0, got %g", c.APStructureThreshold)
	}
	if c.APBrightnessThreshold < 0 {
		return lserr.New(lserr.ConfigError, "", "ap_brightness_threshold must be >= 0, got %g", c.APBrightnessThreshold)
	}
	if c.APSearchWidth < 1 {
		return lserr.New(lserr.ConfigError, "", "ap_search_width must be >= 1, got %d", c.APSearchWidth)
	}
	if c.StackPercent <= 0 || c.StackPercent > 100 {
		return lserr.New(lserr.ConfigError, "", "stack_percent must be in (0,100], got %g", c.StackPercent)
	}
	if c.Parallelism < 1 {
		return lserr.New(lserr.ConfigError, "", "parallelism must be >= 1, got %d", c.Parallelism)
	}
	return nil
}

// StackSize computes stack_size = max(1, round(N * StackPercent / 100)), or
// StackNumber directly when set.
func (c *Config) StackSize(n int) int {
	if c.StackNumber > 0 {
		if c.StackNumber > n {
			return n
		}
		return c.StackNumber
	}
	size := int(float64(n)*c.StackPercent/100 + 0.5)
	if size < 1 {
		size = 1
	}
	if size > n {
		size = n
	}
	return size
}

// ReferenceSize computes K = max(1, round(N * ReferencePercent / 100)).
func (c *Config) ReferenceSize(n int) int {
	size := int(float64(n)*c.ReferencePercent/100 + 0.5)
	if size < 1 {
		size = 1
	}
	if size > n {
		size = n
	}
	return size
}
