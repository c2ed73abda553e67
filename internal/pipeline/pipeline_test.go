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

package pipeline

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/mlnoga/luckystack/internal/config"
	"github.com/mlnoga/luckystack/internal/lserr"
	"github.com/mlnoga/luckystack/internal/source"
)

// memProducer is a fixed in-memory source.Producer for pipeline tests.
type memProducer struct {
	info   source.Info
	frames [][]float32
}

func (p *memProducer) Open(path string) (source.Info, error) { return p.info, nil }
func (p *memProducer) Info() source.Info                     { return p.info }
func (p *memProducer) Read(i int) ([]float32, error) {
	if i < 0 || i >= len(p.frames) {
		return nil, lserr.New(lserr.InputError, "read", "frame %d out of range", i)
	}
	return p.frames[i], nil
}
func (p *memProducer) Close() error { return nil }

func gaussianBlobFrame(width, height int, cy, cx float64) []float32 {
	out := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dy, dx := float64(y)-cy, float64(x)-cx
			out[y*width+x] = float32(200 * math.Exp(-(dy*dy+dx*dx)/40))
		}
	}
	return out
}

func testConfig(parallelism int) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Parallelism = parallelism
	cfg.BufferViews = true
	cfg.APBoxHalfWidth = 6
	cfg.APPatchHalfWidth = 14
	cfg.APSearchWidth = 4
	cfg.AlignSearchWidth = 4
	cfg.GaussWidth = 3
	cfg.APStructureThreshold = 0.01
	cfg.APBrightnessThreshold = 5
	return cfg
}

func staticBlobProducer(n, width, height int) *memProducer {
	frames := make([][]float32, n)
	for i := range frames {
		frames[i] = gaussianBlobFrame(width, height, float64(height)/2, float64(width)/2)
	}
	return &memProducer{
		info:   source.Info{FrameCount: n, Width: width, Height: height, Channels: 1, Depth: 8},
		frames: frames,
	}
}

func TestStackDeterministicAcrossParallelism(t *testing.T) {
	width, height := 80, 80
	prod := staticBlobProducer(8, width, height)

	run := func(parallelism int) *StackedImage {
		cfg := testConfig(parallelism)
		pl := New(cfg)
		img, err := pl.Stack(context.Background(), prod, nil)
		if err != nil {
			t.Fatalf("parallelism=%d: %v", parallelism, err)
		}
		return img
	}

	img1 := run(1)
	img2 := run(4)
	if img1.Width != img2.Width || img1.Height != img2.Height {
		t.Fatalf("dimensions differ: %dx%d vs %dx%d", img1.Width, img1.Height, img2.Width, img2.Height)
	}
	if !reflect.DeepEqual(img1.Data, img2.Data) {
		t.Error("stacked output differs across worker counts")
	}
}

func TestStackSingleFrameIsDegenerate(t *testing.T) {
	prod := staticBlobProducer(1, 64, 64)
	cfg := testConfig(1)
	pl := New(cfg)
	_, err := pl.Stack(context.Background(), prod, nil)
	if !lserr.Is(err, lserr.Degenerate) {
		t.Fatalf("got %v, want Degenerate", err)
	}
}

func TestStackStaticFramesZeroShifts(t *testing.T) {
	width, height := 80, 80
	prod := staticBlobProducer(6, width, height)
	cfg := testConfig(2)
	pl := New(cfg)
	img, err := pl.Stack(context.Background(), prod, nil)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width <= 0 || img.Height <= 0 {
		t.Fatalf("empty output image %dx%d", img.Width, img.Height)
	}
}

func TestStackOutOfBoundsShiftExcludedNoPanic(t *testing.T) {
	width, height := 80, 80
	frames := make([][]float32, 6)
	for i := range frames {
		// Shift the blob progressively toward the corner so at least one AP's
		// patch is pushed fully outside the intersection in some frames.
		frames[i] = gaussianBlobFrame(width, height, float64(height)/2+float64(i), float64(width)/2+float64(i))
	}
	prod := &memProducer{
		info:   source.Info{FrameCount: len(frames), Width: width, Height: height, Channels: 1, Depth: 8},
		frames: frames,
	}
	cfg := testConfig(2)
	pl := New(cfg)
	img, err := pl.Stack(context.Background(), prod, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range img.Data {
		if math.IsNaN(float64(v)) {
			t.Fatal("found NaN in output")
		}
	}
}

func TestStackProgressReachesHundredPercentEveryActivity(t *testing.T) {
	prod := staticBlobProducer(5, 64, 64)
	cfg := testConfig(2)
	pl := New(cfg)
	seen := map[string]float64{}
	_, err := pl.Stack(context.Background(), prod, func(activity string, pct float64) {
		seen[activity] = pct
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, activity := range []string{"read", "rank", "align", "set_roi", "build_reference",
		"place_APs", "compute_frame_qualities", "stack", "emit"} {
		if seen[activity] != 100 {
			t.Errorf("activity %s: got %v, want 100", activity, seen[activity])
		}
	}
}
