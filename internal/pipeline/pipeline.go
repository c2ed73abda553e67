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

// Package pipeline sequences the stacking activities read, rank, align,
// set_roi, build_reference, place_APs, compute_frame_qualities, stack and
// emit over an already-opened frame producer.
package pipeline

import (
	"context"
	"math"
	"sync"

	"github.com/mlnoga/luckystack/internal/align"
	"github.com/mlnoga/luckystack/internal/apgrid"
	"github.com/mlnoga/luckystack/internal/aprank"
	"github.com/mlnoga/luckystack/internal/config"
	"github.com/mlnoga/luckystack/internal/frame"
	"github.com/mlnoga/luckystack/internal/localshift"
	"github.com/mlnoga/luckystack/internal/lserr"
	"github.com/mlnoga/luckystack/internal/reference"
	"github.com/mlnoga/luckystack/internal/source"
	"github.com/mlnoga/luckystack/internal/stack"
)

// ProgressFunc is a progress callback. The pipeline calls it synchronously on
// the goroutine running Stack, once as each activity completes, so a callback
// that blocks also delays stacking.
type ProgressFunc func(activity string, percentComplete float64)

func report(progress ProgressFunc, activity string, pct float64) {
	if progress == nil {
		return
	}
	progress(activity, pct)
}

// StackedImage is the final merged composite, scaled to the original frames'
// bit depth.
type StackedImage struct {
	Width, Height, Channels, Depth int
	Data                           []uint16
}

// Pipeline drives one stacking run for a given configuration.
type Pipeline struct {
	cfg *config.Config
}

// New builds a Pipeline bound to cfg.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Stack runs the full activity sequence against an already-opened producer,
// checking ctx at frame and AP boundaries for cooperative cancellation, and
// reporting coarse progress through the progress callback.
func (p *Pipeline) Stack(ctx context.Context, src source.Producer, progress ProgressFunc) (*StackedImage, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	info := src.Info()
	if info.FrameCount < 2 {
		return nil, lserr.New(lserr.Degenerate, "read", "need at least 2 frames to stack, got %d", info.FrameCount)
	}

	frames, err := p.readFrames(ctx, src, info)
	if err != nil {
		return nil, err
	}
	report(progress, "read", 100)

	store := frame.NewStore(frames, p.cfg)

	scores, err := p.rankFrames(ctx, store)
	if err != nil {
		return nil, err
	}
	report(progress, "rank", 100)

	anchorIdx := argmax(scores)

	blurredViews := make([][]float32, store.Len())
	for i := 0; i < store.Len(); i++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		b, err := store.GetBlurred(i)
		if err != nil {
			return nil, err
		}
		blurredViews[i] = b
	}
	planetMode := p.cfg.AlignMode == config.AlignPlanet
	alignResult, err := align.GlobalAlign(blurredViews, info.Width, info.Height, anchorIdx, planetMode,
		p.cfg.AlignRectScale, p.cfg.AlignSearchWidth)
	if err != nil {
		return nil, err
	}
	report(progress, "align", 100)

	// set_roi: the intersection window computed by GlobalAlign becomes the
	// region of interest every downstream activity operates in.
	intersection := alignResult.Intersection
	report(progress, "set_roi", 100)

	referenceSize := p.cfg.ReferenceSize(store.Len())
	referenceMono := reference.Build(blurredViews, info.Width, alignResult.Shifts, intersection, scores, referenceSize)
	report(progress, "build_reference", 100)

	aps, err := apgrid.Place(referenceMono, intersection.Width(), p.cfg.APBoxHalfWidth, p.cfg.APPatchHalfWidth,
		p.cfg.APStructureThreshold, p.cfg.APBrightnessThreshold)
	if err != nil {
		return nil, err
	}
	report(progress, "place_APs", 100)

	if err := p.computeFrameQualities(ctx, info, referenceMono, blurredViews, aps, alignResult.Shifts, intersection); err != nil {
		return nil, err
	}
	stackSize := p.cfg.StackSize(store.Len())
	for _, ap := range aps {
		aprank.RankAndSelect(ap, stackSize)
	}
	report(progress, "compute_frame_qualities", 100)

	getFrame := func(i int) (data []float32, width, height, channels int, err error) {
		f, err := store.GetOriginal(i)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		return f.Original, f.Width, f.Height, f.Channels, nil
	}
	img, err := stack.Accumulate(aps, alignResult.Shifts, intersection, info.Channels, getFrame)
	if err != nil {
		return nil, err
	}
	report(progress, "stack", 100)

	sourceMax := float32((1 << uint(info.Depth)) - 1)
	out := &StackedImage{
		Width: img.Width, Height: img.Height, Channels: img.Channels, Depth: info.Depth,
		Data: img.ToDepth(info.Depth, sourceMax),
	}
	report(progress, "emit", 100)
	return out, nil
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return lserr.Wrap(lserr.Cancelled, "", ctx.Err(), "stacking cancelled")
	default:
		return nil
	}
}

// readFrames decodes every frame from src, bounded by cfg.Parallelism
// concurrent goroutines, generalizing the teacher's NumCPU-chunked WaitGroup
// pattern to a semaphore so the frame count need not divide evenly.
func (p *Pipeline) readFrames(ctx context.Context, src source.Producer, info source.Info) ([]*frame.Frame, error) {
	frames := make([]*frame.Frame, info.FrameCount)
	errs := make([]error, info.FrameCount)
	sem := make(chan struct{}, p.cfg.Parallelism)
	var wg sync.WaitGroup
	for i := 0; i < info.FrameCount; i++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			data, err := src.Read(i)
			if err != nil {
				errs[i] = err
				return
			}
			frames[i] = frame.NewFrame(i, info.Height, info.Width, info.Channels, info.Depth, data)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// rankFrames scores every frame's sharpness per cfg.RankerMethod.
func (p *Pipeline) rankFrames(ctx context.Context, store frame.Store) ([]float32, error) {
	n := store.Len()
	scores := make([]float32, n)
	errs := make([]error, n)
	sem := make(chan struct{}, p.cfg.Parallelism)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			f, err := store.GetOriginal(i)
			if err != nil {
				errs[i] = err
				return
			}
			switch p.cfg.RankerMethod {
			case config.RankLaplacian:
				ds, dsw, dsh, err := store.GetLaplacianDS(i)
				if err != nil {
					errs[i] = err
					return
				}
				sum := float32(0)
				for _, v := range ds {
					sum += float32(v)
				}
				if dsw*dsh > 0 {
					scores[i] = sum / float32(dsw*dsh)
				}
			default:
				blurred, err := store.GetBlurred(i)
				if err != nil {
					errs[i] = err
					return
				}
				scores[i] = aprank.LocalContrast(blurred, f.Width, 0, f.Height, 0, f.Width)
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return scores, nil
}

// computeFrameQualities measures, for every (AP, frame) pair, the residual
// local shift beyond the frame's already-applied global shift, and a quality
// score from the local contrast at the matched location. Each AP only ever
// appends to its own FrameShifts slice, so APs run concurrently without
// locking.
func (p *Pipeline) computeFrameQualities(ctx context.Context, info source.Info, referenceMono []float32,
	blurredViews [][]float32, aps []*apgrid.AlignmentPoint, shifts []align.Shift, intersection align.Rect) error {

	n := len(blurredViews)
	iw := intersection.Width()
	searchWidth := p.cfg.APSearchWidth
	sem := make(chan struct{}, p.cfg.Parallelism)
	var wg sync.WaitGroup

	for _, ap := range aps {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ap *apgrid.AlignmentPoint) {
			defer wg.Done()
			defer func() { <-sem }()

			boxW, boxH := ap.Box.Width(), ap.Box.Height()
			referenceBox := extractWindow(referenceMono, iw, len(referenceMono)/iw, align.Rect{
				YLow: ap.Box.YLow, YHigh: ap.Box.YHigh, XLow: ap.Box.XLow, XHigh: ap.Box.XHigh,
			})

			shiftsOut := make([]apgrid.LocalShift, n)
			for i := 0; i < n; i++ {
				global := shifts[i]
				frameRect := align.Rect{
					YLow:  ap.Box.YLow + intersection.YLow - global.DY,
					YHigh: ap.Box.YHigh + intersection.YLow - global.DY,
					XLow:  ap.Box.XLow + intersection.XLow - global.DX,
					XHigh: ap.Box.XHigh + intersection.XLow - global.DX,
				}
				data := blurredViews[i]

				var res localshift.Result
				if p.cfg.APMethod == config.APMethodFFT {
					targetBox := extractWindow(data, info.Width, info.Height, frameRect)
					res = localshift.FFTLocal(referenceBox, targetBox, boxW, boxH)
				} else {
					searchRect := align.Rect{
						YLow: frameRect.YLow - searchWidth, YHigh: frameRect.YHigh + searchWidth,
						XLow: frameRect.XLow - searchWidth, XHigh: frameRect.XHigh + searchWidth,
					}
					targetSearch := extractWindow(data, info.Width, info.Height, searchRect)
					res = localshift.LocalSearch(referenceBox, targetSearch, boxW, boxH, searchWidth)
				}

				qy, qx := int(math.Round(float64(res.DY))), int(math.Round(float64(res.DX)))
				qualityRect := align.Rect{
					YLow: frameRect.YLow + qy, YHigh: frameRect.YHigh + qy,
					XLow: frameRect.XLow + qx, XHigh: frameRect.XHigh + qx,
				}
				qualityBox := extractWindow(data, info.Width, info.Height, qualityRect)
				quality := aprank.LocalContrast(qualityBox, boxW, 0, boxH, 0, boxW)

				shiftsOut[i] = apgrid.LocalShift{
					FrameIndex: i, DY: res.DY, DX: res.DX, Quality: quality, LowConfidence: res.LowConfidence,
				}
			}
			ap.FrameShifts = shiftsOut
		}(ap)
	}
	wg.Wait()
	return nil
}

// extractWindow copies an axis-aligned window out of a width x height field,
// zero-padding any part of r that falls outside bounds (the search window
// around an AP near a frame edge legitimately can).
func extractWindow(data []float32, width, height int, r align.Rect) []float32 {
	h, w := r.Height(), r.Width()
	out := make([]float32, h*w)
	for y := 0; y < h; y++ {
		srcY := r.YLow + y
		if srcY < 0 || srcY >= height {
			continue
		}
		for x := 0; x < w; x++ {
			srcX := r.XLow + x
			if srcX < 0 || srcX >= width {
				continue
			}
			out[y*w+x] = data[srcY*width+srcX]
		}
	}
	return out
}

func argmax(scores []float32) int {
	best, bestV := 0, float32(math.Inf(-1))
	for i, v := range scores {
		if v > bestV {
			bestV, best = v, i
		}
	}
	return best
}
