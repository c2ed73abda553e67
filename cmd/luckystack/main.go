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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mlnoga/luckystack/internal/config"
	"github.com/mlnoga/luckystack/internal/pipeline"
	"github.com/mlnoga/luckystack/internal/rest"
	"github.com/mlnoga/luckystack/internal/source"
	"github.com/mlnoga/luckystack/internal/xlog"
	"github.com/pbnjay/memory"
)

const version = "0.1.0"

const legal = `luckystack Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.
`

var out = flag.String("out", "out.png", "save stacked output to `file`")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var configFile = flag.String("config", "", "JSON config file overriding the defaults")

var monoChannel = flag.String("monoChannel", "green", "channel feeding mono views: red, green, blue, luminance")
var gaussWidth = flag.Int("gaussWidth", 7, "odd Gaussian blur kernel width in pixels")
var rankerMethod = flag.String("ranker", "contrast", "frame ranking method: contrast or laplacian")

var alignMode = flag.String("alignMode", "surface", "global alignment mode: surface or planet")
var alignRectScale = flag.Int("alignRectScale", 3, "tiles per side for surface-mode anchor rectangle search")
var alignSearchWidth = flag.Int("alignSearchWidth", 14, "global alignment search width in pixels; shifts beyond 4x this value are rejected")

var referencePercent = flag.Float64("referencePercent", 5, "percent of best frames averaged into the reference image")

var apBoxHalfWidth = flag.Int("apBoxHalfWidth", 24, "alignment point correlation box half-width in pixels")
var apPatchHalfWidth = flag.Int("apPatchHalfWidth", 48, "alignment point stacking patch half-width in pixels")
var apStructureThreshold = flag.Float64("apStructureThreshold", 0.04, "normalized structure threshold for keeping an AP candidate")
var apBrightnessThreshold = flag.Float64("apBrightnessThreshold", 10, "brightness threshold for keeping an AP candidate")
var apSearchWidth = flag.Int("apSearchWidth", 14, "per-AP local shift search radius in pixels")
var apMethod = flag.String("apMethod", "search", "local shift method: search or fft")

var stackPercent = flag.Float64("stackPercent", 10, "percent of best frames kept per AP, 0<...<=100")
var stackNumber = flag.Int("stackNumber", 0, "exact number of best frames kept per AP, overrides stackPercent if >0")

var parallelism = flag.Int("parallelism", runtime.NumCPU(), "number of concurrent worker goroutines")

var chroot = flag.String("chroot", "", "directory to chroot and chdir to before opening the input. must be run as root")
var setuid = flag.Int("setuid", -1, "user id number to setuid to before opening the input. must be run as root")
var serve = flag.Bool("serve", false, "start a read-only HTTP progress endpoint while stacking")
var port = flag.String("port", ":8080", "address to bind the progress endpoint to when -serve is set")

func main() {
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `luckystack Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (stack|legal|version) input.ser

Commands:
  stack   Stack a raw-video input (or a list of image files) into a single lucky-imaging composite
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := xlog.AlsoToFile(*log); err != nil {
			fmt.Fprintf(os.Stderr, "unable to open log file %s: %s\n", *log, err)
			os.Exit(1)
		}
	}
	defer xlog.Sync()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	switch args[0] {
	case "legal":
		fmt.Print(legal)
		return
	case "version":
		fmt.Printf("luckystack version %s\n", version)
		return
	case "stack":
		// fall through
	default:
		flag.Usage()
		return
	}

	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "stack requires an input file argument")
		os.Exit(1)
	}

	xlog.LogCPUFeatures()
	xlog.Printf("Physical memory: %d MiB\n", memory.TotalMemory()/1024/1024)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %s\n", err)
		os.Exit(1)
	}

	if *setuid >= 0 || *chroot != "" {
		rest.MakeSandbox(*chroot, *setuid)
	}

	prod, err := openInput(args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening input: %s\n", err)
		os.Exit(1)
	}
	defer prod.Close()

	pl := pipeline.New(cfg)
	ctx := context.Background()

	var progress pipeline.ProgressFunc
	if *serve {
		tracker := rest.NewTracker()
		progress = tracker.Update
		go func() {
			if err := rest.Serve(tracker, *port); err != nil {
				xlog.Printf("progress server stopped: %s\n", err)
			}
		}()
	} else {
		progress = func(activity string, pct float64) {
			xlog.Printf("%s: %.0f%%\n", activity, pct)
		}
	}

	img, err := pl.Stack(ctx, prod, progress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stacking failed: %s\n", err)
		os.Exit(1)
	}

	if err := writeOutput(*out, img); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %s\n", *out, err)
		os.Exit(1)
	}

	xlog.Printf("Stacked %dx%d in %s, wrote %s\n", img.Width, img.Height, time.Since(start), *out)
}

func buildConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if *configFile != "" {
		data, err := ioutil.ReadFile(*configFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(*monoChannel) {
	case "red":
		cfg.MonoChannel = config.ChannelRed
	case "green":
		cfg.MonoChannel = config.ChannelGreen
	case "blue":
		cfg.MonoChannel = config.ChannelBlue
	case "luminance":
		cfg.MonoChannel = config.ChannelLuminance
	}
	cfg.GaussWidth = *gaussWidth
	if strings.ToLower(*rankerMethod) == "laplacian" {
		cfg.RankerMethod = config.RankLaplacian
	} else {
		cfg.RankerMethod = config.RankContrast
	}
	if strings.ToLower(*alignMode) == "planet" {
		cfg.AlignMode = config.AlignPlanet
	} else {
		cfg.AlignMode = config.AlignSurface
	}
	cfg.AlignRectScale = *alignRectScale
	cfg.AlignSearchWidth = *alignSearchWidth
	cfg.ReferencePercent = *referencePercent
	cfg.APBoxHalfWidth = *apBoxHalfWidth
	cfg.APPatchHalfWidth = *apPatchHalfWidth
	cfg.APStructureThreshold = *apStructureThreshold
	cfg.APBrightnessThreshold = *apBrightnessThreshold
	cfg.APSearchWidth = *apSearchWidth
	if strings.ToLower(*apMethod) == "fft" {
		cfg.APMethod = config.APMethodFFT
	} else {
		cfg.APMethod = config.APMethodLocalSearch
	}
	cfg.StackPercent = *stackPercent
	cfg.StackNumber = *stackNumber
	cfg.Parallelism = *parallelism

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeOutput(path string, img *pipeline.StackedImage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rgba := toRGBAImage(img)
	return png.Encode(f, rgba)
}
