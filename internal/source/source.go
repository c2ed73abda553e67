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

// Package source implements the frame-producer interface consumed by the
// pipeline: a raw fixed-stride video container and an ordered image-set
// reader.
package source

import (
	"encoding/binary"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"os"
	"sort"

	"github.com/mlnoga/luckystack/internal/lserr"
	"golang.org/x/image/tiff"
)

func init() {
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}

// ColorID enumerates the channel layout encoded in a raw-video header.
type ColorID int32

const (
	ColorMono     ColorID = 0
	ColorBayerRGGB ColorID = 8
	ColorBayerGRBG ColorID = 9
	ColorBayerGBRG ColorID = 10
	ColorBayerBGGR ColorID = 11
	ColorRGB       ColorID = 100
	ColorBGR       ColorID = 101
)

// Info describes a producer's frame set.
type Info struct {
	FrameCount int
	Width      int
	Height     int
	Channels   int
	Depth      int // bits per plane, 8 or 16
	ColorID    ColorID
	Observer, Instrument, Telescope string
}

// Producer is the frame-producer interface consumed by the pipeline.
type Producer interface {
	Open(path string) (Info, error)
	Info() Info
	Read(i int) (data []float32, err error)
	Close() error
}

// rawHeaderSize is the fixed 178-byte layout <14s 7i 40s 40s 40s 2q,
// little-endian, matching the original reference parser's struct.unpack format:
// a 14-byte FileId, seven int32 fields, three 40-byte text fields, and two
// int64 timestamps.
const rawHeaderSize = 178

// RawVideoProducer reads the fixed-stride raw video container described by
// spec §6: a 178-byte header, frame_count fixed-size frames, and an optional
// trailer of frame_count 8-byte microsecond timestamps.
type RawVideoProducer struct {
	f          *os.File
	r          io.ReaderAt
	info       Info
	frameSize  int64
	dataOffset int64
	bytesPerPlane int
	shift      uint // left-shift applied to 16-bit reads after bit-depth calibration
}

func channelsFor(c ColorID) int {
	if c == ColorRGB || c == ColorBGR {
		return 3
	}
	return 1
}

// Open parses the header and runs the three-frame bit-depth calibration pass
// (first, middle, last frame) for 16-bit data, exactly as the reference
// implementation does: find the global maximum sample and left-shift
// subsequent reads by 16 - bitlen(max).
func (p *RawVideoProducer) Open(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, lserr.Wrap(lserr.InputError, "read", err, "opening %s", path)
	}
	p.f = f
	p.r = f

	var raw [rawHeaderSize]byte
	if _, err := io.ReadFull(f, raw[:]); err != nil {
		f.Close()
		return Info{}, lserr.Wrap(lserr.InputError, "read", err, "reading header of %s", path)
	}
	if string(raw[0:14]) != "LUCAM-RECORDER" {
		f.Close()
		return Info{}, lserr.New(lserr.InputError, "read", "%s is not a recognized raw-video container", path)
	}

	le := binary.LittleEndian
	// raw[14:18] is the first int32 field (LuID), unused here.
	colorID := ColorID(int32(le.Uint32(raw[18:22])))
	littleEndian := int32(le.Uint32(raw[22:26]))
	width := int32(le.Uint32(raw[26:30]))
	height := int32(le.Uint32(raw[30:34]))
	depthPerPlane := int32(le.Uint32(raw[34:38]))
	frameCount := int32(le.Uint32(raw[38:42]))
	observer := cString(raw[42:82])
	instrument := cString(raw[82:122])
	telescope := cString(raw[122:162])
	_ = littleEndian

	channels := channelsFor(colorID)
	bytesPerPlane := 1
	if depthPerPlane > 8 {
		bytesPerPlane = 2
	}
	p.bytesPerPlane = bytesPerPlane
	p.frameSize = int64(width) * int64(height) * int64(channels) * int64(bytesPerPlane)
	p.dataOffset = rawHeaderSize

	p.info = Info{
		FrameCount: int(frameCount),
		Width:      int(width),
		Height:     int(height),
		Channels:   channels,
		Depth:      8,
		ColorID:    colorID,
		Observer:   observer,
		Instrument: instrument,
		Telescope:  telescope,
	}
	if bytesPerPlane == 2 {
		p.info.Depth = 16
		if err := p.calibrateBitDepth(); err != nil {
			f.Close()
			return Info{}, err
		}
	}
	return p.info, nil
}

// calibrateBitDepth samples the first, middle and last frame, finds the
// global maximum 16-bit sample, and sets the left-shift so the effective
// significant bit count matches the reference parser's behavior for cameras
// that write fewer than 16 significant bits into a 16-bit container.
func (p *RawVideoProducer) calibrateBitDepth() error {
	if p.info.FrameCount == 0 {
		return lserr.New(lserr.InputError, "read", "raw-video container has zero frames")
	}
	indices := []int{0, p.info.FrameCount / 2, p.info.FrameCount - 1}
	maxVal := uint16(0)
	for _, idx := range indices {
		buf := make([]byte, p.frameSize)
		off := p.dataOffset + int64(idx)*p.frameSize
		if _, err := p.r.ReadAt(buf, off); err != nil {
			return lserr.Wrap(lserr.InputError, "read", err, "sampling frame %d for bit-depth calibration", idx)
		}
		for i := 0; i+1 < len(buf); i += 2 {
			v := binary.LittleEndian.Uint16(buf[i:])
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal == 0 {
		p.shift = 0
		return nil
	}
	significantBits := uint(bits.Len16(maxVal))
	if significantBits < 16 {
		p.shift = 16 - significantBits
	}
	return nil
}

// Info returns the metadata parsed by the last call to Open.
func (p *RawVideoProducer) Info() Info { return p.info }

// Read decodes frame i into channel-major float32 data in [0, 2^depth-1].
func (p *RawVideoProducer) Read(i int) ([]float32, error) {
	if i < 0 || i >= p.info.FrameCount {
		return nil, lserr.New(lserr.InputError, "read", "frame index %d out of range [0,%d)", i, p.info.FrameCount)
	}
	buf := make([]byte, p.frameSize)
	off := p.dataOffset + int64(i)*p.frameSize
	if _, err := p.r.ReadAt(buf, off); err != nil {
		return nil, lserr.Wrap(lserr.InputError, "read", err, "reading frame %d", i)
	}
	n := p.info.Width * p.info.Height * p.info.Channels
	out := make([]float32, n)
	if p.bytesPerPlane == 1 {
		for i, b := range buf {
			out[i] = float32(b)
		}
	} else {
		for i := 0; i < n; i++ {
			v := binary.LittleEndian.Uint16(buf[i*2:])
			out[i] = float32(v << p.shift)
		}
	}
	return deinterleaveIfNeeded(out, p.info.Width, p.info.Height, p.info.Channels), nil
}

// deinterleaveIfNeeded converts pixel-interleaved RGB/BGR samples (as stored in
// the raw container) into this codebase's channel-major layout.
func deinterleaveIfNeeded(data []float32, width, height, channels int) []float32 {
	if channels == 1 {
		return data
	}
	plane := width * height
	out := make([]float32, len(data))
	for i := 0; i < plane; i++ {
		for c := 0; c < channels; c++ {
			out[c*plane+i] = data[i*channels+c]
		}
	}
	return out
}

func (p *RawVideoProducer) Close() error {
	if p.f == nil {
		return nil
	}
	return p.f.Close()
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ImageSetProducer reads an ordered, caller-supplied list of image files via
// the standard library's image decoders (and golang.org/x/image for formats
// not registered by default), one frame per file.
type ImageSetProducer struct {
	paths  []string
	info   Info
	decode func(path string) ([]float32, int, int, int, error)
}

// DefaultImageDecode decodes a single image file via the standard library's
// registered image.Decode formats (JPEG, PNG, and TIFF via golang.org/x/image,
// registered in this package's init), returning channel-major float32 samples
// at 8 bits per channel. It is the default decode func for NewImageSetProducer.
func DefaultImageDecode(path string) ([]float32, int, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if gray, ok := img.(*image.Gray); ok {
		out := make([]float32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out[y*width+x] = float32(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return out, width, height, 1, nil
	}

	plane := width * height
	out := make([]float32, plane*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*width + x
			out[idx] = float32(r >> 8)
			out[plane+idx] = float32(g >> 8)
			out[2*plane+idx] = float32(b >> 8)
		}
	}
	return out, width, height, 3, nil
}

// NewImageSetProducer builds a producer over a copy of paths sorted
// lexicographically, so frame order follows file-name order (mirroring the
// reference glob-then-sort idiom for ordered image sets).
func NewImageSetProducer(paths []string, decode func(path string) ([]float32, int, int, int, error)) *ImageSetProducer {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return &ImageSetProducer{paths: sorted, decode: decode}
}

func (p *ImageSetProducer) Open(path string) (Info, error) {
	if len(p.paths) == 0 {
		return Info{}, lserr.New(lserr.InputError, "read", "empty image set")
	}
	data, width, height, channels, err := p.decode(p.paths[0])
	if err != nil {
		return Info{}, lserr.Wrap(lserr.InputError, "read", err, "decoding %s", p.paths[0])
	}
	_ = data
	p.info = Info{FrameCount: len(p.paths), Width: width, Height: height, Channels: channels, Depth: 8}
	return p.info, nil
}

// Info returns the metadata parsed by the last call to Open.
func (p *ImageSetProducer) Info() Info { return p.info }

func (p *ImageSetProducer) Read(i int) ([]float32, error) {
	if i < 0 || i >= len(p.paths) {
		return nil, lserr.New(lserr.InputError, "read", "frame index %d out of range [0,%d)", i, len(p.paths))
	}
	data, _, _, _, err := p.decode(p.paths[i])
	if err != nil {
		return nil, lserr.Wrap(lserr.InputError, "read", err, "decoding %s", p.paths[i])
	}
	return data, nil
}

func (p *ImageSetProducer) Close() error { return nil }
