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



// Package raster holds normalized floating point color images, and reads and writes them
// from and to standard raster formats.
package raster

import (
	"fmt"
	"math"
	"strings"

	nl "github.com/mlnoga/spidercam/internal"
)

// A floating point image with planar channel storage. Sample values are normalized to [0,1] on load
type Image struct {
	ID       int      // Sequential ID number, for log output
	FileName string   // Original file name, if any. Output names are derived from it
	Role     string   // Role of this image in the simulation: source, people or spider

	Bitpix int32      // Bits per sample of the source format, 8 or 16
	Naxisn []int32    // Axis dimensions. Most quickly varying dimension first, i.e. width, height, channels
	Pixels int32      // Number of samples in the image. Product of Naxisn[]

	Data   []float32  // The image data. Channel c occupies Data[c*width*height : (c+1)*width*height]

	Stats  *Stats     // Basic image statistics, nil if not yet calculated
}

// Ordered per-channel values for red, green and blue
type RGB [3]float32

func (rgb RGB) String() string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", rgb[0], rgb[1], rgb[2])
}

// Parses a comma-separated triple like "0.85,1,0.85", optionally in parentheses as printed by String()
func ParseRGB(s string) (rgb RGB, err error) {
	parts:=strings.Split(strings.Trim(s, "() "), ",")
	if len(parts)!=3 {
		return rgb, fmt.Errorf("%w: color triple '%s' needs exactly three comma-separated values", nl.ErrInvalidArgument, s)
	}
	for i, p:=range parts {
		var v float32
		if _, err:=fmt.Sscanf(strings.TrimSpace(p), "%g", &v); err!=nil {
			return rgb, fmt.Errorf("%w: color triple '%s': %v", nl.ErrInvalidArgument, s, err)
		}
		rgb[i]=v
	}
	return rgb, nil
}

// Largest supported number of samples across all channels, as Pixels is an int32.
// For three channels this is about 715 megapixels
const MaxSamples=math.MaxInt32

// Returns an error unless an RGB image of the given dimensions fits into MaxSamples
func CheckRGBDimensions(width, height int) error {
	if width<=0 || height<=0 {
		return fmt.Errorf("%w: empty %dx%d image", nl.ErrShapeMismatch, width, height)
	}
	if int64(width)*int64(height)>MaxSamples/3 {
		return fmt.Errorf("%w: %dx%d image exceeds the maximum of %d samples", nl.ErrShapeMismatch, width, height, MaxSamples)
	}
	return nil
}

// Creates an image with given dimensions. Data is not copied, allocated if nil. naxisn is deep copied.
// The product of all dimensions must not exceed MaxSamples
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels:=int32(1)
	for _, naxis:=range naxisn {
		numPixels*=naxis
	}
	if data==nil {
		data=make([]float32, numPixels)
	}
	return &Image{
		Bitpix: 8,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates an image with the same metadata and shape as the given one. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Role:     img.Role,
		Bitpix:   img.Bitpix,
		Naxisn:   append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:   img.Pixels,
		Data:     make([]float32, img.Pixels),
	}
}

// Creates a deep copy of the given image
func (f *Image) Clone() *Image {
	res:=NewImageFromImage(f)
	copy(res.Data, f.Data)
	if f.Stats!=nil {
		s:=*f.Stats
		res.Stats=&s
	}
	return res
}

func (f *Image) Width() int  { return int(f.Naxisn[0]) }
func (f *Image) Height() int { return int(f.Naxisn[1]) }

// Returns the number of channels, 1 for two-dimensional images
func (f *Image) Channels() int {
	if len(f.Naxisn)<3 { return 1 }
	return int(f.Naxisn[2])
}

// Returns the sample plane of the given channel. The slice aliases the image data
func (f *Image) Channel(c int) []float32 {
	size:=f.Width()*f.Height()
	return f.Data[c*size : (c+1)*size]
}

// Returns an error unless the image is a three-channel color image with consistent data
func (f *Image) CheckRGB() error {
	if len(f.Naxisn)!=3 || f.Naxisn[2]!=3 {
		return fmt.Errorf("%w: %d: expected width x height x 3 color image, have %s", nl.ErrShapeMismatch, f.ID, f.DimensionsToString())
	}
	if int(f.Pixels)!=len(f.Data) || f.Width()*f.Height()*3!=len(f.Data) {
		return fmt.Errorf("%w: %d: %s image with %d samples", nl.ErrShapeMismatch, f.ID, f.DimensionsToString(), len(f.Data))
	}
	return nil
}

// Returns true if both images have identical dimensions
func (f *Image) SameShape(g *Image) bool {
	if len(f.Naxisn)!=len(g.Naxisn) { return false }
	for i, n:=range f.Naxisn {
		if g.Naxisn[i]!=n { return false }
	}
	return true
}

func (f *Image) DimensionsToString() string {
	b:=strings.Builder{}
	for i, naxis:=range f.Naxisn {
		if i>0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}
