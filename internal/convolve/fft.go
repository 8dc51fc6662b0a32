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



// Package convolve applies point spread functions to image planes via the fast Fourier transform.
//
// A direct sliding-window convolution costs image pixels times kernel pixels, which is intractable
// for kernels hundreds of pixels wide on multi-megapixel images. Here each plane is zero-padded to
// a grid of at least (H+K-1)x(W+K-1), transformed, multiplied with the kernel spectrum and transformed
// back. The result equals the linear convolution with zero padding outside the image, cropped to the
// input size at offset (K-1)/2 so the kernel center at K/2 lands on the output pixel for odd K.
package convolve

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/psf"
)

// Same-mode convolution of fixed-size planes with a fixed kernel. The kernel spectrum is computed
// once and shared read-only, so a single Convolver may be used from several goroutines
type Convolver struct {
	width, height int            // Plane dimensions
	kernelSize    int            // Kernel side length
	fftW, fftH    int            // Padded FFT grid dimensions
	specW         int            // Number of non-redundant coefficients per row of a real FFT, fftW/2+1
	offX, offY    int            // Crop offset from the full convolution to same-mode output
	spectrum      []complex128   // fftH x specW kernel spectrum, prescaled by 1/(fftW*fftH)
}

// Creates a convolver for planes of the given size with the given kernel
func NewConvolver(width, height int, k *psf.Kernel) (*Convolver, error) {
	if width<=0 || height<=0 {
		return nil, fmt.Errorf("%w: plane size %dx%d must be positive", nl.ErrInvalidArgument, width, height)
	}
	if k==nil || k.Size<=0 {
		return nil, fmt.Errorf("%w: missing kernel", nl.ErrInvalidArgument)
	}
	c:=&Convolver{
		width:      width,
		height:     height,
		kernelSize: k.Size,
		fftW:       GoodSize(width+k.Size-1),
		fftH:       GoodSize(height+k.Size-1),
		offX:       (k.Size-1)/2,
		offY:       (k.Size-1)/2,
	}
	c.specW=c.fftW/2+1

	// kernel goes into the top left corner of the grid, zero-padded
	rowFFT:=fourier.NewFFT(c.fftW)
	colFFT:=fourier.NewCmplxFFT(c.fftH)
	c.spectrum=make([]complex128, c.fftH*c.specW)
	buf:=make([]float64, c.fftW)
	weights:=k.Data()
	for y:=0; y<k.Size; y++ {
		copy(buf, weights[y*k.Size:(y+1)*k.Size])
		rowFFT.Coefficients(c.spectrum[y*c.specW:(y+1)*c.specW], buf)
	}
	col:=make([]complex128, c.fftH)
	for x:=0; x<c.specW; x++ {
		for y:=range col { col[y]=c.spectrum[y*c.specW+x] }
		colFFT.Coefficients(col, col)
		for y, v:=range col { c.spectrum[y*c.specW+x]=v }
	}

	// gonum transforms are unnormalized. Fold the inverse scaling into the kernel once
	scale:=complex(1/float64(c.fftW*c.fftH), 0)
	for i:=range c.spectrum {
		c.spectrum[i]*=scale
	}
	return c, nil
}

// Returns the padded FFT grid dimensions
func (c *Convolver) GridSize() (width, height int) {
	return c.fftW, c.fftH
}

// Estimates the bytes of working memory needed by one concurrent call to Plane
func (c *Convolver) WorkingSetBytes() int64 {
	return int64(c.fftH)*int64(c.specW)*16 + int64(c.fftW)*8 + int64(c.fftH)*16
}

// Returns the bytes held by the precomputed kernel spectrum
func (c *Convolver) SpectrumBytes() int64 {
	return int64(len(c.spectrum))*16
}

// Convolves the plane src with the kernel and stores the same-size result in dst.
// src is not modified. dst and src must not overlap
func (c *Convolver) Plane(dst, src []float32) error {
	size:=c.width*c.height
	if len(src)!=size || len(dst)!=size {
		return fmt.Errorf("%w: plane of %d and %d samples for %dx%d convolver", 
			nl.ErrShapeMismatch, len(src), len(dst), c.width, c.height)
	}

	// FFT plans hold scratch space and are not safe for concurrent use, so each call makes its own
	rowFFT:=fourier.NewFFT(c.fftW)
	colFFT:=fourier.NewCmplxFFT(c.fftH)
	spec:=make([]complex128, c.fftH*c.specW)
	buf:=make([]float64, c.fftW)

	// forward transform of rows. Padding rows are zero and stay zero
	for y:=0; y<c.height; y++ {
		row:=src[y*c.width : (y+1)*c.width]
		for x, v:=range row { buf[x]=float64(v) }
		for x:=c.width; x<c.fftW; x++ { buf[x]=0 }
		rowFFT.Coefficients(spec[y*c.specW:(y+1)*c.specW], buf)
	}

	// forward transform of columns, multiply with kernel spectrum, inverse transform of columns
	col:=make([]complex128, c.fftH)
	for x:=0; x<c.specW; x++ {
		for y:=range col { col[y]=spec[y*c.specW+x] }
		colFFT.Coefficients(col, col)
		for y:=range col { col[y]*=c.spectrum[y*c.specW+x] }
		colFFT.Sequence(col, col)
		for y:=0; y<c.height; y++ { spec[(y+c.offY)*c.specW+x]=col[y+c.offY] }
	}

	// inverse transform of the rows inside the crop window only
	for y:=0; y<c.height; y++ {
		r:=y+c.offY
		rowFFT.Sequence(buf, spec[r*c.specW:(r+1)*c.specW])
		out:=dst[y*c.width : (y+1)*c.width]
		for x:=range out { out[x]=float32(buf[x+c.offX]) }
	}
	return nil
}

// Returns the smallest integer >= n whose only prime factors are 2, 3 and 5.
// Transforms of such sizes run on the fast radix paths
func GoodSize(n int) int {
	if n<=1 { return 1 }
	for m:=n; ; m++ {
		r:=m
		for _, p:=range [...]int{2, 3, 5} {
			for r%p==0 { r/=p }
		}
		if r==1 { return m }
	}
}

