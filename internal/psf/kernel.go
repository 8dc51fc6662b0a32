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



// Package psf builds Gaussian point spread functions for the simulated visual systems.
package psf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	nl "github.com/mlnoga/spidercam/internal"
)

// Exponent factor converting a squared distance over squared FWHM into a Gaussian exponent
var fwhmExponent = -4 * math.Ln2

// Center of a kernel in pixel coordinates
type Center struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
}

// A square, normalized 2D convolution kernel. Weights are stored row-major and sum to one.
// Kernels are immutable once built
type Kernel struct {
	Size   int        // Side length in pixels
	FWHM   float64    // Full width at half maximum in pixels
	X0, Y0 float64    // Center of the peak
	data   []float64  // Size*Size weights, row-major
}

// Builds a normalized square Gaussian kernel with the given side length and full width at half maximum.
// A nil center places the peak at size/2 in both axes. For even sizes this is one half pixel off the
// geometric center
func NewGaussianKernel(size int, fwhm float64, center *Center) (*Kernel, error) {
	if size<=0 || size>MaxKernelSize {
		return nil, fmt.Errorf("%w: kernel size %d must be in 1..%d", nl.ErrInvalidArgument, size, MaxKernelSize)
	}
	if !(fwhm>0) || math.IsInf(fwhm, 1) {
		return nil, fmt.Errorf("%w: kernel FWHM %g must be positive and finite", nl.ErrInvalidArgument, fwhm)
	}

	x0, y0:=float64(size/2), float64(size/2)
	if center!=nil {
		x0, y0=center.X0, center.Y0
	}

	data:=make([]float64, size*size)
	scale:=fwhmExponent/(fwhm*fwhm)
	for y:=0; y<size; y++ {
		dy:=float64(y)-y0
		row:=data[y*size : (y+1)*size]
		for x:=range row {
			dx:=float64(x)-x0
			row[x]=math.Exp(scale*(dx*dx+dy*dy))
		}
	}
	sum:=compensatedSum(data)
	if !(sum>0) {
		// peak far outside the grid underflows every weight
		return nil, fmt.Errorf("%w: kernel of size %d with FWHM %g and center (%g,%g) has no weight", 
			nl.ErrInvalidArgument, size, fwhm, x0, y0)
	}
	floats.Scale(1/sum, data)

	return &Kernel{Size: size, FWHM: fwhm, X0: x0, Y0: y0, data: data}, nil
}

// Builds a kernel of size 1 with all weight in its single entry. Convolution with it is the identity
func NewImpulseKernel() *Kernel {
	return &Kernel{Size: 1, FWHM: 0, X0: 0, Y0: 0, data: []float64{1}}
}

// Returns the weight at the given coordinates
func (k *Kernel) At(x, y int) float64 {
	return k.data[y*k.Size+x]
}

// Returns a copy of the row-major kernel weights
func (k *Kernel) Data() []float64 {
	return append([]float64(nil), k.data...)
}

// Returns the sum of all weights
func (k *Kernel) Sum() float64 {
	return compensatedSum(k.data)
}

// Neumaier summation, so normalization holds for kernels with millions of tiny weights
func compensatedSum(data []float64) float64 {
	sum, comp:=0.0, 0.0
	for _, w:=range data {
		t:=sum+w
		if math.Abs(sum)>=math.Abs(w) {
			comp+=(sum-t)+w
		} else {
			comp+=(w-t)+sum
		}
		sum=t
	}
	return sum+comp
}

// Returns the largest weight
func (k *Kernel) Peak() float64 {
	return floats.Max(k.data)
}

func (k *Kernel) String() string {
	return fmt.Sprintf("%dx%d Gaussian kernel with FWHM %.4g px centered at (%g,%g)", k.Size, k.Size, k.FWHM, k.X0, k.Y0)
}
