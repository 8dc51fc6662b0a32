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



package psf

import (
	"fmt"
	"math"

	nl "github.com/mlnoga/spidercam/internal"
)

const (
	DefaultExtentFactor     = 5.0       // Kernel side length as multiple of FWHM
	DefaultPlateScale       = 2.222e-4  // Degrees per pixel
	DefaultPeopleResolution = 0.007     // Human foveal angular resolution in degrees
	DefaultSpiderResolution = 0.070     // Jumping spider angular resolution in degrees
)

// Largest supported kernel side length in pixels. A kernel of this size holds 128 MiB of weights,
// and its FFT grid is larger still
const MaxKernelSize=4096

// Converts a visual system's angular resolution and an image plate scale, both in degrees, into
// a kernel FWHM in pixels, and a kernel side length of extentFactor times the FWHM.
// The side length is truncated toward zero, and raised to 1 if the truncation yields 0.
// Side lengths above MaxKernelSize are rejected
func DeriveParameters(angularResolution, plateScale, extentFactor float64) (fwhmPixels float64, sizePixels int, err error) {
	if !(angularResolution>0) || math.IsInf(angularResolution, 1) {
		return 0, 0, fmt.Errorf("%w: angular resolution %g must be positive", nl.ErrInvalidArgument, angularResolution)
	}
	if !(plateScale>0) || math.IsInf(plateScale, 1) {
		return 0, 0, fmt.Errorf("%w: plate scale %g must be positive", nl.ErrInvalidArgument, plateScale)
	}
	if !(extentFactor>0) || math.IsInf(extentFactor, 1) {
		return 0, 0, fmt.Errorf("%w: kernel extent factor %g must be positive", nl.ErrInvalidArgument, extentFactor)
	}

	fwhmPixels=angularResolution/plateScale
	extent:=extentFactor*fwhmPixels
	if !(extent<float64(MaxKernelSize+1)) {
		return 0, 0, fmt.Errorf("%w: kernel extent %g pixels exceeds the maximum of %d, check plate scale %g", 
			nl.ErrInvalidArgument, extent, MaxKernelSize, plateScale)
	}
	sizePixels=int(extent)
	if sizePixels<1 { sizePixels=1 }
	return fwhmPixels, sizePixels, nil
}

// Derives the kernel parameters for the given angular resolution and plate scale,
// and builds the corresponding centered Gaussian kernel
func NewKernelForResolution(angularResolution, plateScale, extentFactor float64) (*Kernel, error) {
	fwhm, size, err:=DeriveParameters(angularResolution, plateScale, extentFactor)
	if err!=nil { return nil, err }
	return NewGaussianKernel(size, fwhm, nil)
}
