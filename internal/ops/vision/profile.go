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



// Package vision simulates how an image of the night sky appears to human and jumping spider eyes.
package vision

import (
	"fmt"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/psf"
	"github.com/mlnoga/spidercam/internal/raster"
)

// A visual system, characterized by its angular resolution and its color sensitivity
type Profile struct {
	Name              string     `json:"name"`               // Role given to the rendered image, e.g. people or spider
	AngularResolution float64    `json:"angularResolution"`  // Resolution as FWHM in degrees
	ExtentFactor      float64    `json:"extentFactor"`       // Kernel side length as multiple of the FWHM
	ColorBalance      raster.RGB `json:"colorBalance"`       // Per-channel multipliers applied before blurring
}

// Human foveal vision, about 0.007 degrees resolution and neutral color balance
func DefaultPeople() Profile {
	return Profile{
		Name:              "people",
		AngularResolution: psf.DefaultPeopleResolution,
		ExtentFactor:      psf.DefaultExtentFactor,
		ColorBalance:      raster.RGB{1, 1, 1},
	}
}

// Jumping spider (Habronattus pyrrithrix) vision, about 0.07 degrees resolution
// with red and blue attenuated relative to green
func DefaultSpider() Profile {
	return Profile{
		Name:              "spider",
		AngularResolution: psf.DefaultSpiderResolution,
		ExtentFactor:      psf.DefaultExtentFactor,
		ColorBalance:      raster.RGB{0.85, 1.00, 0.85},
	}
}

func (p Profile) Validate() error {
	if p.Name=="" {
		return fmt.Errorf("%w: profile without name", nl.ErrInvalidArgument)
	}
	if !(p.AngularResolution>0) || !(p.ExtentFactor>0) {
		return fmt.Errorf("%w: %s profile needs positive angular resolution and extent factor, have %g and %g", 
			nl.ErrInvalidArgument, p.Name, p.AngularResolution, p.ExtentFactor)
	}
	if err:=p.ColorBalance.Validate(); err!=nil {
		return fmt.Errorf("%s profile: %w", p.Name, err)
	}
	return nil
}

// Builds the point spread function of this visual system for an image with the given plate scale
func (p Profile) Kernel(plateScale float64) (*psf.Kernel, error) {
	k, err:=psf.NewKernelForResolution(p.AngularResolution, plateScale, p.ExtentFactor)
	if err!=nil { return nil, fmt.Errorf("%s profile: %w", p.Name, err) }
	return k, nil
}

func (p Profile) String() string {
	return fmt.Sprintf("%s: resolution %g deg, extent %gx FWHM, color balance %v", 
		p.Name, p.AngularResolution, p.ExtentFactor, p.ColorBalance)
}
