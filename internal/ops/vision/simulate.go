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



package vision

import (
	"fmt"
	"time"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/convolve"
	"github.com/mlnoga/spidercam/internal/ops"
	"github.com/mlnoga/spidercam/internal/psf"
	"github.com/mlnoga/spidercam/internal/raster"
)

// Settings for a simulation run: the plate scale of the source image, and the two visual systems
type Config struct {
	PlateScale float64 `json:"plateScale"`  // Degrees per pixel, shared across both axes
	People     Profile `json:"people"`
	Spider     Profile `json:"spider"`
}

func DefaultConfig() Config {
	return Config{
		PlateScale: psf.DefaultPlateScale,
		People:     DefaultPeople(),
		Spider:     DefaultSpider(),
	}
}

// Checks the settings, including that both kernels stay within psf.MaxKernelSize
func (cfg Config) Validate() error {
	if !(cfg.PlateScale>0) {
		return fmt.Errorf("%w: plate scale %g must be positive", nl.ErrInvalidArgument, cfg.PlateScale)
	}
	for _, p:=range []Profile{cfg.People, cfg.Spider} {
		if err:=p.Validate(); err!=nil { return err }
		if _, _, err:=psf.DeriveParameters(p.AngularResolution, cfg.PlateScale, p.ExtentFactor); err!=nil {
			return fmt.Errorf("%s profile: %w", p.Name, err)
		}
	}
	return nil
}

// Results of a simulation run. All images have the shape of the source
type Result struct {
	People       *raster.Image
	Spider       *raster.Image
	PeopleKernel *psf.Kernel
	SpiderKernel *psf.Kernel
}

// Renders the source image as seen by the people and spider visual systems. Builds one kernel per
// profile, then blurs the unmodified source with the people kernel, and a color balanced copy with
// the spider kernel. The source image is not modified, and nothing is retained between calls
func Simulate(src *raster.Image, cfg Config, c *ops.Context) (*Result, error) {
	if err:=src.CheckRGB(); err!=nil { return nil, err }
	if err:=cfg.Validate(); err!=nil { return nil, err }

	peopleKernel, err:=cfg.People.Kernel(cfg.PlateScale)
	if err!=nil { return nil, err }
	spiderKernel, err:=cfg.Spider.Kernel(cfg.PlateScale)
	if err!=nil { return nil, err }

	people, err:=Render(src, cfg.People, peopleKernel, c)
	if err!=nil { return nil, err }
	spider, err:=Render(src, cfg.Spider, spiderKernel, c)
	if err!=nil { return nil, err }

	return &Result{People: people, Spider: spider, PeopleKernel: peopleKernel, SpiderKernel: spiderKernel}, nil
}

// Renders the source as seen by a single visual system with the given kernel: applies the
// profile's color balance to a copy of the source, then convolves each channel with the kernel
func Render(src *raster.Image, p Profile, k *psf.Kernel, c *ops.Context) (*raster.Image, error) {
	start:=time.Now()
	in:=src
	if !p.ColorBalance.IsIdentity() {
		var err error
		if in, err=raster.ApplyColorBalance(src, p.ColorBalance); err!=nil { return nil, err }
		fmt.Fprintf(c.Log, "%d: Applied %s color balance %v\n", src.ID, p.Name, p.ColorBalance)
	}

	limits:=convolve.Limits{MaxThreads: c.MaxThreads, MemoryMB: c.MemoryMB}
	fmt.Fprintf(c.Log, "%d: Convolving %s image with %s %v\n", src.ID, src.DimensionsToString(), p.Name, k)
	out, err:=convolve.Channels(in, k, limits)
	if err!=nil { return nil, fmt.Errorf("%s profile: %w", p.Name, err) }
	out.Role=p.Name
	out.CalcStats()
	fmt.Fprintf(c.Log, "%d: Rendered %s image with %v after %v\n", src.ID, p.Name, out.Stats, time.Since(start))
	return out, nil
}
