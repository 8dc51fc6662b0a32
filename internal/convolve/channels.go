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



package convolve

import (
	"errors"
	"fmt"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/psf"
	"github.com/mlnoga/spidercam/internal/raster"
)

// Resource limits for convolving multiple channels concurrently
type Limits struct {
	MaxThreads int    // Maximum number of channels processed concurrently, <=0 means 1
	MemoryMB   int    // Memory budget for FFT working sets in MiB, <=0 means unlimited
}

// Returns the number of channels to process concurrently, given the limits and the
// per-plane working set of the convolver. Always at least one
func (l Limits) Concurrency(channels int, c *Convolver) int {
	n:=channels
	if l.MaxThreads<=0 {
		n=1
	} else if l.MaxThreads<n {
		n=l.MaxThreads
	}
	if l.MemoryMB>0 && c!=nil {
		budget:=int64(l.MemoryMB)*1024*1024 - c.SpectrumBytes()
		byMemory:=int(budget/c.WorkingSetBytes())
		if byMemory<n { n=byMemory }
	}
	if n<1 { n=1 }
	return n
}

// Returns an error if the memory budget cannot hold the kernel spectrum plus a single plane's working set
func (l Limits) Check(c *Convolver) error {
	if l.MemoryMB<=0 { return nil }
	need:=c.SpectrumBytes()+c.WorkingSetBytes()
	if need>int64(l.MemoryMB)*1024*1024 {
		w, h:=c.GridSize()
		return fmt.Errorf("%w: %dx%d FFT grid needs %d MiB, budget is %d MiB", 
			nl.ErrInvalidArgument, w, h, (need+1024*1024-1)/(1024*1024), l.MemoryMB)
	}
	return nil
}

// Convolves each channel of the image independently with the given kernel, and returns the result
// as a new image of identical shape. The source image is not modified. Channels are processed
// concurrently within the given limits. Each output channel depends only on its input channel
// and the kernel, so results do not depend on scheduling
func Channels(img *raster.Image, k *psf.Kernel, limits Limits) (*raster.Image, error) {
	if len(img.Naxisn)<2 || int(img.Pixels)!=len(img.Data) || img.Width()*img.Height()*img.Channels()!=len(img.Data) {
		return nil, fmt.Errorf("%w: %d: cannot convolve %s image with %d samples", 
			nl.ErrShapeMismatch, img.ID, img.DimensionsToString(), len(img.Data))
	}
	conv, err:=NewConvolver(img.Width(), img.Height(), k)
	if err!=nil { return nil, fmt.Errorf("%d: %w", img.ID, err) }
	if err:=limits.Check(conv); err!=nil { return nil, fmt.Errorf("%d: %w", img.ID, err) }

	res:=raster.NewImageFromImage(img)
	channels:=img.Channels()

	limiter:=make(chan bool, limits.Concurrency(channels, conv))
	errs   :=make(chan error, channels)
	for ch:=0; ch<channels; ch++ {
		limiter <- true
		go func(ch int) {
			defer func() { <-limiter }()
			if err:=conv.Plane(res.Channel(ch), img.Channel(ch)); err!=nil {
				errs <- fmt.Errorf("%d: channel %d: %w", img.ID, ch, err)
				return
			}
			errs <- nil
		}(ch)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}

	var all []error
	for i:=0; i<channels; i++ {
		if e:=<-errs; e!=nil { all=append(all, e) }
	}
	if len(all)>0 { return nil, errors.Join(all...) }
	return res, nil
}
