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



package raster

import (
	"fmt"
	"math"

	nl "github.com/mlnoga/spidercam/internal"
)

// Scales the red, green and blue channels in place by the given factors. No clamping
func (f *Image) ScaleRGB(r, g, b float32) {
	for c, factor:=range [3]float32{r, g, b} {
		if factor==1 { continue }
		ch:=f.Channel(c)
		for i, v:=range ch {
			ch[i]=v*factor
		}
	}
	f.Stats=nil
}

// Returns a new image with each color channel of img multiplied by the corresponding factor.
// The input image is left unchanged. Values are not clamped, so factors above one may push samples above 1.0
func ApplyColorBalance(img *Image, balance RGB) (*Image, error) {
	if err:=img.CheckRGB(); err!=nil {
		return nil, fmt.Errorf("applying color balance %v: %w", balance, err)
	}
	res:=img.Clone()
	res.ScaleRGB(balance[0], balance[1], balance[2])
	return res, nil
}

// Returns true if all factors are one
func (rgb RGB) IsIdentity() bool {
	return rgb[0]==1 && rgb[1]==1 && rgb[2]==1
}

// Returns an error if any factor is NaN or infinite
func (rgb RGB) Validate() error {
	for i, v:=range rgb {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: color balance factor %d is %g", nl.ErrInvalidArgument, i, v)
		}
	}
	return nil
}
