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
	"sort"

	"github.com/valyala/fastrand"
)

// Number of samples for the approximate median
const numLocationSamples=16*1024

// Basic statistics on image data
type Stats struct {
	Min      float32  // Minimum
	Max      float32  // Maximum
	Mean     float32  // Mean (average)
	Location float32  // Approximate median from random sampling
}

func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g Location %.6g", s.Min, s.Max, s.Mean, s.Location)
}

// Calculates basic statistics for a data array
func CalcStats(data []float32) *Stats {
	if len(data)==0 { return &Stats{} }
	s:=&Stats{}
	s.Min, s.Mean, s.Max=calcMinMeanMax(data)
	s.Location=fastApproxMedian(data, numLocationSamples)
	return s
}

// Calculates statistics for all image data and stores them in f.Stats
func (f *Image) CalcStats() *Stats {
	f.Stats=CalcStats(f.Data)
	return f.Stats
}

// Returns the sum of all samples in the given channel, accumulated in double precision
func (f *Image) ChannelSum(c int) float64 {
	sum:=0.0
	for _, v:=range f.Channel(c) {
		sum+=float64(v)
	}
	return sum
}

func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax:=data[0], float64(0), data[0]
	for _, v:=range data {
		if v<mmin { mmin=v }
		if v>mmax { mmax=v }
		mmean+=float64(v)
	}
	return mmin, float32(mmean/float64(len(data))), mmax
}

// Calculates a fast approximate median of the (presumably large) data by subsampling the given
// number of values and taking the median of that. Uses the exact median for small data
func fastApproxMedian(data []float32, numSamples int) float32 {
	var samples []float32
	if len(data)<=numSamples {
		samples=append([]float32(nil), data...)
	} else {
		samples=make([]float32, numSamples)
		max:=uint32(len(data))
		rng:=fastrand.RNG{}
		for i:=range samples {
			samples[i]=data[rng.Uint32n(max)]
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i]<samples[j] })
	n:=len(samples)
	if n%2==1 { return samples[n/2] }
	return float32((float64(samples[n/2-1])+float64(samples[n/2]))/2)
}

// Returns the largest absolute sample difference between two images of the same shape, or +Inf if shapes differ
func MaxAbsDiff(a, b *Image) float64 {
	if !a.SameShape(b) || len(a.Data)!=len(b.Data) { return math.Inf(1) }
	max:=0.0
	for i, v:=range a.Data {
		d:=math.Abs(float64(v)-float64(b.Data[i]))
		if d>max { max=d }
	}
	return max
}
