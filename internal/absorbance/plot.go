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



package absorbance

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	nl "github.com/mlnoga/spidercam/internal"
)

// Default output file name for the absorbance plot
const DefaultPlotName="spider-absorbance.png"

// Plot dimensions
var (
	PlotWidth =8*vg.Inch
	PlotHeight=5*vg.Inch
)

// Returns n distinguishable line colors with evenly spaced hues at constant lightness and chroma
func SeriesColors(n int) []color.Color {
	cols:=make([]color.Color, n)
	for i:=range cols {
		h:=360.0*float64(i)/float64(n)
		cols[i]=colorful.Hcl(h, 0.6, 0.55).Clamped()
	}
	return cols
}

// Builds an overlay line plot with one line per series
func NewPlot(ds *Dataset) (*plot.Plot, error) {
	p:=plot.New()
	p.Title.Text="Photoreceptor absorbance"
	p.X.Label.Text="Wavelength (nm)"
	p.Y.Label.Text="Absorbance"
	p.Add(plotter.NewGrid())
	p.Legend.Top=true

	cols:=SeriesColors(len(ds.Series))
	for i, s:=range ds.Series {
		xys:=make(plotter.XYs, len(s))
		for j, v:=range s {
			xys[j].X=ds.Wavelength[j]
			xys[j].Y=v
		}
		line, err:=plotter.NewLine(xys)
		if err!=nil { return nil, fmt.Errorf("%w: series %s: %v", nl.ErrInvalidArgument, ds.Names[i], err) }
		line.LineStyle.Color=cols[i]
		line.LineStyle.Width=vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(ds.Names[i], line)
	}
	return p, nil
}

// Plots the dataset and writes it as PNG to the given file, via a temporary file in the same directory
func Plot(ds *Dataset, fileName string) (err error) {
	p, err:=NewPlot(ds)
	if err!=nil { return err }
	wt, err:=p.WriterTo(PlotWidth, PlotHeight, "png")
	if err!=nil { return err }

	dir, base:=filepath.Split(fileName)
	if dir=="" { dir="." }
	tmp, err:=os.CreateTemp(dir, "."+base+".*.tmp")
	if err!=nil { return fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
	defer func() {
		if err!=nil { os.Remove(tmp.Name()) }
	}()

	if err=tmp.Chmod(0644); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", nl.ErrIOFailure, err)
	}
	writer:=bufio.NewWriter(tmp)
	if _, err=wt.WriteTo(writer); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", nl.ErrIOFailure, err)
	}
	if err=writer.Flush(); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", nl.ErrIOFailure, err)
	}
	if err=tmp.Close(); err!=nil { return fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
	if err=os.Rename(tmp.Name(), fileName); err!=nil { return fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
	return nil
}
