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



// Package absorbance loads photoreceptor absorbance spectra from CSV files and plots them.
// It is a side diagnostic and does not feed the vision simulation.
package absorbance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	nl "github.com/mlnoga/spidercam/internal"
)

// Absorbance spectra sampled at common wavelengths
type Dataset struct {
	FileName   string
	Wavelength []float64   // in nanometers, from the first column
	Names      []string    // series names from the header row, excluding the wavelength column
	Series     [][]float64 // one slice per series, same length as Wavelength
}

// Minimum number of columns: wavelength plus at least two series
const MinColumns=3

// Loads a dataset from a CSV file with a header row and at least three numeric columns
func Load(fileName string) (*Dataset, error) {
	file, err:=os.Open(fileName)
	if err!=nil { return nil, fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
	defer file.Close()
	ds, err:=Read(file)
	if err!=nil { return nil, fmt.Errorf("%s: %w", fileName, err) }
	ds.FileName=fileName
	return ds, nil
}

// Reads a dataset in CSV format from the given reader
func Read(r io.Reader) (*Dataset, error) {
	cr:=csv.NewReader(r)
	cr.TrimLeadingSpace=true
	cr.Comment='#'

	header, err:=cr.Read()
	if errors.Is(err, io.EOF) { return nil, fmt.Errorf("%w: empty file", nl.ErrShapeMismatch) }
	if err!=nil { return nil, fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
	if len(header)<MinColumns {
		return nil, fmt.Errorf("%w: %d columns, need at least %d", nl.ErrShapeMismatch, len(header), MinColumns)
	}

	ds:=&Dataset{
		Names:  make([]string, len(header)-1),
		Series: make([][]float64, len(header)-1),
	}
	for i, h:=range header[1:] {
		ds.Names[i]=strings.TrimSpace(h)
	}

	for line:=2; ; line++ {
		record, err:=cr.Read()
		if errors.Is(err, io.EOF) { break }
		if err!=nil { return nil, fmt.Errorf("%w: %v", nl.ErrIOFailure, err) }
		values:=make([]float64, len(record))
		for i, s:=range record {
			if values[i], err=strconv.ParseFloat(strings.TrimSpace(s), 64); err!=nil {
				return nil, fmt.Errorf("%w: line %d column %d: %v", nl.ErrInvalidArgument, line, i+1, err)
			}
		}
		ds.Wavelength=append(ds.Wavelength, values[0])
		for i, v:=range values[1:] {
			ds.Series[i]=append(ds.Series[i], v)
		}
	}
	if len(ds.Wavelength)==0 {
		return nil, fmt.Errorf("%w: no data rows", nl.ErrShapeMismatch)
	}
	return ds, nil
}

// Returns the wavelength of peak absorbance for each series
func (ds *Dataset) PeakWavelengths() []float64 {
	peaks:=make([]float64, len(ds.Series))
	for i, s:=range ds.Series {
		peaks[i]=ds.Wavelength[floats.MaxIdx(s)]
	}
	return peaks
}

func (ds *Dataset) String() string {
	b:=strings.Builder{}
	fmt.Fprintf(&b, "%d series over %d wavelengths", len(ds.Series), len(ds.Wavelength))
	if len(ds.Wavelength)>0 {
		fmt.Fprintf(&b, " from %gnm to %gnm", floats.Min(ds.Wavelength), floats.Max(ds.Wavelength))
	}
	for i, p:=range ds.PeakWavelengths() {
		fmt.Fprintf(&b, ", %s peak %gnm", ds.Names[i], p)
	}
	return b.String()
}
