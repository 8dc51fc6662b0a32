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
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	nl "github.com/mlnoga/spidercam/internal"
)

const sampleCSV=`wavelength, UV, green, red
# comment lines are skipped
300, 0.20, 0.05, 0.01
360, 0.95, 0.10, 0.02
440, 0.30, 0.40, 0.10
530, 0.05, 1.00, 0.45
580, 0.01, 0.60, 0.90
620, 0.00, 0.20, 0.70
`

func TestRead(t *testing.T) {
	ds, err:=Read(strings.NewReader(sampleCSV))
	if err!=nil { t.Fatal(err) }
	if len(ds.Wavelength)!=6 || len(ds.Series)!=3 {
		t.Fatalf("got %d wavelengths and %d series; want 6 and 3", len(ds.Wavelength), len(ds.Series))
	}
	if ds.Names[0]!="UV" || ds.Names[2]!="red" {
		t.Errorf("names %v", ds.Names)
	}
	if ds.Wavelength[3]!=530 || ds.Series[1][3]!=1.0 {
		t.Errorf("wavelength %g green %g at row 3; want 530, 1", ds.Wavelength[3], ds.Series[1][3])
	}
	peaks:=ds.PeakWavelengths()
	want:=[]float64{360, 530, 580}
	for i:=range want {
		if peaks[i]!=want[i] {
			t.Errorf("peak %s at %g; want %g", ds.Names[i], peaks[i], want[i])
		}
	}
}

func TestReadErrors(t *testing.T) {
	tests:=[]struct {
		name string
		csv  string
		want error
	}{
		{"empty",        "",                               nl.ErrShapeMismatch},
		{"two columns",  "nm, a\n400, 1\n",                nl.ErrShapeMismatch},
		{"header only",  "nm, a, b\n",                     nl.ErrShapeMismatch},
		{"not numeric",  "nm, a, b\n400, 1, x\n",          nl.ErrInvalidArgument},
		{"ragged",       "nm, a, b\n400, 1, 2\n410, 1\n",  nl.ErrIOFailure},
	}
	for _, test:=range tests {
		_, err:=Read(strings.NewReader(test.csv))
		if !errors.Is(err, test.want) {
			t.Errorf("%s: err=%v; want %v", test.name, err, test.want)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	_, err:=Load(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, nl.ErrIOFailure) {
		t.Errorf("err=%v; want ErrIOFailure", err)
	}
}

func TestLoadAndPlot(t *testing.T) {
	dir:=t.TempDir()
	csvName:=filepath.Join(dir, "absorbance.csv")
	if err:=os.WriteFile(csvName, []byte(sampleCSV), 0666); err!=nil { t.Fatal(err) }
	ds, err:=Load(csvName)
	if err!=nil { t.Fatal(err) }
	if ds.FileName!=csvName {
		t.Errorf("file name %s; want %s", ds.FileName, csvName)
	}

	plotName:=filepath.Join(dir, DefaultPlotName)
	if err:=Plot(ds, plotName); err!=nil { t.Fatal(err) }
	file, err:=os.Open(plotName)
	if err!=nil { t.Fatal(err) }
	defer file.Close()
	cfg, err:=png.DecodeConfig(file)
	if err!=nil { t.Fatal(err) }
	if cfg.Width<=0 || cfg.Height<=cfg.Width/2 {
		t.Errorf("plot %dx%d", cfg.Width, cfg.Height)
	}

	entries, err:=os.ReadDir(dir)
	if err!=nil { t.Fatal(err) }
	if len(entries)!=2 {
		t.Errorf("%d files in output directory; want 2", len(entries))
	}
}

func TestSeriesColorsDistinct(t *testing.T) {
	cols:=SeriesColors(4)
	for i:=range cols {
		for j:=i+1; j<len(cols); j++ {
			if cols[i]==cols[j] {
				t.Errorf("colors %d and %d identical", i, j)
			}
		}
	}
}
