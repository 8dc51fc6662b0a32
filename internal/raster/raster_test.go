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
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	nl "github.com/mlnoga/spidercam/internal"
)

// Creates a width x height RGB image with a deterministic gradient in [0,1]
func gradientImage(width, height int) *Image {
	f:=NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	for c:=0; c<3; c++ {
		ch:=f.Channel(c)
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				ch[y*width+x]=float32((x*7+y*13+c*51)%256)/255
			}
		}
	}
	return f
}

func TestNewImageFromNaxisn(t *testing.T) {
	f:=NewImageFromNaxisn([]int32{4, 3, 3}, nil)
	if f.Pixels!=36 || len(f.Data)!=36 || f.Width()!=4 || f.Height()!=3 || f.Channels()!=3 {
		t.Errorf("image %s with %d pixels; want 4x3x3 with 36", f.DimensionsToString(), f.Pixels)
	}
	if f.DimensionsToString()!="4x3x3" {
		t.Errorf("dims=%s; want 4x3x3", f.DimensionsToString())
	}
	if err:=f.CheckRGB(); err!=nil {
		t.Errorf("unexpected error %v", err)
	}
	mono:=NewImageFromNaxisn([]int32{4, 3}, nil)
	if err:=mono.CheckRGB(); !errors.Is(err, nl.ErrShapeMismatch) {
		t.Errorf("mono CheckRGB err=%v; want ErrShapeMismatch", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	f:=gradientImage(5, 4)
	g:=f.Clone()
	g.Data[0]=42
	if f.Data[0]==42 {
		t.Errorf("clone aliases source data")
	}
	if !f.SameShape(g) {
		t.Errorf("clone shape %s; want %s", g.DimensionsToString(), f.DimensionsToString())
	}
}

func TestParseRGB(t *testing.T) {
	rgb, err:=ParseRGB("0.85, 1,0.85")
	if err!=nil { t.Fatal(err) }
	if rgb!=(RGB{0.85, 1, 0.85}) {
		t.Errorf("rgb=%v; want (0.85, 1, 0.85)", rgb)
	}
	again, err:=ParseRGB(rgb.String())
	if err!=nil || again!=rgb {
		t.Errorf("ParseRGB(%q)=%v, %v; want %v", rgb.String(), again, err, rgb)
	}
	for _, bad:=range []string{"", "1,2", "1,2,3,4", "a,b,c"} {
		if _, err:=ParseRGB(bad); !errors.Is(err, nl.ErrInvalidArgument) {
			t.Errorf("ParseRGB(%q) err=%v; want ErrInvalidArgument", bad, err)
		}
	}
}

func TestApplyColorBalance(t *testing.T) {
	f:=NewImageFromNaxisn([]int32{3, 2, 3}, nil)
	for i:=range f.Data { f.Data[i]=1 }

	res, err:=ApplyColorBalance(f, RGB{0.85, 1.00, 0.85})
	if err!=nil { t.Fatal(err) }
	want:=[3]float32{0.85, 1.00, 0.85}
	for c:=0; c<3; c++ {
		for i, v:=range res.Channel(c) {
			if v!=want[c] {
				t.Errorf("c=%d i=%d v=%g; want %g", c, i, v, want[c])
			}
		}
	}
	for i, v:=range f.Data {
		if v!=1 {
			t.Fatalf("source modified at %d: %g", i, v)
		}
	}
}

func TestApplyColorBalanceNoClamp(t *testing.T) {
	f:=NewImageFromNaxisn([]int32{1, 1, 3}, []float32{0.9, 0.5, 0.2})
	res, err:=ApplyColorBalance(f, RGB{2, -1, 0})
	if err!=nil { t.Fatal(err) }
	want:=[]float32{1.8, -0.5, 0}
	for i, v:=range res.Data {
		if math.Abs(float64(v-want[i]))>1e-6 {
			t.Errorf("v[%d]=%g; want %g", i, v, want[i])
		}
	}
}

func TestApplyColorBalanceShapeMismatch(t *testing.T) {
	mono:=NewImageFromNaxisn([]int32{2, 2}, nil)
	if _, err:=ApplyColorBalance(mono, RGB{1, 1, 1}); !errors.Is(err, nl.ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}

func TestRGBValidate(t *testing.T) {
	if err:=(RGB{0.85, 1, 0.85}).Validate(); err!=nil {
		t.Errorf("unexpected error %v", err)
	}
	if err:=(RGB{float32(math.NaN()), 1, 1}).Validate(); !errors.Is(err, nl.ErrInvalidArgument) {
		t.Errorf("err=%v; want ErrInvalidArgument", err)
	}
	if !(RGB{1, 1, 1}).IsIdentity() || (RGB{0.85, 1, 0.85}).IsIdentity() {
		t.Errorf("IsIdentity mismatch")
	}
}

func TestCalcStats(t *testing.T) {
	s:=CalcStats([]float32{0.5, 0.1, 0.9, 0.3, 0.2})
	if s.Min!=0.1 || s.Max!=0.9 || s.Location!=0.3 {
		t.Errorf("stats %v; want min 0.1 max 0.9 location 0.3", s)
	}
	if math.Abs(float64(s.Mean)-0.4)>1e-6 {
		t.Errorf("mean=%g; want 0.4", s.Mean)
	}

	large:=make([]float32, 100000)
	for i:=range large { large[i]=float32(i%1000)/1000 }
	s=CalcStats(large)
	if math.Abs(float64(s.Location)-0.5)>0.02 {
		t.Errorf("sampled location=%g; want ~0.5", s.Location)
	}
}

func TestReadRejectsGrayscale(t *testing.T) {
	for _, img:=range []image.Image{image.NewGray(image.Rect(0, 0, 4, 4)), image.NewGray16(image.Rect(0, 0, 4, 4))} {
		if _, err:=NewImageFromGoImage(img); !errors.Is(err, nl.ErrShapeMismatch) {
			t.Errorf("%T: err=%v; want ErrShapeMismatch", img, err)
		}
	}
}

func TestCheckRGBDimensions(t *testing.T) {
	tests:=[]struct {
		width, height int
		ok            bool
	}{
		{1, 1, true},
		{20000, 20000, true},
		{MaxSamples/3, 1, true},
		{MaxSamples/3+1, 1, false},
		{30000, 30000, false},
		{2000000000, 2000000000, false},
		{0, 5, false},
		{5, -1, false},
	}
	for _, test:=range tests {
		err:=CheckRGBDimensions(test.width, test.height)
		if test.ok && err!=nil {
			t.Errorf("%dx%d: unexpected error %v", test.width, test.height, err)
		}
		if !test.ok && !errors.Is(err, nl.ErrShapeMismatch) {
			t.Errorf("%dx%d: err=%v; want ErrShapeMismatch", test.width, test.height, err)
		}
	}
}

func TestRejectsOversizedGoImage(t *testing.T) {
	// a uniform image has effectively unbounded size without holding pixel memory
	huge:=image.NewUniform(color.RGBA{10, 20, 30, 255})
	if _, err:=NewImageFromGoImage(huge); !errors.Is(err, nl.ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}

func TestRejectsOversizedFileFromHeader(t *testing.T) {
	buf:=bytes.Buffer{}
	if err:=png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2))); err!=nil { t.Fatal(err) }
	bs:=buf.Bytes()

	// rewrite width and height in the IHDR chunk, and its checksum
	binary.BigEndian.PutUint32(bs[16:20], 100000)
	binary.BigEndian.PutUint32(bs[20:24], 100000)
	binary.BigEndian.PutUint32(bs[29:33], crc32.ChecksumIEEE(bs[12:29]))

	fileName:=filepath.Join(t.TempDir(), "huge.png")
	if err:=os.WriteFile(fileName, bs, 0666); err!=nil { t.Fatal(err) }
	if _, err:=NewImageFromFile(fileName, 0); !errors.Is(err, nl.ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}

func TestNewImageFromGoImage(t *testing.T) {
	img:=image.NewRGBA(image.Rect(2, 3, 5, 5))
	img.SetRGBA(2, 3, color.RGBA{255, 0, 51, 255})
	img.SetRGBA(4, 4, color.RGBA{0, 102, 255, 255})
	f, err:=NewImageFromGoImage(img)
	if err!=nil { t.Fatal(err) }
	if f.DimensionsToString()!="3x2x3" || f.Bitpix!=8 {
		t.Fatalf("dims=%s bitpix=%d; want 3x2x3 bitpix 8", f.DimensionsToString(), f.Bitpix)
	}
	if f.Channel(0)[0]!=1 || f.Channel(1)[0]!=0 || math.Abs(float64(f.Channel(2)[0])-0.2)>1e-7 {
		t.Errorf("pixel (0,0)=(%g,%g,%g); want (1,0,0.2)", f.Channel(0)[0], f.Channel(1)[0], f.Channel(2)[0])
	}
	if f.Channel(0)[5]!=0 || math.Abs(float64(f.Channel(1)[5])-0.4)>1e-7 || f.Channel(2)[5]!=1 {
		t.Errorf("pixel (2,1)=(%g,%g,%g); want (0,0.4,1)", f.Channel(0)[5], f.Channel(1)[5], f.Channel(2)[5])
	}
}

func TestWriteReadPNG(t *testing.T) {
	f:=gradientImage(17, 9)
	fileName:=filepath.Join(t.TempDir(), "gradient.png")
	if err:=f.WriteFile(fileName); err!=nil { t.Fatal(err) }

	g, err:=NewImageFromFile(fileName, 3)
	if err!=nil { t.Fatal(err) }
	if g.ID!=3 || g.FileName!=fileName || !f.SameShape(g) {
		t.Fatalf("read back %d %s %s; want 3 %s %s", g.ID, g.FileName, g.DimensionsToString(), fileName, f.DimensionsToString())
	}
	if d:=MaxAbsDiff(f, g); d>1e-6 {
		t.Errorf("max difference after PNG round trip %g; want 0", d)
	}
}

func TestWriteReadTIFF16(t *testing.T) {
	f:=gradientImage(8, 8)
	f.Data[0]=0.123456
	fileName:=filepath.Join(t.TempDir(), "gradient.tif")
	if err:=f.WriteFile(fileName); err!=nil { t.Fatal(err) }

	g, err:=NewImageFromFile(fileName, 0)
	if err!=nil { t.Fatal(err) }
	if g.Bitpix!=16 {
		t.Errorf("bitpix=%d; want 16", g.Bitpix)
	}
	if d:=MaxAbsDiff(f, g); d>1.0/65535 {
		t.Errorf("max difference after TIFF round trip %g; want <=1/65535", d)
	}
}

func TestWriteReadJPG(t *testing.T) {
	f:=NewImageFromNaxisn([]int32{16, 16, 3}, nil)
	for c, v:=range []float32{0.8, 0.4, 0.2} {
		ch:=f.Channel(c)
		for i:=range ch { ch[i]=v }
	}
	fileName:=filepath.Join(t.TempDir(), "flat.jpg")
	if err:=f.WriteFile(fileName); err!=nil { t.Fatal(err) }

	g, err:=NewImageFromFile(fileName, 0)
	if err!=nil { t.Fatal(err) }
	if d:=MaxAbsDiff(f, g); d>0.03 {
		t.Errorf("max difference after JPEG round trip %g; want <0.03", d)
	}
}

func TestWriteClampsOutOfRange(t *testing.T) {
	f:=NewImageFromNaxisn([]int32{1, 1, 3}, []float32{1.7, -0.2, float32(math.NaN())})
	img:=f.ToNRGBA()
	if c:=img.NRGBAAt(0, 0); c!=(color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("color=%v; want {255 0 0 255}", c)
	}
}

func TestWriteUnknownSuffix(t *testing.T) {
	dir:=t.TempDir()
	f:=gradientImage(2, 2)
	if err:=f.WriteFile(filepath.Join(dir, "out.xyz")); !errors.Is(err, nl.ErrInvalidArgument) {
		t.Errorf("err=%v; want ErrInvalidArgument", err)
	}
	entries, _:=os.ReadDir(dir)
	if len(entries)!=0 {
		t.Errorf("%d leftover files; want none", len(entries))
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err:=NewImageFromFile(filepath.Join(t.TempDir(), "missing.jpg"), 0)
	if !errors.Is(err, nl.ErrIOFailure) {
		t.Errorf("err=%v; want ErrIOFailure", err)
	}
}

func TestReadGarbage(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "garbage.png")
	if err:=os.WriteFile(fileName, []byte("not an image"), 0666); err!=nil { t.Fatal(err) }
	if _, err:=NewImageFromFile(fileName, 0); !errors.Is(err, nl.ErrIOFailure) {
		t.Errorf("err=%v; want ErrIOFailure", err)
	}
}
