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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	nl "github.com/mlnoga/spidercam/internal"
)

// JPEG quality for output files
const JPEGQuality=95

// Writes the image to the file with the given name, choosing the format by suffix:
// .jpg/.jpeg for 8-bit JPEG, .png for 8-bit PNG, .tif/.tiff for 16-bit TIFF.
// Data goes to a temporary file in the target directory first, which is then renamed,
// so a failed write never leaves a partial file under the target name
func (f *Image) WriteFile(fileName string) (err error) {
	encode, err:=encoderForSuffix(fileName)
	if err!=nil { return err }
	if err=f.CheckRGB(); err!=nil { return err }

	dir, base:=filepath.Split(fileName)
	if dir=="" { dir="." }
	tmp, err:=os.CreateTemp(dir, "."+base+".*.tmp")
	if err!=nil {
		return fmt.Errorf("%w: %d: creating temporary file for %s: %v", nl.ErrIOFailure, f.ID, fileName, err)
	}
	tmpName:=tmp.Name()
	defer func() {
		if err!=nil { os.Remove(tmpName) }
	}()

	if err=tmp.Chmod(0644); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %d: %v", nl.ErrIOFailure, f.ID, err)
	}
	writer:=bufio.NewWriter(tmp)
	if err=encode(f, writer); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %d: encoding %s: %v", nl.ErrIOFailure, f.ID, fileName, err)
	}
	if err=writer.Flush(); err!=nil {
		tmp.Close()
		return fmt.Errorf("%w: %d: writing %s: %v", nl.ErrIOFailure, f.ID, fileName, err)
	}
	if err=tmp.Close(); err!=nil {
		return fmt.Errorf("%w: %d: closing %s: %v", nl.ErrIOFailure, f.ID, fileName, err)
	}
	if err=os.Rename(tmpName, fileName); err!=nil {
		return fmt.Errorf("%w: %d: renaming to %s: %v", nl.ErrIOFailure, f.ID, fileName, err)
	}
	return nil
}

type encoder func(f *Image, w io.Writer) error

func encoderForSuffix(fileName string) (encoder, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return func(f *Image, w io.Writer) error { return f.WriteJPG(w, JPEGQuality) }, nil
	case ".png":
		return (*Image).WritePNG, nil
	case ".tif", ".tiff":
		return (*Image).WriteTIFF16, nil
	default:
		return nil, fmt.Errorf("%w: unknown output suffix for %s", nl.ErrInvalidArgument, fileName)
	}
}

// Write the image as 8-bit JPEG with given quality
func (f *Image) WriteJPG(writer io.Writer, quality int) error {
	return jpeg.Encode(writer, f.ToNRGBA(), &jpeg.Options{Quality: quality})
}

// Write the image as 8-bit PNG
func (f *Image) WritePNG(writer io.Writer) error {
	return png.Encode(writer, f.ToNRGBA())
}

// Write the image as uncompressed 16-bit TIFF
func (f *Image) WriteTIFF16(writer io.Writer) error {
	return tiff.Encode(writer, f.ToNRGBA64(), &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Converts the image into an opaque 8-bit Go image. Values are clamped to [0,1], NaNs become zero
func (f *Image) ToNRGBA() *image.NRGBA {
	width, height:=f.Width(), f.Height()
	size:=width*height
	img:=image.NewNRGBA(image.Rect(0, 0, width, height))
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			i:=yoffset+x
			img.SetNRGBA(x, y, color.NRGBA{
				quantize8(f.Data[i]), 
				quantize8(f.Data[i+size]), 
				quantize8(f.Data[i+2*size]), 
				255,
			})
		}
	}
	return img
}

// Converts the image into an opaque 16-bit Go image. Values are clamped to [0,1], NaNs become zero
func (f *Image) ToNRGBA64() *image.NRGBA64 {
	width, height:=f.Width(), f.Height()
	size:=width*height
	img:=image.NewNRGBA64(image.Rect(0, 0, width, height))
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			i:=yoffset+x
			img.SetNRGBA64(x, y, color.NRGBA64{
				quantize16(f.Data[i]), 
				quantize16(f.Data[i+size]), 
				quantize16(f.Data[i+2*size]), 
				65535,
			})
		}
	}
	return img
}

// Clamps a sample to [0,1], replacing NaNs with zero, else encoder output breaks
func clamp01(v float32) float64 {
	if math.IsNaN(float64(v)) || v<0 { return 0 }
	if v>1 { return 1 }
	return float64(v)
}

func quantize8(v float32) uint8   { return uint8(clamp01(v)*255+0.5) }
func quantize16(v float32) uint16 { return uint16(clamp01(v)*65535+0.5) }
