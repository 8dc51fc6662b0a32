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
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	nl "github.com/mlnoga/spidercam/internal"
)

// Reads an image from the file with the given name, and normalizes it to [0,1] per sample.
// Supports all formats registered with the image package, i.e. JPEG, PNG, GIF, TIFF, WebP and BMP
func NewImageFromFile(fileName string, id int) (*Image, error) {
	file, err:=os.Open(fileName)
	if err!=nil {
		return nil, fmt.Errorf("%w: %d: %v", nl.ErrIOFailure, id, err)
	}
	defer file.Close()

	// reject oversized images from their header, before the decoder allocates pixel memory
	cfg, format, err:=image.DecodeConfig(bufio.NewReader(file))
	if err!=nil {
		return nil, fmt.Errorf("%w: %d: decoding image header of %s: %v", nl.ErrIOFailure, id, fileName, err)
	}
	if err:=CheckRGBDimensions(cfg.Width, cfg.Height); err!=nil {
		return nil, fmt.Errorf("%d: %s image %s: %w", id, format, fileName, err)
	}
	if _, err:=file.Seek(0, io.SeekStart); err!=nil {
		return nil, fmt.Errorf("%w: %d: %v", nl.ErrIOFailure, id, err)
	}

	f, err:=Read(bufio.NewReader(file), id)
	if err!=nil { return nil, err }
	f.FileName=fileName
	return f, nil
}

// Decodes an image from the given reader, and normalizes it to [0,1] per sample
func Read(r io.Reader, id int) (*Image, error) {
	img, format, err:=image.Decode(r)
	if err!=nil {
		return nil, fmt.Errorf("%w: %d: decoding image: %v", nl.ErrIOFailure, id, err)
	}
	f, err:=NewImageFromGoImage(img)
	if err!=nil {
		return nil, fmt.Errorf("%d: %s image: %w", id, format, err)
	}
	f.ID=id
	return f, nil
}

// Converts a Go image into a normalized three-channel image. Alpha is discarded.
// Grayscale images are rejected, as they lack the color channel dimension
func NewImageFromGoImage(img image.Image) (*Image, error) {
	bounds:=img.Bounds()
	width, height:=bounds.Dx(), bounds.Dy()
	if err:=CheckRGBDimensions(width, height); err!=nil { return nil, err }
	bitpix, channels:=colorModelToBitpixAndChannels(img.ColorModel())
	if channels!=3 {
		return nil, fmt.Errorf("%w: %dx%d image has %d color channel(s), need 3", nl.ErrShapeMismatch, width, height, channels)
	}

	f:=NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	f.Bitpix=bitpix
	size:=width*height
	rs, gs, bs:=f.Data[:size], f.Data[size:2*size], f.Data[2*size:]

	switch m:=img.(type) {
	case *image.YCbCr:
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				c:=m.YCbCrAt(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, b:=color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				i:=y*width+x
				rs[i], gs[i], bs[i]=float32(r)/255, float32(g)/255, float32(b)/255
			}
		}
	case *image.NRGBA:
		for y:=0; y<height; y++ {
			row:=m.Pix[y*m.Stride : y*m.Stride+4*width]
			for x:=0; x<width; x++ {
				i:=y*width+x
				rs[i], gs[i], bs[i]=float32(row[4*x])/255, float32(row[4*x+1])/255, float32(row[4*x+2])/255
			}
		}
	default:
		if bitpix==16 {
			for y:=0; y<height; y++ {
				for x:=0; x<width; x++ {
					c:=color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
					i:=y*width+x
					rs[i], gs[i], bs[i]=float32(c.R)/65535, float32(c.G)/65535, float32(c.B)/65535
				}
			}
		} else {
			for y:=0; y<height; y++ {
				for x:=0; x<width; x++ {
					c:=color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
					i:=y*width+x
					rs[i], gs[i], bs[i]=float32(c.R)/255, float32(c.G)/255, float32(c.B)/255
				}
			}
		}
	}
	return f, nil
}

// Returns bits per sample and number of color channels for a given color model
func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel, color.GrayModel:
		return 8, 1
	case color.Alpha16Model, color.Gray16Model:
		return 16, 1
	default:
		return 8, 3  // RGBA, NRGBA, YCbCr, CMYK and palettes
	}
}
