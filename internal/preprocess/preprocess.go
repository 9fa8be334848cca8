// Package preprocess turns a canvas bitmap into the 1x1x28x28 tensor the
// digit classifier was trained on.
//
// The pipeline is fixed: invert every channel, binarize at 128, keep the
// first channel, resize bilinearly to 28x28 and scale to [0,1]. The cutoff
// and the invert-then-threshold order match what the model was served with
// and are kept as they are.
package preprocess

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

const (
	// ImageSize is the side of the model input.
	ImageSize = 28
	// Cutoff is the binarization threshold applied after inversion.
	Cutoff = 128
)

type Options struct {
	Size          int
	Cutoff        uint8
	Interpolation resize.InterpolationFunction
}

func DefaultOptions() Options {
	return Options{
		Size:          ImageSize,
		Cutoff:        Cutoff,
		Interpolation: resize.Bilinear,
	}
}

// Preprocess runs the pipeline with the default options.
func Preprocess(b Bitmap) (Tensor, error) {
	return PreprocessWith(b, DefaultOptions())
}

func PreprocessWith(b Bitmap, opts Options) (Tensor, error) {
	if err := b.Validate(); err != nil {
		return Tensor{}, err
	}
	if opts.Size <= 0 {
		opts.Size = ImageSize
	}

	gray := channel(Threshold(Invert(b), opts.Cutoff), 0)
	return ToTensor(Resize(gray, opts.Size, opts.Interpolation)), nil
}

// Invert returns a copy of b with every channel flipped, alpha included.
func Invert(b Bitmap) Bitmap {
	out := Bitmap{Width: b.Width, Height: b.Height, Pix: make([]uint8, len(b.Pix))}
	for i, v := range b.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}

// Threshold returns a copy of b with every channel forced to 0 or 255.
func Threshold(b Bitmap, cutoff uint8) Bitmap {
	out := Bitmap{Width: b.Width, Height: b.Height, Pix: make([]uint8, len(b.Pix))}
	for i, v := range b.Pix {
		out.Pix[i] = binarize(v, cutoff)
	}
	return out
}

// Binarize is Threshold for a single channel image.
func Binarize(g *image.Gray, cutoff uint8) *image.Gray {
	r := g.Bounds()
	out := image.NewGray(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.SetGray(x, y, color.Gray{Y: binarize(g.GrayAt(x, y).Y, cutoff)})
		}
	}
	return out
}

func binarize(v, cutoff uint8) uint8 {
	if v < cutoff {
		return 0
	}
	return 255
}

// channel extracts channel c (0=R .. 3=A) of a validated bitmap.
func channel(b Bitmap, c int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for i := 0; i < b.Width*b.Height; i++ {
		g.Pix[i] = b.Pix[i*4+c]
	}
	return g
}

// Resize scales g to size x size.
func Resize(g *image.Gray, size int, interp resize.InterpolationFunction) *image.Gray {
	return toGray(resize.Resize(uint(size), uint(size), g, interp))
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
