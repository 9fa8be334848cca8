package preprocess

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

var (
	// ErrEmptyBitmap is returned for a zero-area bitmap. Callers are expected
	// to skip inference instead of passing one in.
	ErrEmptyBitmap = errors.New("empty bitmap")
	// ErrMalformedBitmap is returned when the pixel buffer does not match
	// the declared dimensions.
	ErrMalformedBitmap = errors.New("malformed bitmap")
)

// MaxSide bounds either dimension of a Bitmap. Larger captures are rejected
// before any buffer is sized from them.
const MaxSide = 8192

// Bitmap is a canvas capture: Height rows of Width RGBA pixels, 4 bytes per
// pixel, not premultiplied. It is the layout of a browser ImageData buffer.
type Bitmap struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBitmap returns a blank (all white, opaque) bitmap.
func NewBitmap(width, height int) Bitmap {
	pix := make([]uint8, width*height*4)
	for i := range pix {
		pix[i] = 255
	}
	return Bitmap{Width: width, Height: height, Pix: pix}
}

// BitmapFromImage flattens img over a white background.
func BitmapFromImage(img image.Image) Bitmap {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)

	return Bitmap{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

func (b Bitmap) Validate() error {
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrMalformedBitmap, b.Width, b.Height)
	}
	if b.Width == 0 || b.Height == 0 {
		if len(b.Pix) != 0 {
			return fmt.Errorf("%w: %d bytes for a %dx%d bitmap", ErrMalformedBitmap, len(b.Pix), b.Width, b.Height)
		}
		return ErrEmptyBitmap
	}
	if b.Width > MaxSide || b.Height > MaxSide {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrMalformedBitmap, b.Width, b.Height, MaxSide)
	}
	if want := b.Width * b.Height * 4; len(b.Pix) != want {
		return fmt.Errorf("%w: expected %d bytes for %dx%d RGBA, got %d",
			ErrMalformedBitmap, want, b.Width, b.Height, len(b.Pix))
	}
	return nil
}

// IsEmpty reports whether the bitmap carries no pixels at all.
func (b Bitmap) IsEmpty() bool {
	return b.Width == 0 && b.Height == 0 && len(b.Pix) == 0
}

// Set paints one pixel. Out of range coordinates are ignored.
func (b Bitmap) Set(x, y int, r, g, bl, a uint8) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	i := (y*b.Width + x) * 4
	b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = r, g, bl, a
}

// FillRect paints the rectangle [x0,x1)×[y0,y1) with one color.
func (b Bitmap) FillRect(x0, y0, x1, y1 int, r, g, bl, a uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			b.Set(x, y, r, g, bl, a)
		}
	}
}
