package preprocess

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Tensor is a dense NCHW float32 tensor.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// ToTensor scales g from [0,255] to [0,1] and adds the batch and channel
// dimensions.
func ToTensor(g *image.Gray) Tensor {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			data = append(data, float32(g.GrayAt(x, y).Y)/255)
		}
	}
	return Tensor{Shape: [4]int64{1, 1, int64(h), int64(w)}, Data: data}
}

// Len is the number of elements implied by Shape.
func (t Tensor) Len() int {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}

// Image converts the single channel of t back to a grayscale image.
func (t Tensor) Image() *image.Gray {
	h, w := int(t.Shape[2]), int(t.Shape[3])
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range t.Data {
		if i >= len(g.Pix) {
			break
		}
		g.Pix[i] = uint8(math.Round(float64(clamp01(v)) * 255))
	}
	return g
}

// Preview upscales the tensor image to size x size without smoothing so the
// model's view of the drawing can be shown next to the canvas.
func (t Tensor) Preview(size int) *image.Gray {
	src := t.Image()
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
