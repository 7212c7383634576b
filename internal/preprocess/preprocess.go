// Package preprocess turns an arbitrary photo into the fixed-shape input
// tensor the breed classifier expects.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	"github.com/nfnt/resize"
)

const (
	// InputSize is the side of the square the classifier consumes.
	InputSize = 224
	// Channels is the number of colour channels per pixel (R, G, B).
	Channels = 3
)

// ErrEmptyImage is returned for images with zero width or height.
var ErrEmptyImage = errors.New("image has no pixels")

// Tensor is a flattened 1×224×224×3 float32 buffer in NHWC order.
type Tensor []float32

// Shape reports the tensor dimensions.
func (Tensor) Shape() [4]int64 {
	return [4]int64{1, InputSize, InputSize, Channels}
}

// Len is the number of values a well formed tensor holds.
func Len() int {
	return InputSize * InputSize * Channels
}

// Decode reads a JPEG, PNG or GIF image and returns it with its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// CenterCropRect returns the largest square centred inside bounds.
func CenterCropRect(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	side := min(w, h)
	x0 := bounds.Min.X + (w-side)/2
	y0 := bounds.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// CenterCrop copies the centred square of img into a new image anchored at
// the origin.
func CenterCrop(img image.Image) image.Image {
	crop := CenterCropRect(img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)
	return dst
}

// Resize scales img to size×size with nearest-neighbour sampling.
func Resize(img image.Image, size int) image.Image {
	return resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)
}

// Preprocess crops, scales and normalises img. Every value is channel/255 and
// pixels are emitted row-major as R, G, B.
func Preprocess(img image.Image) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	scaled := Resize(CenterCrop(img), InputSize)
	bounds := scaled.Bounds()

	tensor := make(Tensor, 0, Len())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(scaled.At(x, y)).(color.NRGBA)
			tensor = append(tensor,
				float32(c.R)/255.0,
				float32(c.G)/255.0,
				float32(c.B)/255.0,
			)
		}
	}

	if len(tensor) != Len() {
		return nil, fmt.Errorf("preprocess produced %d values, expected %d", len(tensor), Len())
	}
	return tensor, nil
}
