package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Resize scales the whole image to exactly width x height using Catmull-Rom
// resampling.
func Resize(img image.Image, width, height int) *image.RGBA {
	return ResizeRegion(img, img.Bounds(), width, height)
}

// ResizeRegion scales the src rectangle of img to exactly width x height.
// The rectangle is clamped to the image bounds; an empty intersection falls
// back to the whole image.
func ResizeRegion(img image.Image, src image.Rectangle, width, height int) *image.RGBA {
	bounds := img.Bounds()
	src = src.Intersect(bounds)
	if src.Empty() {
		src = bounds
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// ResizeBilinear scales an image to the specified dimensions with bilinear
// filtering. Cheaper than Resize and used where only coarse content matters.
func ResizeBilinear(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// FitWithin downscales img so neither side exceeds maxSize, keeping the
// aspect ratio. Smaller images are returned unchanged.
func FitWithin(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Check if resizing is needed.
	if width <= maxSize && height <= maxSize {
		return img
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	return Resize(img, newWidth, newHeight)
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying only
// when necessary.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Gray converts an image to a row-major luma plane (ITU-R BT.601).
func Gray(img image.Image) (plane []float64, width, height int) {
	rgba := ToRGBA(img)
	width = rgba.Bounds().Dx()
	height = rgba.Bounds().Dy()
	plane = make([]float64, width*height)
	for y := range height {
		row := rgba.Pix[y*rgba.Stride:]
		for x := range width {
			p := row[x*4:]
			plane[y*width+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	return plane, width, height
}

// RGBBytes returns the packed R,G,B bytes of img, dropping alpha.
func RGBBytes(img image.Image) []byte {
	rgba := ToRGBA(img)
	width := rgba.Bounds().Dx()
	height := rgba.Bounds().Dy()
	out := make([]byte, 0, width*height*3)
	for y := range height {
		row := rgba.Pix[y*rgba.Stride:]
		for x := range width {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
