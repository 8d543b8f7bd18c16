// Copyright © 2024 Vortex Studio.

package imaging

import (
	"image"
	"image/draw"
	"image/png"
	"io"
)

// Frame is the decoded, already-premultiplied-alpha-normalized pixel
// buffer ImageInput hands to gpu.Device.CreateTexture, tightly packed
// RGBA8 rows with no stride padding.
type Frame struct {
	Width  int
	Height int
	Pixels []byte // len == Width*Height*4, row-major RGBA8.
}

// DecodePNG reads a PNG from r and converts it to a tightly packed RGBA8
// Frame, regardless of the source PNG's native color model. The reader is
// expected to be opened and closed by the caller.
func DecodePNG(r io.Reader) (*Frame, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	return toFrame(img), nil
}

func toFrame(img image.Image) *Frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &Frame{Width: w, Height: h, Pixels: rgba.Pix}
}
