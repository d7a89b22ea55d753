package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
)

// quantize reduces img to the six panel colors. Error diffusion runs
// top-to-bottom, each row left-to-right (serpentine off) — the device decoder
// assumes that ordering.
func quantize(img *image.NRGBA, algorithm string) (*image.NRGBA, error) {
	switch algorithm {
	case DitherFloydSteinberg, DitherAtkinson:
		d := dither.NewDitherer(Palette)
		if algorithm == DitherAtkinson {
			d.Matrix = dither.Atkinson
		} else {
			d.Matrix = dither.FloydSteinberg
		}
		d.Serpentine = false
		out := d.DitherCopy(img)
		if out == nil {
			return nil, fmt.Errorf("%w: ditherer rejected image", ErrDecode)
		}
		return imaging.Clone(out), nil
	case DitherNone:
		return nearestMap(img), nil
	default:
		return nil, fmt.Errorf("%w: dither algorithm %q", ErrInvalidParam, algorithm)
	}
}

// nearestMap maps each pixel to its closest palette color with no diffusion.
func nearestMap(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			si := img.PixOffset(x+b.Min.X, y+b.Min.Y)
			idx := nearestPaletteIndex(img.Pix[si], img.Pix[si+1], img.Pix[si+2])
			di := out.PixOffset(x, y)
			c := paletteRGB[idx]
			out.Pix[di] = c[0]
			out.Pix[di+1] = c[1]
			out.Pix[di+2] = c[2]
			out.Pix[di+3] = 255
		}
	}
	return out
}

// packRGB serializes a quantized image to the device wire form: row-major,
// top-left origin, three bytes per pixel.
func packRGB(img *image.NRGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x+b.Min.X, y+b.Min.Y)
			out = append(out, img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	return out
}

// UnpackRGB rebuilds an image from a device buffer, for thumbnail
// regeneration and tests.
func UnpackRGB(pixels []byte, w, h int) (*image.NRGBA, error) {
	if len(pixels) != w*h*3 {
		return nil, fmt.Errorf("%w: buffer length %d for %dx%d", ErrInvalidParam, len(pixels), w, h)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for p := 0; p < w*h; p++ {
		img.Pix[p*4] = pixels[p*3]
		img.Pix[p*4+1] = pixels[p*3+1]
		img.Pix[p*4+2] = pixels[p*3+2]
		img.Pix[p*4+3] = 255
	}
	return img, nil
}

// encodeThumbnail shrinks the quantized frame to a browser-sized PNG,
// 300 wide portrait or 400 wide landscape.
func encodeThumbnail(img *image.NRGBA) ([]byte, error) {
	thumb := imaging.Fit(img, 400, 400, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("thumbnail encode: %w", err)
	}
	return buf.Bytes(), nil
}
