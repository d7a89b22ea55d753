package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/webp"
)

// Base panel dimensions, portrait orientation.
const (
	BaseWidth  = 1200
	BaseHeight = 1600
)

var (
	ErrDecode       = errors.New("unrecognized image format")
	ErrInvalidParam = errors.New("invalid pipeline parameter")
	ErrDegenerate   = errors.New("degenerate crop region")
)

// Dither algorithm names, closed set.
const (
	DitherFloydSteinberg = "floyd-steinberg"
	DitherAtkinson       = "atkinson"
	DitherNone           = "none"
)

// Params controls one pipeline run. Zero value is not valid; use
// DefaultParams as the starting point.
type Params struct {
	Rotation           int     // 0, 90, 180, 270
	CropX              float64 // percent anchor, 0..100
	CropY              float64
	ZoomLevel          float64 // >= 1.0
	DitherAlgorithm    string
	EnhanceContrast    bool
	Sharpen            bool
	AutoCropWhitespace bool
}

func DefaultParams() Params {
	return Params{
		CropX:           50,
		CropY:           50,
		ZoomLevel:       1.0,
		DitherAlgorithm: DitherFloydSteinberg,
	}
}

// Result is a finished device buffer plus its browser-facing thumbnail.
type Result struct {
	Pixels       []byte // W*H*3, every triple a palette color
	Width        int
	Height       int
	ThumbnailPNG []byte
}

func (p Params) validate() error {
	switch p.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: rotation %d", ErrInvalidParam, p.Rotation)
	}
	if p.ZoomLevel < 1.0 {
		return fmt.Errorf("%w: zoomLevel %.2f", ErrInvalidParam, p.ZoomLevel)
	}
	if p.CropX < 0 || p.CropX > 100 || p.CropY < 0 || p.CropY > 100 {
		return fmt.Errorf("%w: crop anchor (%.1f, %.1f)", ErrInvalidParam, p.CropX, p.CropY)
	}
	switch p.DitherAlgorithm {
	case DitherFloydSteinberg, DitherAtkinson, DitherNone:
	default:
		return fmt.Errorf("%w: dither algorithm %q", ErrInvalidParam, p.DitherAlgorithm)
	}
	return nil
}

// TargetDims returns the device buffer dimensions for a rotation.
func TargetDims(rotation int) (int, int) {
	if rotation == 90 || rotation == 270 {
		return BaseHeight, BaseWidth
	}
	return BaseWidth, BaseHeight
}

// Processor runs source images through decode, geometry, tone and
// quantization. Stateless except for the logger; safe for concurrent use.
type Processor struct {
	log *slog.Logger
}

func NewProcessor(log *slog.Logger) *Processor {
	return &Processor{log: log}
}

// Process converts src into the device's raw buffer. Output is
// deterministic: identical src and params yield byte-identical results.
func (pr *Processor) Process(src []byte, params Params) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	decoded, err := decode(src)
	if err != nil {
		return nil, err
	}

	// Composite any alpha over white; the panel has no transparency.
	img := flattenOnWhite(decoded)

	if params.AutoCropWhitespace {
		img = trimWhitespace(img)
	}

	switch params.Rotation {
	case 90:
		img = imaging.Rotate270(img) // clockwise 90
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img) // clockwise 270
	}

	targetW, targetH := TargetDims(params.Rotation)

	cropped, err := zoomCrop(img, targetW, targetH, params.CropX, params.CropY, params.ZoomLevel)
	if err != nil {
		return nil, err
	}

	fitted := imaging.Resize(cropped, targetW, targetH, imaging.Lanczos)

	if params.EnhanceContrast {
		fitted = enhanceContrast(fitted)
	}
	if params.Sharpen {
		fitted = imaging.Sharpen(fitted, 0.8)
	}

	quantized, err := quantize(fitted, params.DitherAlgorithm)
	if err != nil {
		return nil, err
	}

	thumb, err := encodeThumbnail(quantized)
	if err != nil {
		return nil, err
	}

	return &Result{
		Pixels:       packRGB(quantized),
		Width:        targetW,
		Height:       targetH,
		ThumbnailPNG: thumb,
	}, nil
}

// decode sniffs SVG first (image.Decode has no SVG support), then falls back
// to the registered raster formats: PNG, JPEG, GIF, WEBP.
func decode(src []byte) (image.Image, error) {
	if looksLikeSVG(src) {
		return rasterizeSVG(src)
	}
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func looksLikeSVG(src []byte) bool {
	head := src
	if len(head) > 512 {
		head = head[:512]
	}
	s := strings.TrimSpace(string(head))
	return strings.HasPrefix(s, "<svg") || (strings.HasPrefix(s, "<?xml") && strings.Contains(s, "<svg"))
}

func rasterizeSVG(src []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: svg: %v", ErrDecode, err)
	}
	w := int(icon.ViewBox.W)
	h := int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		// No usable viewBox; rasterize at panel size.
		w, h = BaseWidth, BaseHeight
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return rgba, nil
}

func flattenOnWhite(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// trimWhitespace removes near-white margins. A row or column survives when
// any pixel falls below the luminance threshold.
func trimWhitespace(img *image.NRGBA) *image.NRGBA {
	const threshold = 245.0
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rowHasInk := func(y int) bool {
		for x := 0; x < w; x++ {
			if luma(img, x, y) < threshold {
				return true
			}
		}
		return false
	}
	colHasInk := func(x int) bool {
		for y := 0; y < h; y++ {
			if luma(img, x, y) < threshold {
				return true
			}
		}
		return false
	}

	top, bottom, left, right := 0, h-1, 0, w-1
	for top < bottom && !rowHasInk(top) {
		top++
	}
	for bottom > top && !rowHasInk(bottom) {
		bottom--
	}
	for left < right && !colHasInk(left) {
		left++
	}
	for right > left && !colHasInk(right) {
		right--
	}

	if right-left < 8 || bottom-top < 8 {
		return img // all-white or nearly so; trimming would destroy it
	}
	return imaging.Crop(img, image.Rect(left, top, right+1, bottom+1))
}

func luma(img *image.NRGBA, x, y int) float64 {
	i := img.PixOffset(x+img.Rect.Min.X, y+img.Rect.Min.Y)
	r := float64(img.Pix[i])
	g := float64(img.Pix[i+1])
	b := float64(img.Pix[i+2])
	return 0.299*r + 0.587*g + 0.114*b
}

// zoomCrop picks a crop window with the target aspect ratio, shrunk by
// zoomLevel, positioned so the (cropX%, cropY%) anchor of the source lands at
// the window center, clamped inside the source.
func zoomCrop(img image.Image, targetW, targetH int, cropX, cropY, zoom float64) (*image.NRGBA, error) {
	b := img.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if sw < 1 || sh < 1 {
		return nil, ErrDegenerate
	}

	targetAspect := float64(targetW) / float64(targetH)
	srcAspect := sw / sh

	var baseW, baseH float64
	if srcAspect > targetAspect {
		baseH = sh
		baseW = sh * targetAspect
	} else {
		baseW = sw
		baseH = sw / targetAspect
	}

	cropW := baseW / zoom
	cropH := baseH / zoom
	if cropW < 1 || cropH < 1 {
		return nil, ErrDegenerate
	}

	centerX := sw * cropX / 100
	centerY := sh * cropY / 100

	x0 := clampF(centerX-cropW/2, 0, sw-cropW)
	y0 := clampF(centerY-cropH/2, 0, sh-cropH)

	rect := image.Rect(
		b.Min.X+int(x0+0.5),
		b.Min.Y+int(y0+0.5),
		b.Min.X+int(x0+cropW+0.5),
		b.Min.Y+int(y0+cropH+0.5),
	)
	if rect.Dx() < 1 || rect.Dy() < 1 {
		return nil, ErrDegenerate
	}
	return imaging.Crop(img, rect), nil
}

func clampF(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// enhanceContrast pushes the luminance midpoint toward mid-gray with a gamma
// curve, then applies a mild linear stretch. The panel's six colors flatten
// subtle gradients, so source contrast matters more than on an LCD.
func enhanceContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sum += luma(img, x, y)
			n++
		}
	}
	if n == 0 {
		return img
	}
	mid := sum / float64(n) / 255
	if mid <= 0.02 || mid >= 0.98 {
		return img // black or white field; leave it alone
	}

	// gamma such that mid maps to 0.5
	gamma := math.Log(0.5) / math.Log(mid)
	out := imaging.AdjustGamma(img, 1/gamma)
	return imaging.AdjustContrast(out, 10)
}
