package face

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

// DefaultMaxPixels bounds the decoded raster size (width*height) when no
// other limit is configured.
const DefaultMaxPixels = 40_000_000

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes. The header is read first
// and images with more than maxPixels pixels are rejected before any raster is
// allocated. A maxPixels of zero or less selects DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if len(data) == 0 {
		return nil, faceerr.New(faceerr.KindImageDecode, "decode", "empty image")
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, faceerr.Wrap(faceerr.KindImageDecode, "decode", "unreadable image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, faceerr.New(faceerr.KindImageDecode, "decode", "image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, faceerr.New(faceerr.KindImageDecode, "decode",
			fmt.Sprintf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, maxPixels))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, faceerr.Wrap(faceerr.KindImageDecode, "decode", "unreadable image", err)
	}
	if img.Bounds().Empty() {
		return nil, faceerr.New(faceerr.KindImageDecode, "decode", "image has no pixels")
	}
	return img, nil
}

// toGray converts img to 8-bit intensity using the ITU-R BT.601 luma formula.
// The result's bounds start at the origin.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			gray.Pix[y*gray.Stride+x] = uint8(luma + 0.5)
		}
	}
	return gray
}

// resize scales img into a width x height RGBA raster with bilinear interpolation.
func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// subImager is implemented by every standard raster type.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the part of img inside r, copying when img cannot share pixels.
func crop(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
