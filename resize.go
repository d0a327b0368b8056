package svt

import (
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Filter selects the resampling kernel, ordered from fastest to sharpest.
type Filter int

const (
	FilterNearest Filter = iota
	FilterTriangle
	FilterCatmullRom
	FilterGaussian
	FilterLanczos
)

// ParseFilter maps a config name to a Filter. Unknown names fall back to
// triangle.
func ParseFilter(name string) Filter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return FilterNearest
	case "catmullrom", "catmull-rom":
		return FilterCatmullRom
	case "gaussian":
		return FilterGaussian
	case "lanczos", "lanczos3":
		return FilterLanczos
	default:
		return FilterTriangle
	}
}

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterCatmullRom:
		return "catmullrom"
	case FilterGaussian:
		return "gaussian"
	case FilterLanczos:
		return "lanczos"
	default:
		return "triangle"
	}
}

func (f Filter) resample() imaging.ResampleFilter {
	switch f {
	case FilterNearest:
		return imaging.NearestNeighbor
	case FilterCatmullRom:
		return imaging.CatmullRom
	case FilterGaussian:
		return imaging.Gaussian
	case FilterLanczos:
		return imaging.Lanczos
	default:
		return imaging.Linear
	}
}

func (f Filter) interpolation() resize.InterpolationFunction {
	switch f {
	case FilterNearest:
		return resize.NearestNeighbor
	case FilterCatmullRom:
		return resize.Bicubic
	case FilterGaussian:
		return resize.MitchellNetravali
	case FilterLanczos:
		return resize.Lanczos3
	default:
		return resize.Bilinear
	}
}

// ResizeImage scales img to exactly size. An image that already has that
// size is returned as is.
func ResizeImage(img image.Image, size image.Point, f Filter) image.Image {
	if img.Bounds().Size() == size {
		return img
	}
	return imaging.Resize(img, size.X, size.Y, f.resample())
}

// Thumbnail shrinks img to fit inside box while keeping its aspect ratio.
// It never enlarges.
func Thumbnail(img image.Image, box image.Point, f Filter) image.Image {
	src := img.Bounds().Size()
	if src.X <= 0 || src.Y <= 0 || box.X <= 0 || box.Y <= 0 {
		return img
	}

	scale := math.Min(math.Min(float64(box.X)/float64(src.X), float64(box.Y)/float64(src.Y)), 1)
	size := scalePoint(src, scale)
	if size == src {
		return img
	}
	return resize.Resize(uint(size.X), uint(size.Y), img, f.interpolation())
}
