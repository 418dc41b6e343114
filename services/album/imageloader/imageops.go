// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package imageloader

import (
	"image"
	"image/color"
)

// LaplacianLongSide is the target long side for sharpness analysis. Shrinking
// first makes the variance scale comparable across source resolutions.
const LaplacianLongSide = 300

// ToGray converts any decoded image to 8-bit grayscale.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return out
}

// ResizeGrayArea shrinks img so its longer side equals longSide, averaging
// each destination pixel over its source region (box/area interpolation).
// Images already at or below the target are returned unchanged.
func ResizeGrayArea(img *image.Gray, longSide int) *image.Gray {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= longSide {
		return img
	}

	scale := float64(longSide) / float64(long)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := image.NewGray(image.Rect(0, 0, nw, nh))
	for dy := 0; dy < nh; dy++ {
		sy0 := dy * h / nh
		sy1 := (dy + 1) * h / nh
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for dx := 0; dx < nw; dx++ {
			sx0 := dx * w / nw
			sx1 := (dx + 1) * w / nw
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			var sum, count int
			for sy := sy0; sy < sy1; sy++ {
				row := img.Pix[sy*img.Stride:]
				for sx := sx0; sx < sx1; sx++ {
					sum += int(row[sx])
					count++
				}
			}
			out.Pix[dy*out.Stride+dx] = uint8((sum + count/2) / count)
		}
	}
	return out
}

// LaplacianVariance measures sharpness: the variance of the 3x3 Laplacian
// response over the whole frame. Borders reflect (edge pixels mirror their
// inner neighbor), so every pixel contributes.
func LaplacianVariance(img *image.Gray) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}

	reflect := func(i, n int) int {
		if n == 1 {
			return 0
		}
		if i < 0 {
			return -i
		}
		if i >= n {
			return 2*n - i - 2
		}
		return i
	}
	at := func(x, y int) float64 {
		return float64(img.Pix[reflect(y, h)*img.Stride+reflect(x, w)])
	}

	n := float64(w * h)
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x, y-1) + at(x, y+1) + at(x-1, y) + at(x+1, y) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}
