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
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func flatGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestFetchGray_LocalOrderAndDecode(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "dark.png", flatGray(8, 4, 10))
	writePNG(t, dir, "light.png", flatGray(4, 8, 200))

	loader := NewLoader(&LocalFetcher{Dir: dir})
	imgs, err := loader.FetchGray(context.Background(), []string{"dark.png", "light.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(imgs) != 2 {
		t.Fatalf("images = %d, want 2", len(imgs))
	}
	if imgs[0].Pix[0] != 10 || imgs[1].Pix[0] != 200 {
		t.Errorf("order not preserved: %d, %d", imgs[0].Pix[0], imgs[1].Pix[0])
	}
}

func TestFetchGray_MissingFileFailsBatch(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "ok.png", flatGray(4, 4, 128))

	loader := NewLoader(&LocalFetcher{Dir: dir})
	if _, err := loader.FetchGray(context.Background(), []string{"ok.png", "absent.png"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResizeGrayArea(t *testing.T) {
	img := flatGray(600, 400, 77)
	out := ResizeGrayArea(img, LaplacianLongSide)
	if out.Bounds().Dx() != 300 || out.Bounds().Dy() != 200 {
		t.Fatalf("size = %dx%d, want 300x200", out.Bounds().Dx(), out.Bounds().Dy())
	}
	for _, p := range out.Pix {
		if p != 77 {
			t.Fatalf("flat image changed value to %d", p)
		}
	}

	small := flatGray(100, 50, 3)
	if got := ResizeGrayArea(small, LaplacianLongSide); got != small {
		t.Error("image below target should be returned unchanged")
	}
}

func TestLaplacianVariance_FlatVsCheckerboard(t *testing.T) {
	flat := flatGray(50, 50, 128)
	if v := LaplacianVariance(flat); v != 0 {
		t.Errorf("flat variance = %v, want 0", v)
	}

	checker := image.NewGray(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if (x+y)%2 == 0 {
				checker.Pix[y*checker.Stride+x] = 255
			}
		}
	}
	if v := LaplacianVariance(checker); v <= 1000 {
		t.Errorf("checkerboard variance = %v, want large", v)
	}
}
