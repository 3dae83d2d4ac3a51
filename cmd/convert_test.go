package main

import (
	"path/filepath"
	"testing"

	"github.com/cwbudde/offloadtest/internal/image"
)

func TestConvertImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeTestPNG(t, in, 3, 2, [3]byte{10, 20, 30}, 0, [3]byte{200, 100, 50})

	tests := []struct {
		name      string
		out       string
		depth     uint8
		channels  uint8
		float     bool
		wantDepth uint8
	}{
		{"16-bit tiff", "out16.tiff", 2, 4, false, 2},
		{"8-bit rgb png", "out8.png", 1, 3, false, 1},
		{"float png", "outf.png", 4, 3, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.out)
			if err := convertImage(in, out, tt.depth, tt.channels, tt.float); err != nil {
				t.Fatalf("convertImage failed: %v", err)
			}

			img, err := image.Load(out)
			if err != nil {
				t.Fatalf("failed to load output: %v", err)
			}
			if img.Width() != 2 || img.Height() != 3 {
				t.Errorf("output is %dx%d", img.Width(), img.Height())
			}
			if img.Depth() != tt.wantDepth {
				t.Errorf("Depth = %d, want %d", img.Depth(), tt.wantDepth)
			}

			// First pixel survives the round trip at 8-bit precision.
			back, err := image.Translate(img.Ref, 1, 4, false)
			if err != nil {
				t.Fatal(err)
			}
			if got := back.Pix()[:3]; got[0] != 200 || got[1] != 100 || got[2] != 50 {
				t.Errorf("first pixel = %v", got)
			}
		})
	}
}

func TestConvertImage_Errors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeTestPNG(t, in, 1, 1, [3]byte{}, -1, [3]byte{})

	if err := convertImage(in, filepath.Join(dir, "o.png"), 1, 4, true); err == nil {
		t.Error("Expected error for 8-bit float")
	}
	if err := convertImage(in, filepath.Join(dir, "o.png"), 3, 4, false); err == nil {
		t.Error("Expected error for 3-byte depth")
	}
	if err := convertImage(filepath.Join(dir, "missing.png"), filepath.Join(dir, "o.png"), 1, 4, false); err == nil {
		t.Error("Expected error for missing input")
	}
}
