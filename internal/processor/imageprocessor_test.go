package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePlainImage(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}

	path := filepath.Join(t.TempDir(), "receipt.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return path
}

func TestCropVerticalBand(t *testing.T) {
	path := writePlainImage(t, 60, 200)

	data, mimeType, err := CropVerticalBand(path, 0, 40)
	if err != nil {
		t.Fatalf("CropVerticalBand() error: %v", err)
	}
	if mimeType != "image/png" {
		t.Errorf("mime type = %q, want image/png", mimeType)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding cropped band: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 60 || bounds.Dy() != 80 {
		t.Errorf("cropped band is %dx%d, want 60x80 (40%% of 200px height)",
			bounds.Dx(), bounds.Dy())
	}
}

func TestCropVerticalBandClampsToImage(t *testing.T) {
	path := writePlainImage(t, 60, 100)

	data, _, err := CropVerticalBand(path, 80, 120)
	if err != nil {
		t.Fatalf("CropVerticalBand() error: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding cropped band: %v", err)
	}
	if got := decoded.Bounds().Dy(); got != 20 {
		t.Errorf("clamped band height = %d, want 20", got)
	}
}

func TestCropVerticalBandRejectsEmptyBand(t *testing.T) {
	path := writePlainImage(t, 60, 100)

	if _, _, err := CropVerticalBand(path, 50, 50); err == nil {
		t.Fatal("expected an error for a zero-height band")
	}
}
