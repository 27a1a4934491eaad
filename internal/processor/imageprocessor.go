// imageprocessor.go - Image preprocessing for better extraction accuracy

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pantrysnap/receipt_ocr_gemini/configs"
)

// PreprocessMode defines the level of image preprocessing
type PreprocessMode int

const (
	// FastMode: light processing for chunk sub-images (speed priority)
	FastMode PreprocessMode = iota
	// BalancedMode: standard processing for general use
	BalancedMode
	// HighQualityMode: adaptive processing for the single-pass extraction (accuracy priority)
	HighQualityMode
)

// PreprocessImage applies balanced enhancements and returns encoded bytes
// plus MIME type
func PreprocessImage(imagePath string) ([]byte, string, error) {
	return preprocessImageWithMode(imagePath, BalancedMode)
}

// PreprocessImageFast applies light processing for chunk sub-extractions
func PreprocessImageFast(imagePath string) ([]byte, string, error) {
	return preprocessImageWithMode(imagePath, FastMode)
}

// preprocessImageWithMode processes image with specified quality mode
func preprocessImageWithMode(imagePath string, mode PreprocessMode) ([]byte, string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}

	img = resizeToMax(img, maxDimensionForMode(mode))

	switch mode {
	case FastMode:
		img = imaging.Sharpen(img, 1.5)
		img = imaging.AdjustContrast(img, 20)
		img = imaging.Grayscale(img)
	case BalancedMode:
		img = imaging.Sharpen(img, 2.5)
		img = imaging.AdjustContrast(img, 40)
		img = imaging.AdjustBrightness(img, 15)
		img = imaging.Grayscale(img)
		img = imaging.AdjustContrast(img, 30)
		img = imaging.AdjustGamma(img, 1.1)
	case HighQualityMode:
		img = imaging.Sharpen(img, 3.5)
		img = imaging.AdjustContrast(img, 50)
		img = imaging.AdjustBrightness(img, 20)
		img = imaging.Grayscale(img)
		img = imaging.AdjustContrast(img, 45)
		img = imaging.AdjustGamma(img, 1.2)
		// Extra sharpening pass for small receipt text
		img = imaging.Sharpen(img, 1.0)
	}

	return encodeImage(img, imagePath, qualityForMode(mode))
}

// PreprocessImageHighQuality applies adaptive processing tuned to the
// measured image quality, for the first-pass extraction call
func PreprocessImageHighQuality(imagePath string) ([]byte, string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}

	qualityScore := analyzeImageQuality(img)

	img = resizeToMax(img, configs.MAX_IMAGE_DIMENSION)

	if qualityScore < 50 {
		img = applyAggressiveEnhancement(img)
	} else if qualityScore < 75 {
		img = applyStandardEnhancement(img)
	} else {
		img = applyLightEnhancement(img)
	}

	img = imaging.Sharpen(img, 1.0)

	return encodeImage(img, imagePath, 98)
}

// CropVerticalBand cuts the chunk's vertical band out of the receipt
// image and lightly preprocesses it for a chunk-scoped extraction call.
// yStart/yEnd are percentages of image height.
func CropVerticalBand(imagePath string, yStartPercent, yEndPercent float64) ([]byte, string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}

	bounds := img.Bounds()
	height := bounds.Dy()

	yStart := bounds.Min.Y + int(float64(height)*yStartPercent/100)
	yEnd := bounds.Min.Y + int(float64(height)*yEndPercent/100)
	if yStart < bounds.Min.Y {
		yStart = bounds.Min.Y
	}
	if yEnd > bounds.Max.Y {
		yEnd = bounds.Max.Y
	}
	if yEnd <= yStart {
		return nil, "", fmt.Errorf("empty crop band: %.1f%%-%.1f%%", yStartPercent, yEndPercent)
	}

	cropped := imaging.Crop(img, image.Rect(bounds.Min.X, yStart, bounds.Max.X, yEnd))

	resized := resizeToMax(cropped, maxDimensionForMode(FastMode))
	result := imaging.Sharpen(resized, 1.5)
	result = imaging.AdjustContrast(result, 20)
	result = imaging.Grayscale(result)

	return encodeImage(result, imagePath, 90)
}

func maxDimensionForMode(mode PreprocessMode) int {
	switch mode {
	case FastMode:
		return 1600
	case HighQualityMode:
		return configs.MAX_IMAGE_DIMENSION
	default:
		return 2000
	}
}

func qualityForMode(mode PreprocessMode) int {
	if mode == HighQualityMode {
		return 98
	}
	return 90
}

func resizeToMax(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		maxDimension = 2000
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

func encodeImage(img image.Image, imagePath string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	ext := strings.ToLower(filepath.Ext(imagePath))

	var err error
	mimeType := "image/jpeg"
	switch ext {
	case ".png":
		err = png.Encode(&buf, img)
		mimeType = "image/png"
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}

	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}

	return buf.Bytes(), mimeType, nil
}

// analyzeImageQuality samples brightness and contrast and returns a
// quality score (0-100)
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	var minBrightness float64 = 255
	var maxBrightness float64 = 0
	pixelCount := 0

	// Sample every 10th pixel for performance
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			if brightness < minBrightness {
				minBrightness = brightness
			}
			if brightness > maxBrightness {
				maxBrightness = brightness
			}
			pixelCount++
		}
	}

	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	// Ideal: avgBrightness = 128, contrast = 200+
	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	// Weight: 40% brightness, 60% contrast
	return (brightnessScore * 0.4) + (contrastScore * 0.6)
}

// applyLightEnhancement for good quality images
func applyLightEnhancement(img image.Image) image.Image {
	result := img
	result = imaging.Sharpen(result, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	result = imaging.AdjustGamma(result, 1.05)
	return result
}

// applyStandardEnhancement for medium quality images
func applyStandardEnhancement(img image.Image) image.Image {
	result := img
	result = imaging.Sharpen(result, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	result = imaging.AdjustGamma(result, 1.15)
	return result
}

// applyAggressiveEnhancement for poor quality images
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := img
	result = imaging.Sharpen(result, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	// Blur then re-sharpen to knock out sensor noise
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	result = imaging.AdjustContrast(result, 20)
	return result
}
