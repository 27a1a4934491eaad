// factory.go - Provider construction from configuration

package ai

import (
	"log"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
)

// NewVisionProviders builds the extraction and verification vision
// providers. Both run on Gemini; verification uses the cheaper model.
func NewVisionProviders() (extraction VisionProvider, verification VisionProvider) {
	return NewExtractionProvider(), NewVerificationProvider()
}

// NewOCRProvider builds the optional OCR pre-pass provider. Returns nil
// when the pre-pass is disabled or unconfigured; the pipeline treats a
// nil provider as "skip the pre-pass".
func NewOCRProvider() OCRProvider {
	if !configs.ENABLE_OCR_PREPASS {
		log.Printf("OCR pre-pass disabled")
		return nil
	}

	log.Printf("OCR pre-pass enabled (Mistral, model: %s)", configs.MISTRAL_MODEL_NAME)
	return NewMistralProvider(configs.MISTRAL_API_KEY, configs.MISTRAL_MODEL_NAME)
}
