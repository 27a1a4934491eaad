// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEY          string
	EXTRACTION_MODEL_NAME   string
	VERIFICATION_MODEL_NAME string

	// Gemini Pricing Configuration (per 1M tokens in USD)
	EXTRACTION_INPUT_PRICE_PER_MILLION    float64
	EXTRACTION_OUTPUT_PRICE_PER_MILLION   float64
	VERIFICATION_INPUT_PRICE_PER_MILLION  float64
	VERIFICATION_OUTPUT_PRICE_PER_MILLION float64

	// Mistral OCR Configuration (optional pre-pass)
	MISTRAL_API_KEY    string
	MISTRAL_MODEL_NAME string
	ENABLE_OCR_PREPASS bool

	// Server Configuration
	PORT            string
	UPLOAD_DIR      string
	ALLOWED_ORIGINS string

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int

	// Pipeline tuning
	CHUNK_ITEM_THRESHOLD     int     // estimated item count that triggers chunked extraction
	CHUNK_OVERLAP_PERCENT    float64 // vertical overlap between adjacent chunks
	SIMILARITY_THRESHOLD     float64 // fuzzy-match cutoff for overlap dedupe and vendor lookup
	MAX_MIDDLE_ANCHORS       int     // middle anchor items requested for position calibration
	CORRECTION_FEWSHOT_LIMIT int     // past corrections injected as few-shot prompt lines

	// Confidence tier labels used across the pipeline
	CONFIDENCE_HIGH_THRESHOLD   = "high"
	CONFIDENCE_MEDIUM_THRESHOLD = "medium"
	CONFIDENCE_LOW_THRESHOLD    = "low"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Required: Gemini API Key
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	if GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	// Optional with defaults
	EXTRACTION_MODEL_NAME = getEnv("EXTRACTION_MODEL_NAME", "gemini-2.5-flash")
	VERIFICATION_MODEL_NAME = getEnv("VERIFICATION_MODEL_NAME", "gemini-2.5-flash-lite")

	// Gemini Pricing (Flash for extraction, Flash-Lite for the verification pass)
	EXTRACTION_INPUT_PRICE_PER_MILLION = getEnvFloat("EXTRACTION_INPUT_PRICE_PER_MILLION", 0.30)
	EXTRACTION_OUTPUT_PRICE_PER_MILLION = getEnvFloat("EXTRACTION_OUTPUT_PRICE_PER_MILLION", 2.50)
	VERIFICATION_INPUT_PRICE_PER_MILLION = getEnvFloat("VERIFICATION_INPUT_PRICE_PER_MILLION", 0.10)
	VERIFICATION_OUTPUT_PRICE_PER_MILLION = getEnvFloat("VERIFICATION_OUTPUT_PRICE_PER_MILLION", 0.40)

	// Mistral OCR pre-pass (optional, pipeline works without it)
	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "mistral-ocr-latest")
	ENABLE_OCR_PREPASS = getEnvBool("ENABLE_OCR_PREPASS", false) && MISTRAL_API_KEY != ""

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	// MongoDB Configuration
	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "pantrysnap")

	// Image Processing
	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2500)

	// Pipeline tuning
	CHUNK_ITEM_THRESHOLD = getEnvInt("CHUNK_ITEM_THRESHOLD", 30)
	CHUNK_OVERLAP_PERCENT = getEnvFloat("CHUNK_OVERLAP_PERCENT", 12.0)
	SIMILARITY_THRESHOLD = getEnvFloat("SIMILARITY_THRESHOLD", 0.75)
	MAX_MIDDLE_ANCHORS = getEnvInt("MAX_MIDDLE_ANCHORS", 3)
	CORRECTION_FEWSHOT_LIMIT = getEnvInt("CORRECTION_FEWSHOT_LIMIT", 5)

	log.Println("Configuration loaded successfully")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
