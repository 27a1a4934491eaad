// handlers.go - HTTP handlers for receipt scanning and correction submission

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/pipeline"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/storage"
)

const maxUploadBytes = 15 << 20 // 15 MB

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Handlers carries the pipeline dependency for the HTTP surface
type Handlers struct {
	Orchestrator *pipeline.Orchestrator
}

// NewHandlers builds the handler set around one orchestrator
func NewHandlers(orch *pipeline.Orchestrator) *Handlers {
	return &Handlers{Orchestrator: orch}
}

// ScanReceiptHandler handles POST /api/v1/scan-receipt.
//
// Accepts either a multipart "image" file or an "image_url" form field,
// plus optional store_hint, estimated_items and household_id fields.
// Returns the ScanResult contract.
func (h *Handlers) ScanReceiptHandler(c *gin.Context) {
	householdID := c.PostForm("household_id")
	storeHint := strings.TrimSpace(c.PostForm("store_hint"))

	estimatedItems := 0
	if v := c.PostForm("estimated_items"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			estimatedItems = parsed
		}
	}

	reqCtx := common.NewRequestContext(householdID)

	imagePath, cleanup, err := h.receiveImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      err.Error(),
			"request_id": reqCtx.RequestID,
		})
		return
	}
	defer cleanup()

	// Long receipts with chunking and verification can take a few minutes
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	result := h.Orchestrator.Scan(ctx, pipeline.ScanRequest{
		ImagePath:      imagePath,
		StoreHint:      storeHint,
		EstimatedItems: estimatedItems,
		HouseholdID:    householdID,
	}, reqCtx)

	summary := reqCtx.GetSummary()

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"success":    result.Success,
		"receipt":    result.Receipt,
		"error":      result.Error,
		"confidence": result.Confidence,
		"tokens_used": result.TokensUsed,
		"cost_usd":    result.CostUSD,
		"metadata": gin.H{
			"request_id":   reqCtx.RequestID,
			"processed_at": time.Now().Format(time.RFC3339),
			"duration_sec": summary["total_duration_sec"],
		},
	})
}

// receiveImage materializes the request's image as a temp file under
// UPLOAD_DIR. Returns the path and a cleanup func that removes it.
func (h *Handlers) receiveImage(c *gin.Context) (string, func(), error) {
	noop := func() {}

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxUploadBytes {
			return "", noop, fmt.Errorf("image exceeds the %dMB upload limit", maxUploadBytes>>20)
		}

		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedImageExts[ext] {
			return "", noop, fmt.Errorf("unsupported image type %q (use jpg, png or webp)", ext)
		}

		path := filepath.Join(configs.UPLOAD_DIR, uuid.New().String()+ext)
		if err := c.SaveUploadedFile(file, path); err != nil {
			return "", noop, fmt.Errorf("failed to store uploaded image: %w", err)
		}
		return path, removeFile(path), nil
	}

	imageURL := strings.TrimSpace(c.PostForm("image_url"))
	if imageURL == "" {
		return "", noop, fmt.Errorf("provide a multipart \"image\" file or an \"image_url\" field")
	}

	path := filepath.Join(configs.UPLOAD_DIR, uuid.New().String()+".jpg")
	if err := downloadImage(imageURL, path); err != nil {
		return "", noop, err
	}
	return path, removeFile(path), nil
}

func removeFile(path string) func() {
	return func() {
		os.Remove(path)
	}
}

// downloadImage fetches a remote receipt photo to a local file
func downloadImage(imageURL, filename string) error {
	resp, err := http.Get(imageURL)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err = io.Copy(out, io.LimitReader(resp.Body, maxUploadBytes)); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	return nil
}

// CorrectionsRequest is the body of POST /api/v1/corrections: the item
// list as extracted plus the list after the user's review
type CorrectionsRequest struct {
	SessionID   string                `json:"session_id" binding:"required"`
	HouseholdID string                `json:"household_id"`
	StoreName   string                `json:"store_name"`
	Extracted   []receipt.ReceiptItem `json:"extracted_items" binding:"required"`
	Reviewed    []receipt.ReceiptItem `json:"reviewed_items"`
}

// CorrectionsHandler handles POST /api/v1/corrections. Diffs the two item
// lists and persists one CorrectionRecord per changed or removed item.
func (h *Handlers) CorrectionsHandler(c *gin.Context) {
	var req CorrectionsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body: " + err.Error(),
		})
		return
	}

	records := storage.BuildCorrectionRecords(
		req.SessionID, req.HouseholdID, req.StoreName,
		req.Extracted, req.Reviewed,
	)

	if err := storage.SaveCorrections(records); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to save corrections: " + err.Error(),
		})
		return
	}

	corrected := 0
	removed := 0
	for _, r := range records {
		if r.WasRemoved {
			removed++
		} else if r.WasCorrected {
			corrected++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"recorded":  len(records),
		"corrected": corrected,
		"removed":   removed,
	})
}

// SessionHandler handles GET /api/v1/sessions/:id
func (h *Handlers) SessionHandler(c *gin.Context) {
	session, err := storage.GetScanSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": session,
	})
}
