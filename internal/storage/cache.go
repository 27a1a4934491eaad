// cache.go - In-memory cache for per-store correction history

package storage

import (
	"sync"
	"time"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// CorrectionCache holds the few-shot correction set for one store
type CorrectionCache struct {
	StoreName   string
	Corrections []receipt.CorrectionRecord
	LoadedAt    time.Time
}

// Global cache map: storeName -> cache ("" key covers the no-store fallback)
var correctionCacheMap = make(map[string]*CorrectionCache)
var cacheMutex sync.RWMutex

const CACHE_TTL = 5 * time.Minute

// GetOrLoadCorrections retrieves the store's recent corrections from cache
// or loads them from MongoDB. Every scan of the same store within the TTL
// reuses one query.
func GetOrLoadCorrections(storeName string) ([]receipt.CorrectionRecord, error) {
	cacheMutex.RLock()
	cache, exists := correctionCacheMap[storeName]
	cacheMutex.RUnlock()

	if exists && time.Since(cache.LoadedAt) < CACHE_TTL {
		return cache.Corrections, nil
	}

	cacheMutex.Lock()
	defer cacheMutex.Unlock()

	// Double-check after acquiring write lock
	cache, exists = correctionCacheMap[storeName]
	if exists && time.Since(cache.LoadedAt) < CACHE_TTL {
		return cache.Corrections, nil
	}

	corrections, err := GetRecentCorrections(storeName, configs.CORRECTION_FEWSHOT_LIMIT)
	if err != nil {
		return nil, err
	}

	correctionCacheMap[storeName] = &CorrectionCache{
		StoreName:   storeName,
		Corrections: corrections,
		LoadedAt:    time.Now(),
	}

	return corrections, nil
}

// InvalidateCorrectionCache drops the cached set for one store so new
// corrections show up on the next scan
func InvalidateCorrectionCache(storeName string) {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	delete(correctionCacheMap, storeName)
	// The no-store fallback set may also contain the new records
	delete(correctionCacheMap, "")
}

// ClearAllCache removes all cached correction sets
func ClearAllCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	correctionCacheMap = make(map[string]*CorrectionCache)
}
