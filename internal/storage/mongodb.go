package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

const (
	scanSessionsCollection = "scan_sessions"
	correctionsCollection  = "corrections"
)

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("Connected to MongoDB")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// ScanSession is one persisted scan run. Saved best-effort after the
// pipeline finishes; a failed save never fails the scan.
type ScanSession struct {
	SessionID   string                    `bson:"session_id" json:"session_id"`
	HouseholdID string                    `bson:"household_id" json:"household_id"`
	StoreName   string                    `bson:"store_name" json:"store_name"`
	Receipt     *receipt.ExtractedReceipt `bson:"receipt" json:"receipt"`
	Confidence  float64                   `bson:"confidence" json:"confidence"`
	TokensUsed  int                       `bson:"tokens_used" json:"tokens_used"`
	CostUSD     float64                   `bson:"cost_usd" json:"cost_usd"`
	CreatedAt   time.Time                 `bson:"created_at" json:"created_at"`
}

// SaveScanSession inserts a completed scan run
func SaveScanSession(session ScanSession) error {
	if mongoDB == nil {
		return fmt.Errorf("mongodb not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection(scanSessionsCollection)
	_, err := collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to save scan session: %w", err)
	}

	return nil
}

// GetScanSession retrieves one scan session by id
func GetScanSession(sessionID string) (*ScanSession, error) {
	if mongoDB == nil {
		return nil, fmt.Errorf("mongodb not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection(scanSessionsCollection)

	var session ScanSession
	err := collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("scan session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to query scan session: %w", err)
	}

	return &session, nil
}

// SaveCorrections inserts correction records produced by a user review.
// Insert-only; records are never updated after the fact.
func SaveCorrections(records []receipt.CorrectionRecord) error {
	if mongoDB == nil {
		return fmt.Errorf("mongodb not initialized")
	}
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, r)
	}

	collection := mongoDB.Collection(correctionsCollection)
	_, err := collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to save corrections: %w", err)
	}

	InvalidateCorrectionCache(records[0].StoreName)
	return nil
}

// GetRecentCorrections returns the newest corrections for a store, for
// few-shot prompt context. Removed items are excluded; they teach nothing
// about reading. Falls back to corrections across all stores when the
// store has none of its own.
func GetRecentCorrections(storeName string, limit int) ([]receipt.CorrectionRecord, error) {
	if mongoDB == nil {
		return nil, fmt.Errorf("mongodb not initialized")
	}
	if limit <= 0 {
		limit = configs.CORRECTION_FEWSHOT_LIMIT
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection(correctionsCollection)

	baseFilter := bson.M{
		"was_corrected": true,
		"was_removed":   false,
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	if storeName != "" {
		storeFilter := bson.M{}
		for k, v := range baseFilter {
			storeFilter[k] = v
		}
		storeFilter["store_name"] = storeName

		results, err := findCorrections(ctx, collection, storeFilter, findOpts)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
	}

	return findCorrections(ctx, collection, baseFilter, findOpts)
}

func findCorrections(ctx context.Context, collection *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]receipt.CorrectionRecord, error) {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer cursor.Close(ctx)

	var results []receipt.CorrectionRecord
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	return results, nil
}

// BuildCorrectionRecords diffs the extracted items against the user's
// reviewed items and returns one record per changed or removed item.
// Reviewed items match extracted ones by line number; extracted items
// with no reviewed counterpart are recorded as removals.
func BuildCorrectionRecords(sessionID, householdID, storeName string, extracted, reviewed []receipt.ReceiptItem) []receipt.CorrectionRecord {
	now := time.Now().UTC()

	reviewedByLine := make(map[int]receipt.ReceiptItem, len(reviewed))
	for _, item := range reviewed {
		reviewedByLine[item.LineNumber] = item
	}

	var records []receipt.CorrectionRecord
	for _, orig := range extracted {
		record := receipt.CorrectionRecord{
			SessionID:           sessionID,
			HouseholdID:         householdID,
			StoreName:           storeName,
			AIExtractedName:     orig.Name,
			AIExtractedQty:      orig.Quantity,
			AIExtractedPrice:    orig.Price,
			AIExtractedCategory: orig.Category,
			CreatedAt:           now,
		}

		fixed, kept := reviewedByLine[orig.LineNumber]
		if !kept {
			record.WasRemoved = true
			records = append(records, record)
			continue
		}

		if itemsEquivalent(orig, fixed) {
			continue
		}

		record.WasCorrected = true
		record.CorrectedName = fixed.Name
		record.CorrectedQty = fixed.Quantity
		record.CorrectedPrice = fixed.Price
		record.CorrectedCategory = fixed.Category
		records = append(records, record)
	}

	return records
}

func itemsEquivalent(a, b receipt.ReceiptItem) bool {
	return strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) &&
		strings.TrimSpace(a.Quantity) == strings.TrimSpace(b.Quantity) &&
		a.Price == b.Price &&
		a.Category == b.Category
}
