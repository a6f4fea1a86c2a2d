package services

import (
	"context"
	"fmt"
	"time"

	"github.com/otpeak/otp-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OTPStore persists OTP records and owns their lifecycle transitions
type OTPStore interface {
	Create(ctx context.Context, record *models.OTP) error
	FindPending(ctx context.Context, projectID, target, code, correlationID string) (*models.OTP, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// MongoOTPStore implements OTPStore over the otps collection
type MongoOTPStore struct {
	collection *mongo.Collection
}

// NewMongoOTPStore creates a store over the otps collection
func NewMongoOTPStore(collection *mongo.Collection) *MongoOTPStore {
	return &MongoOTPStore{collection: collection}
}

// Create persists a new OTP record
func (s *MongoOTPStore) Create(ctx context.Context, record *models.OTP) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := s.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create OTP record: %w", err)
	}
	return nil
}

// FindPending looks up an unverified record matching all supplied fields.
// A correlation id narrows the match when present. Expiry is not part of the
// filter: the engine distinguishes expired from missing.
func (s *MongoOTPStore) FindPending(ctx context.Context, projectID, target, code, correlationID string) (*models.OTP, error) {
	filter := bson.M{
		"project_id": projectID,
		"target":     target,
		"code":       code,
		"verified":   false,
	}
	if correlationID != "" {
		filter["correlation_id"] = correlationID
	}

	var record models.OTP
	err := s.collection.FindOne(ctx, filter).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find OTP record: %w", err)
	}
	return &record, nil
}

// MarkVerified flips the verified flag. This is the only mutation path for
// OTP records; the verified:false guard makes concurrent verifies race to a
// single winner.
func (s *MongoOTPStore) MarkVerified(ctx context.Context, id primitive.ObjectID) (bool, error) {
	now := time.Now()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "verified": false},
		bson.M{"$set": bson.M{"verified": true, "verified_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark OTP verified: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// PurgeExpired deletes expired, unverified records. Verified records stay
// for analytics until the TTL index reaps them.
func (s *MongoOTPStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": time.Now()},
		"verified":   false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired OTP records: %w", err)
	}
	return result.DeletedCount, nil
}

// ListRecords returns a page of a project's records, newest first
func (s *MongoOTPStore) ListRecords(ctx context.Context, projectID string, page, limit int64) ([]models.OTPRecordView, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	filter := bson.M{"project_id": projectID}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count OTP records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list OTP records: %w", err)
	}
	defer cursor.Close(ctx)

	views := []models.OTPRecordView{}
	for cursor.Next(ctx) {
		var record models.OTP
		if err := cursor.Decode(&record); err != nil {
			return nil, 0, fmt.Errorf("failed to decode OTP record: %w", err)
		}
		views = append(views, record.ToView())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate OTP records: %w", err)
	}

	return views, total, nil
}

// Stats aggregates issuance and verification counts for a project
func (s *MongoOTPStore) Stats(ctx context.Context, projectID string) (*models.OTPStats, error) {
	filter := bson.M{"project_id": projectID}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count OTP records: %w", err)
	}

	verified, err := s.collection.CountDocuments(ctx, bson.M{
		"project_id": projectID,
		"verified":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count verified OTP records: %w", err)
	}

	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.M{"_id": "$channel", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate OTP stats: %w", err)
	}
	defer cursor.Close(ctx)

	byChannel := make(map[string]int64)
	for cursor.Next(ctx) {
		var group struct {
			Channel string `bson:"_id"`
			Count   int64  `bson:"count"`
		}
		if err := cursor.Decode(&group); err != nil {
			return nil, fmt.Errorf("failed to decode OTP stats: %w", err)
		}
		byChannel[group.Channel] = group.Count
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate OTP stats: %w", err)
	}

	return &models.OTPStats{
		Total:      total,
		Verified:   verified,
		Unverified: total - verified,
		ByChannel:  byChannel,
	}, nil
}
