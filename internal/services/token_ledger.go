package services

import (
	"context"
	"fmt"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// TokenConsumption is the outcome of a ledger consume attempt
type TokenConsumption struct {
	Remaining  int64  `json:"tokens_remaining"`
	Used       int64  `json:"tokens_used"`
	CanProceed bool   `json:"can_proceed"`
	Reason     string `json:"reason,omitempty"`
}

// TokenLedger meters OTP issuance against a project's token budget
type TokenLedger interface {
	Consume(ctx context.Context, projectID string) (TokenConsumption, error)
	Refund(ctx context.Context, projectID string) error
}

// MongoTokenLedger implements TokenLedger with a storage-level conditional
// increment, so two concurrent senders can never over-consume a budget.
type MongoTokenLedger struct {
	collection *mongo.Collection
}

// NewMongoTokenLedger creates a ledger over the projects collection
func NewMongoTokenLedger(collection *mongo.Collection) *MongoTokenLedger {
	return &MongoTokenLedger{collection: collection}
}

// Consume atomically consumes one token from the project budget. The
// increment only matches documents where tokens_used < tokens, which is what
// keeps the tokens_used <= tokens invariant under concurrency.
func (l *MongoTokenLedger) Consume(ctx context.Context, projectID string) (TokenConsumption, error) {
	filter := bson.M{
		"project_id":           projectID,
		"is_active":            true,
		"has_unlimited_tokens": false,
		"$expr":                bson.M{"$lt": bson.A{"$tokens_used", "$tokens"}},
	}
	update := bson.M{
		"$inc": bson.M{"tokens_used": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}

	var project models.Project
	err := l.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&project)
	if err == nil {
		observability.TokensConsumed.Inc()
		return TokenConsumption{
			Remaining:  project.Tokens - project.TokensUsed,
			Used:       project.TokensUsed,
			CanProceed: true,
		}, nil
	}
	if err != mongo.ErrNoDocuments {
		return TokenConsumption{}, fmt.Errorf("failed to consume token: %w", err)
	}

	// Nothing matched: the project is missing, inactive, unlimited or
	// exhausted. A plain read tells these apart.
	err = l.collection.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&project)
	if err == mongo.ErrNoDocuments {
		return TokenConsumption{}, models.ErrProjectNotFound
	}
	if err != nil {
		return TokenConsumption{}, fmt.Errorf("failed to load project: %w", err)
	}

	if !project.IsActive {
		return TokenConsumption{}, models.ErrProjectInactive
	}

	if project.HasUnlimitedTokens {
		return TokenConsumption{
			Remaining:  -1,
			Used:       project.TokensUsed,
			CanProceed: true,
		}, nil
	}

	return TokenConsumption{
		Remaining:  0,
		Used:       project.TokensUsed,
		CanProceed: false,
		Reason:     "insufficient tokens",
	}, nil
}

// Refund returns one previously consumed token, used when delivery could not
// be enqueued after consumption. The decrement never drives tokens_used
// below zero.
func (l *MongoTokenLedger) Refund(ctx context.Context, projectID string) error {
	filter := bson.M{
		"project_id":           projectID,
		"has_unlimited_tokens": false,
		"tokens_used":          bson.M{"$gt": 0},
	}
	update := bson.M{
		"$inc": bson.M{"tokens_used": -1},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := l.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to refund token: %w", err)
	}
	if result.MatchedCount == 0 {
		logging.Logger.Warn("token refund matched no project",
			zap.String("project_id", projectID))
	}
	return nil
}
