package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ClientService manages client registrations and their API keys
type ClientService struct {
	clients *mongo.Collection
	keys    *APIKeyService
}

// NewClientService creates a client service. The key service is used to
// invalidate cached credentials on mutation and may be nil.
func NewClientService(clients *mongo.Collection, keys *APIKeyService) *ClientService {
	return &ClientService{clients: clients, keys: keys}
}

// generateAPIKey produces a new client credential. The pk_ prefix makes keys
// recognizable in logs and support tickets without exposing the secret part.
func generateAPIKey() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return "pk_" + raw
}

// Create registers a new client and returns it with the generated API key.
// This is the only moment the key is returned in full.
func (s *ClientService) Create(ctx context.Context, req models.ClientCreateRequest) (*models.Client, error) {
	now := time.Now()
	client := &models.Client{
		ID:                 primitive.NewObjectID(),
		Name:               req.Name,
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		APIKey:             generateAPIKey(),
		IsActive:           true,
		RateLimitPerMinute: req.RateLimitPerMinute,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if client.RateLimitPerMinute <= 0 {
		client.RateLimitPerMinute = models.DefaultRateLimitPerMinute
	}

	if _, err := s.clients.InsertOne(ctx, client); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// api_key collision is practically impossible; retry once
			client.APIKey = generateAPIKey()
			if _, err := s.clients.InsertOne(ctx, client); err != nil {
				return nil, fmt.Errorf("failed to create client: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	}

	logging.Logger.Info("client created",
		zap.String("client_id", client.ID.Hex()),
		zap.String("name", client.Name),
		zap.String("api_key", observability.MaskAPIKey(client.APIKey)))

	return client, nil
}

// Get returns a client by its identifier
func (s *ClientService) Get(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	var client models.Client
	err := s.clients.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return &client, nil
}

// List returns all registered clients, newest first
func (s *ClientService) List(ctx context.Context) ([]models.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.clients.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer cursor.Close(ctx)

	var clients []models.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

// SetActive toggles a client's active flag. Deactivation takes effect on the
// next request once the cached credential is invalidated.
func (s *ClientService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Client, error) {
	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var client models.Client
	err := s.clients.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	if s.keys != nil {
		s.keys.InvalidateKey(ctx, client.APIKey)
	}

	logging.Logger.Info("client active flag changed",
		zap.String("client_id", client.ID.Hex()),
		zap.Bool("is_active", active))

	return &client, nil
}

// RotateKey replaces a client's API key and invalidates the old one
func (s *ClientService) RotateKey(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	newKey := generateAPIKey()
	update := bson.M{"$set": bson.M{"api_key": newKey, "updated_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var client models.Client
	err = s.clients.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to rotate API key: %w", err)
	}

	if s.keys != nil {
		s.keys.InvalidateKey(ctx, current.APIKey)
	}

	logging.Logger.Info("client API key rotated",
		zap.String("client_id", client.ID.Hex()))

	return &client, nil
}
