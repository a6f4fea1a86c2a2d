package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/redisclient"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ClientResolver authenticates an API key to its client record
type ClientResolver interface {
	ResolveClient(ctx context.Context, apiKey string) (*models.Client, error)
}

// APIKeyService resolves API keys to clients, with a Redis read-through cache
// in front of Mongo. Cache failures degrade to a direct lookup.
type APIKeyService struct {
	clients  *mongo.Collection
	cache    *redisclient.Client
	cacheTTL time.Duration
}

// NewAPIKeyService creates an API key resolver. The cache is optional; pass
// nil to resolve straight from Mongo.
func NewAPIKeyService(clients *mongo.Collection, cache *redisclient.Client, cacheTTL time.Duration) *APIKeyService {
	return &APIKeyService{
		clients:  clients,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(apiKey string) string {
	return fmt.Sprintf("client:apikey:%s", apiKey)
}

// ResolveClient returns the active client owning the API key.
// An unknown key is ErrUnauthorized; a known but deactivated client is
// ErrClientInactive.
func (s *APIKeyService) ResolveClient(ctx context.Context, apiKey string) (*models.Client, error) {
	if apiKey == "" {
		return nil, models.ErrUnauthorized
	}

	if client := s.fromCache(ctx, apiKey); client != nil {
		if !client.IsActive {
			return nil, models.ErrClientInactive
		}
		return client, nil
	}

	var client models.Client
	err := s.clients.FindOne(ctx, bson.M{"api_key": apiKey}).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	s.toCache(ctx, apiKey, &client)

	if !client.IsActive {
		return nil, models.ErrClientInactive
	}
	return &client, nil
}

// InvalidateKey drops a cached client after an admin mutation, so key
// revocations and deactivations take effect without waiting out the TTL
func (s *APIKeyService) InvalidateKey(ctx context.Context, apiKey string) {
	if s.cache == nil || apiKey == "" {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(apiKey)).Err(); err != nil {
		logging.Logger.Warn("failed to invalidate API key cache", zap.Error(err))
	}
}

func (s *APIKeyService) fromCache(ctx context.Context, apiKey string) *models.Client {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.Get(ctx, cacheKey(apiKey)).Result()
	if err != nil || data == "" {
		observability.CacheHits.WithLabelValues("apikey_miss").Inc()
		return nil
	}

	var client models.Client
	if err := json.Unmarshal([]byte(data), &client); err != nil {
		logging.Logger.Warn("corrupt API key cache entry", zap.Error(err))
		return nil
	}

	observability.CacheHits.WithLabelValues("apikey_hit").Inc()
	return &client
}

func (s *APIKeyService) toCache(ctx context.Context, apiKey string, client *models.Client) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(client)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(apiKey), string(data), s.cacheTTL).Err(); err != nil {
		logging.Logger.Warn("failed to cache client", zap.Error(err))
	}
}
