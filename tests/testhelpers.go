package tests

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/redisclient"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TestContainers holds references to test containers
type TestContainers struct {
	MongoContainer *mongodb.MongoDBContainer
	RedisContainer *redis.RedisContainer
	MongoDB        *mongo.Database
	Redis          *redisclient.Client
	Cleanup        func()
}

// SetupTestContainers starts MongoDB and Redis containers for testing.
// Skips unless INTEGRATION_TESTS is set, so the suite stays green on
// machines without a container runtime.
func SetupTestContainers(t *testing.T) *TestContainers {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("INTEGRATION_TESTS not set, skipping container-backed test")
	}

	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx,
		"mongo:7.0",
		mongodb.WithUsername("root"),
		mongodb.WithPassword("password"),
	)
	require.NoError(t, err, "Failed to start MongoDB container")

	// Start Redis container
	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
	)
	require.NoError(t, err, "Failed to start Redis container")

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MongoDB connection string")

	redisURI, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get Redis connection string")

	clientOptions := options.Client().ApplyURI(mongoURI)
	mongoClient, err := mongo.Connect(ctx, clientOptions)
	require.NoError(t, err, "Failed to connect to MongoDB")

	err = mongoClient.Ping(ctx, nil)
	require.NoError(t, err, "Failed to ping MongoDB")

	database := mongoClient.Database("otp_service_test")

	redisOpts, err := goredis.ParseURL(redisURI)
	require.NoError(t, err, "Failed to parse Redis connection string")
	redisWrapped := redisclient.NewClient(goredis.NewClient(redisOpts))

	// Initialize config for tests
	if config.AppConfig == nil {
		config.AppConfig = &config.Config{}
	}

	config.AppConfig.MongoURI = mongoURI
	config.AppConfig.MongoDatabase = "otp_service_test"
	config.AppConfig.RedisURI = redisURI
	config.AppConfig.ClientCollection = "clients"
	config.AppConfig.ProjectCollection = "projects"
	config.AppConfig.OTPCollection = "otps"
	config.AppConfig.APIKeyHeader = "X-API-Key"
	config.AppConfig.APIKeyCacheTTL = time.Minute
	config.AppConfig.OTPExpiration = 5 * time.Minute
	config.AppConfig.OTPCleanupInterval = 10 * time.Minute
	config.AppConfig.RateLimitWindow = time.Minute
	config.AppConfig.RateLimitMaxRequests = 5
	config.AppConfig.DispatchWorkers = 2
	config.AppConfig.DispatchQueueSize = 16
	config.AppConfig.MailEnabled = false
	config.AppConfig.WhatsAppEnabled = false

	// Set global references
	config.MongoDB = database
	config.Redis = redisWrapped

	cleanup := func() {
		if mongoClient != nil {
			mongoClient.Disconnect(context.Background())
		}
		if mongoContainer != nil {
			mongoContainer.Terminate(ctx)
		}
		if redisContainer != nil {
			redisContainer.Terminate(ctx)
		}
	}

	return &TestContainers{
		MongoContainer: mongoContainer,
		RedisContainer: redisContainer,
		MongoDB:        database,
		Redis:          redisWrapped,
		Cleanup:        cleanup,
	}
}

// CleanupDatabase drops all collections in the test database
func CleanupDatabase(t *testing.T, db *mongo.Database) {
	ctx := context.Background()
	collections, err := db.ListCollectionNames(ctx, map[string]interface{}{})
	require.NoError(t, err, "Failed to list collections")

	for _, collection := range collections {
		err := db.Collection(collection).Drop(ctx)
		require.NoError(t, err, fmt.Sprintf("Failed to drop collection %s", collection))
	}
}
