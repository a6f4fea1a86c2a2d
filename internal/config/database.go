package config

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
)

var (
	// MongoDB client
	MongoDB *mongo.Database
	// Redis client
	Redis *redisclient.Client
)

// InitMongoDB initializes the MongoDB connection
func InitMongoDB() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(AppConfig.MongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}

	// Ping the database
	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		log.Fatal(err)
	}

	MongoDB = client.Database(AppConfig.MongoDatabase)

	if err := EnsureIndexes(context.Background()); err != nil {
		logging.Logger.Error("failed to ensure indexes on startup", zap.Error(err))
	}

	logging.Logger.Info("connected to MongoDB",
		zap.String("uri", maskMongoURI(AppConfig.MongoURI)),
		zap.String("database", AppConfig.MongoDatabase),
	)
}

// InitRedis initializes the Redis connection
func InitRedis() {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         AppConfig.RedisURI,
		Password:     AppConfig.RedisPassword,
		DB:           AppConfig.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Wrap with traced client
	Redis = redisclient.NewClient(redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		logging.Logger.Error("failed to connect to Redis",
			zap.String("uri", AppConfig.RedisURI),
			zap.Error(err))
		return
	}

	logging.Logger.Info("connected to Redis",
		zap.String("uri", AppConfig.RedisURI))
}

// maskMongoURI masks sensitive information in MongoDB URI
func maskMongoURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at == -1 {
		return uri
	}
	return "mongodb://****:****@" + uri[at+1:]
}

// EnsureIndexes creates required indexes if they don't exist
func EnsureIndexes(ctx context.Context) error {
	logger := zap.L().Named("database")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := ensureClientIndexes(ctx, logger); err != nil {
		return err
	}
	if err := ensureProjectIndexes(ctx, logger); err != nil {
		return err
	}
	if err := ensureOTPIndexes(ctx, logger); err != nil {
		return err
	}

	logger.Info("all required indexes verified")
	return nil
}

// listIndexNames returns the names of the existing indexes of a collection
func listIndexNames(ctx context.Context, collection *mongo.Collection) (map[string]bool, error) {
	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	names := make(map[string]bool)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if name, ok := index["name"].(string); ok {
			names[name] = true
		}
	}
	return names, nil
}

func createIndexes(ctx context.Context, collection *mongo.Collection, logger *zap.Logger, indexes []mongo.IndexModel) error {
	for _, indexModel := range indexes {
		_, err := collection.Indexes().CreateOne(ctx, indexModel)
		if err != nil {
			// Another instance may have created the index concurrently
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			logger.Error("failed to create index",
				zap.String("collection", collection.Name()),
				zap.Error(err))
			return err
		}
	}
	if len(indexes) > 0 {
		logger.Info("created collection indexes",
			zap.String("collection", collection.Name()),
			zap.Int("count", len(indexes)))
	}
	return nil
}

// ensureClientIndexes creates the required indexes for the clients collection
func ensureClientIndexes(ctx context.Context, logger *zap.Logger) error {
	collection := MongoDB.Collection(AppConfig.ClientCollection)

	existing, err := listIndexNames(ctx, collection)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{}

	// Unique index on api_key, the lookup path for every authenticated request
	if !existing["api_key_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "api_key", Value: 1}},
			Options: options.Index().
				SetName("api_key_1").
				SetUnique(true),
		})
	}

	return createIndexes(ctx, collection, logger, indexes)
}

// ensureProjectIndexes creates the required indexes for the projects collection
func ensureProjectIndexes(ctx context.Context, logger *zap.Logger) error {
	collection := MongoDB.Collection(AppConfig.ProjectCollection)

	existing, err := listIndexNames(ctx, collection)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{}

	// Unique index on the public project id
	if !existing["project_id_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "project_id", Value: 1}},
			Options: options.Index().
				SetName("project_id_1").
				SetUnique(true),
		})
	}

	// Compound index for listing a client's active projects
	if !existing["client_id_1_is_active_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "is_active", Value: 1}},
			Options: options.Index().
				SetName("client_id_1_is_active_1"),
		})
	}

	return createIndexes(ctx, collection, logger, indexes)
}

// ensureOTPIndexes creates the required indexes for the otps collection
func ensureOTPIndexes(ctx context.Context, logger *zap.Logger) error {
	collection := MongoDB.Collection(AppConfig.OTPCollection)

	existing, err := listIndexNames(ctx, collection)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{}

	// Compound index backing the verification lookup
	if !existing["otp_lookup_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{
				{Key: "project_id", Value: 1},
				{Key: "target", Value: 1},
				{Key: "code", Value: 1},
				{Key: "verified", Value: 1},
			},
			Options: options.Index().
				SetName("otp_lookup_1"),
		})
	}

	// TTL index on expires_at: Mongo purges stale records, the sweeper handles
	// the verified=false retention contract before the TTL monitor gets there
	if !existing["expires_at_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("expires_at_1").
				SetExpireAfterSeconds(86400),
		})
	}

	// Index on created_at for record listings and stats
	if !existing["created_at_1"] {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().
				SetName("created_at_1"),
		})
	}

	return createIndexes(ctx, collection, logger, indexes)
}
