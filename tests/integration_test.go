package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedProject(t *testing.T, tc *TestContainers, project *models.Project) {
	t.Helper()
	_, err := tc.MongoDB.Collection(config.AppConfig.ProjectCollection).InsertOne(context.Background(), project)
	require.NoError(t, err)
}

func TestTokenLedgerConcurrentConsume(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()
	defer CleanupDatabase(t, tc.MongoDB)

	const budget = 10
	project := &models.Project{
		ID:                  primitive.NewObjectID(),
		ProjectID:           "PRJ_LEDGER000001",
		ClientID:            primitive.NewObjectID(),
		Name:                "ledger",
		IsActive:            true,
		Tokens:              budget,
		OTPExpirationSecond: models.DefaultOTPExpirationSecond,
	}
	seedProject(t, tc, project)

	ledger := services.NewMongoTokenLedger(tc.MongoDB.Collection(config.AppConfig.ProjectCollection))

	const attempts = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			result, err := ledger.Consume(context.Background(), project.ProjectID)
			if err != nil {
				t.Errorf("unexpected ledger error: %v", err)
				return
			}
			if result.CanProceed {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, budget, succeeded, "concurrent consumption must never exceed the budget")

	fresh, err := services.NewProjectService(tc.MongoDB.Collection(config.AppConfig.ProjectCollection)).
		GetByProjectID(context.Background(), project.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, int64(budget), fresh.TokensUsed)
}

func TestTokenLedgerErrorTaxonomy(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()
	defer CleanupDatabase(t, tc.MongoDB)

	projects := tc.MongoDB.Collection(config.AppConfig.ProjectCollection)
	ledger := services.NewMongoTokenLedger(projects)
	ctx := context.Background()

	_, err := ledger.Consume(ctx, "PRJ_MISSING00000")
	assert.ErrorIs(t, err, models.ErrProjectNotFound)

	inactive := &models.Project{
		ID: primitive.NewObjectID(), ProjectID: "PRJ_INACTIVE0001",
		ClientID: primitive.NewObjectID(), IsActive: false, Tokens: 10,
	}
	seedProject(t, tc, inactive)
	_, err = ledger.Consume(ctx, inactive.ProjectID)
	assert.ErrorIs(t, err, models.ErrProjectInactive)

	unlimited := &models.Project{
		ID: primitive.NewObjectID(), ProjectID: "PRJ_UNLIMITED001",
		ClientID: primitive.NewObjectID(), IsActive: true, HasUnlimitedTokens: true,
	}
	seedProject(t, tc, unlimited)
	result, err := ledger.Consume(ctx, unlimited.ProjectID)
	require.NoError(t, err)
	assert.True(t, result.CanProceed)
	assert.Equal(t, int64(-1), result.Remaining)

	exhausted := &models.Project{
		ID: primitive.NewObjectID(), ProjectID: "PRJ_EXHAUSTED001",
		ClientID: primitive.NewObjectID(), IsActive: true, Tokens: 1, TokensUsed: 1,
	}
	seedProject(t, tc, exhausted)
	result, err = ledger.Consume(ctx, exhausted.ProjectID)
	require.NoError(t, err)
	assert.False(t, result.CanProceed)
}

func TestTokenLedgerRefund(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()
	defer CleanupDatabase(t, tc.MongoDB)

	projects := tc.MongoDB.Collection(config.AppConfig.ProjectCollection)
	ledger := services.NewMongoTokenLedger(projects)
	ctx := context.Background()

	project := &models.Project{
		ID: primitive.NewObjectID(), ProjectID: "PRJ_REFUND000001",
		ClientID: primitive.NewObjectID(), IsActive: true, Tokens: 5,
	}
	seedProject(t, tc, project)

	result, err := ledger.Consume(ctx, project.ProjectID)
	require.NoError(t, err)
	require.True(t, result.CanProceed)

	require.NoError(t, ledger.Refund(ctx, project.ProjectID))

	fresh, err := services.NewProjectService(projects).GetByProjectID(ctx, project.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.TokensUsed)

	// refund never drives usage negative
	require.NoError(t, ledger.Refund(ctx, project.ProjectID))
	fresh, err = services.NewProjectService(projects).GetByProjectID(ctx, project.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.TokensUsed)
}

func TestOTPStoreLifecycle(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()
	defer CleanupDatabase(t, tc.MongoDB)

	store := services.NewMongoOTPStore(tc.MongoDB.Collection(config.AppConfig.OTPCollection))
	ctx := context.Background()

	record := &models.OTP{
		ProjectID:     "PRJ_STORE0000001",
		Target:        "user@example.com",
		Channel:       models.ChannelEmail,
		Code:          "654321",
		CorrelationID: "corr-1",
		ExpiresAt:     time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, store.Create(ctx, record))
	require.False(t, record.ID.IsZero())

	found, err := store.FindPending(ctx, record.ProjectID, record.Target, record.Code, "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.Code, found.Code)

	// wrong correlation id does not match
	miss, err := store.FindPending(ctx, record.ProjectID, record.Target, record.Code, "corr-other")
	require.NoError(t, err)
	assert.Nil(t, miss)

	marked, err := store.MarkVerified(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	// second attempt loses
	marked, err = store.MarkVerified(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	// verified records are no longer pending
	gone, err := store.FindPending(ctx, record.ProjectID, record.Target, record.Code, "")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestOTPStorePurgeExpired(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()
	defer CleanupDatabase(t, tc.MongoDB)

	store := services.NewMongoOTPStore(tc.MongoDB.Collection(config.AppConfig.OTPCollection))
	ctx := context.Background()

	expired := &models.OTP{
		ProjectID: "PRJ_PURGE0000001", Target: "a@example.com",
		Channel: models.ChannelEmail, Code: "111111",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &models.OTP{
		ProjectID: "PRJ_PURGE0000001", Target: "b@example.com",
		Channel: models.ChannelEmail, Code: "222222",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	verifiedAt := time.Now()
	verifiedExpired := &models.OTP{
		ProjectID: "PRJ_PURGE0000001", Target: "c@example.com",
		Channel: models.ChannelEmail, Code: "333333",
		Verified: true, VerifiedAt: &verifiedAt,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	for _, r := range []*models.OTP{expired, live, verifiedExpired} {
		require.NoError(t, store.Create(ctx, r))
	}

	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "only expired unverified records are purged")

	records, total, err := store.ListRecords(ctx, "PRJ_PURGE0000001", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)
}

func TestRedisCounterStoreWindow(t *testing.T) {
	tc := SetupTestContainers(t)
	defer tc.Cleanup()

	store := services.NewRedisCounterStore(tc.Redis)
	ctx := context.Background()

	const window = 2 * time.Second
	for i := int64(1); i <= 3; i++ {
		count, err := store.Incr(ctx, "pk_redis", window)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	time.Sleep(window + 500*time.Millisecond)

	count, err := store.Incr(ctx, "pk_redis", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a new window starts from one")
}
