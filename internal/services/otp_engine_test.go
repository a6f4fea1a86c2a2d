package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otpeak/otp-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeOTPStore struct {
	mu      sync.Mutex
	records []*models.OTP
	failure error
}

func (s *fakeOTPStore) Create(ctx context.Context, record *models.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

func (s *fakeOTPStore) FindPending(ctx context.Context, projectID, target, code, correlationID string) (*models.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Verified || r.ProjectID != projectID || r.Target != target || r.Code != code {
			continue
		}
		if correlationID != "" && r.CorrelationID != correlationID {
			continue
		}
		clone := *r
		return &clone, nil
	}
	return nil, nil
}

func (s *fakeOTPStore) MarkVerified(ctx context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id && !r.Verified {
			r.Verified = true
			now := time.Now()
			r.VerifiedAt = &now
			return true, nil
		}
	}
	return false, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	budget    int64
	used      int64
	unlimited bool
	refunds   int
	failure   error
}

func (l *fakeLedger) Consume(ctx context.Context, projectID string) (TokenConsumption, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failure != nil {
		return TokenConsumption{}, l.failure
	}
	if l.unlimited {
		return TokenConsumption{Remaining: -1, CanProceed: true}, nil
	}
	if l.used >= l.budget {
		return TokenConsumption{CanProceed: false, Reason: "insufficient tokens"}, nil
	}
	l.used++
	return TokenConsumption{Remaining: l.budget - l.used, Used: l.used, CanProceed: true}, nil
}

func (l *fakeLedger) Refund(ctx context.Context, projectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds++
	if l.used > 0 {
		l.used--
	}
	return nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	jobs    []DeliveryJob
	failure error
}

func (d *fakeDispatcher) Enqueue(job DeliveryJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return d.failure
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func testProject() *models.Project {
	return &models.Project{
		ID:                  primitive.NewObjectID(),
		ProjectID:           "PRJ_TEST12345678",
		ClientID:            primitive.NewObjectID(),
		Name:                "test",
		IsActive:            true,
		Tokens:              models.DefaultProjectTokens,
		OTPExpirationSecond: models.DefaultOTPExpirationSecond,
		EmailTemplate:       models.DefaultEmailTemplate(),
		WhatsAppTemplate:    models.DefaultWhatsAppTemplate(),
	}
}

func newTestEngine(store *fakeOTPStore, ledger *fakeLedger, dispatcher *fakeDispatcher) *OTPEngine {
	e := NewOTPEngine(store, ledger, dispatcher)
	e.genCode = func() (string, error) { return "123456", nil }
	return e
}

func TestSendIssuesAndQueues(t *testing.T) {
	store := &fakeOTPStore{}
	ledger := &fakeLedger{budget: 5}
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(store, ledger, dispatcher)
	project := testProject()

	resp, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "User@Example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DefaultOTPExpirationSecond, resp.ExpiresIn)
	assert.NotEmpty(t, resp.CorrelationID, "a correlation id should be generated")
	assert.NotContains(t, resp.Message, "123456", "the code must never leak into the response")

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, "user@example.com", record.Target, "email targets are lowercased")
	assert.Equal(t, "123456", record.Code)
	assert.False(t, record.Verified)
	assert.WithinDuration(t, time.Now().Add(project.OTPExpiration()), record.ExpiresAt, 2*time.Second)

	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, "123456", dispatcher.jobs[0].Code)
	assert.Equal(t, int64(1), ledger.used)
}

func TestSendKeepsSuppliedCorrelationID(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})

	resp, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:        "user@example.com",
		Channel:       models.ChannelEmail,
		CorrelationID: "signup-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "signup-42", resp.CorrelationID)
	assert.Equal(t, "signup-42", store.records[0].CorrelationID)
}

func TestSendInvalidChannel(t *testing.T) {
	engine := newTestEngine(&fakeOTPStore{}, &fakeLedger{budget: 5}, &fakeDispatcher{})

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: "sms",
	})
	assert.ErrorIs(t, err, models.ErrInvalidChannel)
}

func TestSendInvalidTargets(t *testing.T) {
	ledger := &fakeLedger{budget: 5}
	engine := newTestEngine(&fakeOTPStore{}, ledger, &fakeDispatcher{})

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:  "not an email",
		Channel: models.ChannelEmail,
	})
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	_, err = engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:      "123",
		Channel:     models.ChannelWhatsApp,
		CountryCode: "55",
	})
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	assert.Equal(t, int64(0), ledger.used, "rejected targets must not consume tokens")
}

func TestSendNormalizesWhatsAppTarget(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:      "21987654321",
		Channel:     models.ChannelWhatsApp,
		CountryCode: "55",
	})
	require.NoError(t, err)
	assert.Equal(t, "5521987654321", store.records[0].Target)
}

func TestSendInsufficientTokens(t *testing.T) {
	engine := newTestEngine(&fakeOTPStore{}, &fakeLedger{budget: 0}, &fakeDispatcher{})

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	assert.ErrorIs(t, err, models.ErrInsufficientTokens)
}

func TestSendUnlimitedTokens(t *testing.T) {
	ledger := &fakeLedger{unlimited: true}
	engine := newTestEngine(&fakeOTPStore{}, ledger, &fakeDispatcher{})

	for i := 0; i < 10; i++ {
		_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
			Target:  "user@example.com",
			Channel: models.ChannelEmail,
		})
		require.NoError(t, err)
	}
}

func TestSendRefundsOnDispatchFailure(t *testing.T) {
	ledger := &fakeLedger{budget: 5}
	dispatcher := &fakeDispatcher{failure: errors.New("queue full")}
	engine := newTestEngine(&fakeOTPStore{}, ledger, dispatcher)

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	assert.ErrorIs(t, err, models.ErrDispatchFailed)
	assert.Equal(t, int64(0), ledger.used, "the consumed token should be refunded")
	assert.Equal(t, 1, ledger.refunds)
}

func TestSendRefundsOnStoreFailure(t *testing.T) {
	ledger := &fakeLedger{budget: 5}
	store := &fakeOTPStore{failure: errors.New("write failed")}
	engine := newTestEngine(store, ledger, &fakeDispatcher{})

	_, err := engine.Send(context.Background(), testProject(), models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), ledger.used)
}

func TestConcurrentSendsRespectBudget(t *testing.T) {
	const budget = 20
	const attempts = 50

	ledger := &fakeLedger{budget: budget}
	store := &fakeOTPStore{}
	engine := newTestEngine(store, ledger, &fakeDispatcher{})
	project := testProject()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	exhausted := 0

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
				Target:  "user@example.com",
				Channel: models.ChannelEmail,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientTokens):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, budget, succeeded, "exactly the budgeted number of sends may succeed")
	assert.Equal(t, attempts-budget, exhausted)
}

func TestVerifyHappyPath(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target: "user@example.com",
		Code:   "123456",
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Reason)
}

func TestVerifyMixedCaseEmailTarget(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "User@Example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target: "User@Example.com",
		Code:   "123456",
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid, "the target string that issued the code must also verify it")
	assert.Empty(t, resp.Reason)
}

func TestVerifyIsSingleUse(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	req := models.VerifyOTPRequest{Target: "user@example.com", Code: "123456"}

	first, err := engine.Verify(context.Background(), project, req)
	require.NoError(t, err)
	require.True(t, first.Valid)

	second, err := engine.Verify(context.Background(), project, req)
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, models.ReasonInvalidCode, second.Reason, "a consumed code must look like any other wrong code")
}

func TestVerifyWrongCode(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target: "user@example.com",
		Code:   "000000",
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, models.ReasonInvalidCode, resp.Reason)
}

func TestVerifyExpiredCode(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	issued := time.Now()
	engine.now = func() time.Time { return issued }

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	engine.now = func() time.Time { return issued.Add(project.OTPExpiration() + time.Second) }

	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target: "user@example.com",
		Code:   "123456",
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, models.ReasonExpiredCode, resp.Reason)
	assert.False(t, store.records[0].Verified, "an expired record must stay untouched")
}

func TestVerifyCrossProjectIsolation(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})

	owner := testProject()
	other := testProject()
	other.ProjectID = "PRJ_OTHER1234567"

	_, err := engine.Send(context.Background(), owner, models.SendOTPRequest{
		Target:  "user@example.com",
		Channel: models.ChannelEmail,
	})
	require.NoError(t, err)

	resp, err := engine.Verify(context.Background(), other, models.VerifyOTPRequest{
		Target: "user@example.com",
		Code:   "123456",
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid, "a code issued by one project must not verify in another")
}

func TestVerifyCorrelationNarrowing(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:        "user@example.com",
		Channel:       models.ChannelEmail,
		CorrelationID: "flow-a",
	})
	require.NoError(t, err)

	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target:        "user@example.com",
		Code:          "123456",
		CorrelationID: "flow-b",
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid, "a correlation id mismatch must not verify")

	resp, err = engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target:        "user@example.com",
		Code:          "123456",
		CorrelationID: "flow-a",
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
}

func TestVerifyNormalizedWhatsAppTarget(t *testing.T) {
	store := &fakeOTPStore{}
	engine := newTestEngine(store, &fakeLedger{budget: 5}, &fakeDispatcher{})
	project := testProject()

	_, err := engine.Send(context.Background(), project, models.SendOTPRequest{
		Target:      "21987654321",
		Channel:     models.ChannelWhatsApp,
		CountryCode: "55",
	})
	require.NoError(t, err)

	// verification with the raw national number still finds the record
	resp, err := engine.Verify(context.Background(), project, models.VerifyOTPRequest{
		Target:      "21987654321",
		Code:        "123456",
		CountryCode: "55",
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
}
