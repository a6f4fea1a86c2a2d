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
	"github.com/otpeak/otp-service/internal/utils"
	"go.uber.org/zap"
)

// OTPEngine orchestrates issuance and verification: it charges the project's
// token budget, generates and persists a code, and hands delivery to the
// dispatcher. Verification compares a submitted code against pending records
// and burns the record on first success.
type OTPEngine struct {
	store      OTPStore
	ledger     TokenLedger
	dispatcher Dispatcher

	// overridable in tests
	genCode func() (string, error)
	now     func() time.Time
}

// NewOTPEngine creates an engine backed by the given store, ledger and dispatcher
func NewOTPEngine(store OTPStore, ledger TokenLedger, dispatcher Dispatcher) *OTPEngine {
	return &OTPEngine{
		store:      store,
		ledger:     ledger,
		dispatcher: dispatcher,
		genCode:    utils.GenerateVerificationCode,
		now:        time.Now,
	}
}

// Send issues a one-time code for the target and queues its delivery.
// The code itself never appears in the response. A token already consumed is
// refunded when persistence or enqueueing fails, so failed sends do not
// drain the project's budget.
func (e *OTPEngine) Send(ctx context.Context, project *models.Project, req models.SendOTPRequest) (*models.SendOTPResponse, error) {
	if !models.ValidChannel(req.Channel) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidChannel, req.Channel)
	}

	target, err := e.normalizeTarget(req)
	if err != nil {
		return nil, err
	}

	consumption, err := e.ledger.Consume(ctx, project.ProjectID)
	if err != nil {
		return nil, err
	}
	if !consumption.CanProceed {
		return nil, models.ErrInsufficientTokens
	}

	code, err := e.genCode()
	if err != nil {
		e.refund(ctx, project.ProjectID)
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	now := e.now()
	record := &models.OTP{
		ProjectID:     project.ProjectID,
		Target:        target,
		Channel:       req.Channel,
		Code:          code,
		CorrelationID: correlationID,
		CountryCode:   req.CountryCode,
		CreatedAt:     now,
		ExpiresAt:     now.Add(project.OTPExpiration()),
	}
	if err := e.store.Create(ctx, record); err != nil {
		e.refund(ctx, project.ProjectID)
		return nil, fmt.Errorf("failed to persist OTP: %w", err)
	}

	job := DeliveryJob{
		ProjectID:         project.ProjectID,
		Target:            target,
		Code:              code,
		Channel:           req.Channel,
		CorrelationID:     correlationID,
		EmailTemplate:     project.EmailTemplate,
		WhatsAppTemplate:  project.WhatsAppTemplate,
		ExpirationMinutes: project.OTPExpirationMinutes(),
		CreatedAt:         now,
	}
	if err := e.dispatcher.Enqueue(job); err != nil {
		e.refund(ctx, project.ProjectID)
		logging.Logger.Error("failed to enqueue OTP delivery",
			zap.String("project_id", project.ProjectID),
			zap.String("channel", req.Channel),
			zap.Error(err))
		return nil, models.ErrDispatchFailed
	}

	observability.OTPIssued.WithLabelValues(req.Channel).Inc()
	logging.Logger.Info("OTP issued",
		zap.String("project_id", project.ProjectID),
		zap.String("channel", req.Channel),
		zap.String("target", observability.MaskTarget(target)),
		zap.String("correlation_id", correlationID),
		zap.Int64("tokens_remaining", consumption.Remaining))

	return &models.SendOTPResponse{
		Message:       "OTP generated and queued for delivery",
		ExpiresIn:     project.OTPExpirationSecond,
		CorrelationID: correlationID,
	}, nil
}

// Verify checks a submitted code against the project's pending records.
// Wrong code, wrong target and already-verified all collapse into the same
// "invalid code" answer; only a genuinely expired match is reported as
// expired, and the record stays pending in that case.
func (e *OTPEngine) Verify(ctx context.Context, project *models.Project, req models.VerifyOTPRequest) (*models.VerifyOTPResponse, error) {
	var record *models.OTP
	for _, target := range lookupTargets(req) {
		var err error
		record, err = e.store.FindPending(ctx, project.ProjectID, target, req.Code, req.CorrelationID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			break
		}
	}
	if record == nil {
		observability.OTPVerifications.WithLabelValues("invalid").Inc()
		return &models.VerifyOTPResponse{Valid: false, Reason: models.ReasonInvalidCode}, nil
	}

	if record.Expired(e.now()) {
		observability.OTPVerifications.WithLabelValues("expired").Inc()
		return &models.VerifyOTPResponse{Valid: false, Reason: models.ReasonExpiredCode}, nil
	}

	marked, err := e.store.MarkVerified(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if !marked {
		// lost the race against a concurrent verification of the same record
		observability.OTPVerifications.WithLabelValues("invalid").Inc()
		return &models.VerifyOTPResponse{Valid: false, Reason: models.ReasonInvalidCode}, nil
	}

	observability.OTPVerifications.WithLabelValues("valid").Inc()
	logging.Logger.Info("OTP verified",
		zap.String("project_id", project.ProjectID),
		zap.String("target", observability.MaskTarget(record.Target)))

	return &models.VerifyOTPResponse{Valid: true}, nil
}

// normalizeTarget validates the target for the requested channel and returns
// the canonical form stored and delivered to
func (e *OTPEngine) normalizeTarget(req models.SendOTPRequest) (string, error) {
	switch req.Channel {
	case models.ChannelWhatsApp:
		normalized, err := utils.NormalizeWhatsAppTarget(req.Target, req.CountryCode)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrInvalidTarget, err)
		}
		return normalized, nil
	case models.ChannelEmail:
		if !strings.Contains(req.Target, "@") || strings.ContainsAny(req.Target, " \t") {
			return "", fmt.Errorf("%w: malformed email address", models.ErrInvalidTarget)
		}
		return strings.ToLower(strings.TrimSpace(req.Target)), nil
	default:
		return "", models.ErrInvalidChannel
	}
}

// lookupTargets returns the forms a record may have been stored under: the
// target as submitted, then the canonical form issuance writes (lowercased
// email, E.164 digits for phone numbers)
func lookupTargets(req models.VerifyOTPRequest) []string {
	targets := []string{req.Target}
	if strings.Contains(req.Target, "@") {
		if canonical := strings.ToLower(strings.TrimSpace(req.Target)); canonical != req.Target {
			targets = append(targets, canonical)
		}
		return targets
	}
	if strings.HasPrefix(req.Target, "+") || req.CountryCode != "" {
		if normalized, err := utils.NormalizeWhatsAppTarget(req.Target, req.CountryCode); err == nil && normalized != req.Target {
			targets = append(targets, normalized)
		}
	}
	return targets
}

// refund returns a consumed token after a downstream failure. Refund errors
// are logged, not propagated: the caller already has a more important error.
func (e *OTPEngine) refund(ctx context.Context, projectID string) {
	if err := e.ledger.Refund(ctx, projectID); err != nil && !errors.Is(err, context.Canceled) {
		logging.Logger.Warn("failed to refund token",
			zap.String("project_id", projectID),
			zap.Error(err))
	}
}
