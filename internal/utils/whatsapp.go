package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/utils/httpclient"
	"go.uber.org/zap"
)

var phoneRegex = regexp.MustCompile(`^[0-9]{10,15}$`)

type whatsappMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type whatsappErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// validatePhoneNumber validates if the phone number is in the expected
// E.164-digits format
func validatePhoneNumber(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone number format: %s", phone)
	}
	return nil
}

// SendWhatsAppMessage sends a rendered message to a phone number using the
// WhatsApp gateway API
func SendWhatsAppMessage(ctx context.Context, phone string, message string) error {
	logger := logging.Logger.With(
		zap.String("phone", observability.MaskTarget(phone)),
	)

	if !config.AppConfig.WhatsAppEnabled {
		logger.Info("WhatsApp messaging is disabled, skipping message send")
		return nil
	}

	if err := validatePhoneNumber(phone); err != nil {
		logger.Error("invalid phone number", zap.Error(err))
		return err
	}

	jsonBody, err := json.Marshal(whatsappMessageRequest{To: phone, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal message request: %w", err)
	}

	url := fmt.Sprintf("%s/messages/send", config.AppConfig.WhatsAppAPIURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		logger.Error("failed to create message request", zap.Error(err))
		return fmt.Errorf("failed to create message request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", config.AppConfig.WhatsAppAPIKey))
	req.Header.Set("Content-Type", "application/json")

	client := httpclient.GetGlobalPool().Get()
	defer httpclient.GetGlobalPool().Put(client)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("failed to send message request", zap.Error(err))
		return fmt.Errorf("failed to send message request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("failed to read response body", zap.Error(err))
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp whatsappErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			logger.Error("message request failed",
				zap.Int("status_code", resp.StatusCode),
				zap.String("error_message", errResp.Message))
			return fmt.Errorf("message request failed: %s", errResp.Message)
		}
		logger.Error("message request failed",
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("message request failed with status: %d", resp.StatusCode)
	}

	return nil
}
