package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/utils/httpclient"
	"go.uber.org/zap"
)

type mailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SendEmail sends a rendered email through the mail service
func SendEmail(ctx context.Context, to, subject, html string) error {
	logger := logging.Logger.With(
		zap.String("to", observability.MaskTarget(to)),
		zap.String("subject", subject),
	)

	if !config.AppConfig.MailEnabled {
		logger.Info("mail delivery is disabled, skipping email send")
		return nil
	}

	jsonBody, err := json.Marshal(mailRequest{To: to, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	url := fmt.Sprintf("%s/mail/send", config.AppConfig.MailServiceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		logger.Error("failed to create mail request", zap.Error(err))
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := httpclient.GetGlobalPool().Get()
	defer httpclient.GetGlobalPool().Put(client)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("failed to send mail request", zap.Error(err))
		return fmt.Errorf("failed to send mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		logger.Error("mail request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", body))
		return fmt.Errorf("mail request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// Notifier is the production NotificationSender backed by the HTTP
// mail service and WhatsApp gateway
type Notifier struct{}

// SendEmail implements the email leg of the notification capability
func (Notifier) SendEmail(ctx context.Context, target, subject, body string) error {
	return SendEmail(ctx, target, subject, body)
}

// SendWhatsApp implements the WhatsApp leg of the notification capability
func (Notifier) SendWhatsApp(ctx context.Context, target, message string) error {
	return SendWhatsAppMessage(ctx, target, message)
}
