package models

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Delivery channels
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// CodeLength is the fixed number of digits in an OTP code
const CodeLength = 6

// ValidChannel reports whether ch is a known delivery channel
func ValidChannel(ch string) bool {
	return ch == ChannelEmail || ch == ChannelWhatsApp
}

// OTP represents a one-time-passcode record. A record is Pending while
// verified is false and expires_at is in the future; expiry is never stored,
// it is derived at read time.
type OTP struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID     string             `bson:"project_id" json:"project_id"`
	Target        string             `bson:"target" json:"target"`
	Channel       string             `bson:"channel" json:"channel"`
	Code          string             `bson:"code" json:"-"`
	Verified      bool               `bson:"verified" json:"verified"`
	VerifiedAt    *time.Time         `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	CorrelationID string             `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	CountryCode   string             `bson:"country_code,omitempty" json:"country_code,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt     time.Time          `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given time
func (o *OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// EmailTemplate is the email delivery template. Body is HTML with literal
// {{code}} and optional {{expirationMinutes}} placeholders.
type EmailTemplate struct {
	Subject string `bson:"subject" json:"subject" binding:"required"`
	Body    string `bson:"body" json:"body" binding:"required"`
}

// WhatsAppTemplate is the WhatsApp delivery template. Message is plain text
// with the same placeholder contract as EmailTemplate.
type WhatsAppTemplate struct {
	Message string `bson:"message" json:"message" binding:"required"`
}

// renderPlaceholders substitutes the literal placeholder tokens. No
// conditional logic, every occurrence is replaced verbatim.
func renderPlaceholders(s, code string, expirationMinutes int) string {
	s = strings.ReplaceAll(s, "{{code}}", code)
	s = strings.ReplaceAll(s, "{{expirationMinutes}}", strconv.Itoa(expirationMinutes))
	return s
}

// Render substitutes the code and expiry into the subject and body
func (t EmailTemplate) Render(code string, expirationMinutes int) (subject, body string) {
	return renderPlaceholders(t.Subject, code, expirationMinutes),
		renderPlaceholders(t.Body, code, expirationMinutes)
}

// Render substitutes the code and expiry into the message
func (t WhatsAppTemplate) Render(code string, expirationMinutes int) string {
	return renderPlaceholders(t.Message, code, expirationMinutes)
}

// DefaultEmailTemplate returns the template used when a project does not
// configure its own
func DefaultEmailTemplate() EmailTemplate {
	return EmailTemplate{
		Subject: "Your verification code",
		Body:    "<h2>Verification code</h2><p>Your code is: <strong>{{code}}</strong></p><p>This code expires in {{expirationMinutes}} minutes.</p>",
	}
}

// DefaultWhatsAppTemplate returns the template used when a project does not
// configure its own
func DefaultWhatsAppTemplate() WhatsAppTemplate {
	return WhatsAppTemplate{
		Message: "Your verification code is: {{code}}. This code expires in {{expirationMinutes}} minutes.",
	}
}

// SendOTPRequest represents the request body for issuing an OTP
type SendOTPRequest struct {
	Target        string `json:"target" binding:"required"`
	Channel       string `json:"channel" binding:"required,oneof=email whatsapp"`
	CorrelationID string `json:"correlation_id"`
	CountryCode   string `json:"country_code"`
}

// VerifyOTPRequest represents the request body for verifying an OTP
type VerifyOTPRequest struct {
	Target        string `json:"target" binding:"required"`
	Code          string `json:"code" binding:"required"`
	CorrelationID string `json:"correlation_id"`
	CountryCode   string `json:"country_code"`
}

// SendOTPResponse is returned on successful issuance; the code itself is
// never part of the response
type SendOTPResponse struct {
	Message       string `json:"message"`
	ExpiresIn     int    `json:"expires_in"`
	CorrelationID string `json:"correlation_id"`
}

// VerifyOTPResponse reports the verification outcome. Wrong code, wrong
// target and already-verified all collapse to "invalid code"; only expiry
// gets a distinct reason.
type VerifyOTPResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verification reasons
const (
	ReasonInvalidCode = "invalid code"
	ReasonExpiredCode = "expired code"
)

// OTPRecordView is a redacted OTP record for the analytics listing
type OTPRecordView struct {
	ID            string     `json:"id"`
	Target        string     `json:"target"`
	Channel       string     `json:"channel"`
	Verified      bool       `json:"verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// ToView maps a record to its redacted listing form
func (o *OTP) ToView() OTPRecordView {
	return OTPRecordView{
		ID:            o.ID.Hex(),
		Target:        o.Target,
		Channel:       o.Channel,
		Verified:      o.Verified,
		VerifiedAt:    o.VerifiedAt,
		CorrelationID: o.CorrelationID,
		CreatedAt:     o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
	}
}

// OTPStats aggregates issuance and verification counts for a project
type OTPStats struct {
	Total      int64            `json:"total"`
	Verified   int64            `json:"verified"`
	Unverified int64            `json:"unverified"`
	ByChannel  map[string]int64 `json:"by_channel"`
}
