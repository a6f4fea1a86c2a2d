package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Default limits for new projects
const (
	DefaultProjectTokens       = 20
	DefaultRateLimitPerMinute  = 5
	DefaultOTPExpirationSecond = 300
)

// Project is the tenant scope that owns a token budget, delivery templates
// and OTP configuration
type Project struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID           string             `bson:"project_id" json:"project_id"`
	ClientID            primitive.ObjectID `bson:"client_id" json:"client_id"`
	Name                string             `bson:"name" json:"name"`
	Description         string             `bson:"description,omitempty" json:"description,omitempty"`
	IsActive            bool               `bson:"is_active" json:"is_active"`
	HasUnlimitedTokens  bool               `bson:"has_unlimited_tokens" json:"has_unlimited_tokens"`
	IsProduction        bool               `bson:"is_production" json:"is_production"`
	Tokens              int64              `bson:"tokens" json:"tokens"`
	TokensUsed          int64              `bson:"tokens_used" json:"tokens_used"`
	RateLimitPerMinute  int                `bson:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	OTPExpirationSecond int                `bson:"otp_expiration_seconds" json:"otp_expiration_seconds"`
	EmailTemplate       EmailTemplate      `bson:"email_template" json:"email_template"`
	WhatsAppTemplate    WhatsAppTemplate   `bson:"whatsapp_template" json:"whatsapp_template"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// RemainingTokens returns the unconsumed token balance, -1 when unlimited
func (p *Project) RemainingTokens() int64 {
	if p.HasUnlimitedTokens {
		return -1
	}
	return p.Tokens - p.TokensUsed
}

// OTPExpiration returns the configured code lifetime
func (p *Project) OTPExpiration() time.Duration {
	return time.Duration(p.OTPExpirationSecond) * time.Second
}

// OTPExpirationMinutes returns the code lifetime rounded to whole minutes,
// as rendered into message templates
func (p *Project) OTPExpirationMinutes() int {
	return (p.OTPExpirationSecond + 30) / 60
}

// ProjectCreateRequest represents the request body for creating a project
type ProjectCreateRequest struct {
	Name                string            `json:"name" binding:"required"`
	Description         string            `json:"description"`
	Tokens              int64             `json:"tokens" binding:"omitempty,min=0"`
	RateLimitPerMinute  int               `json:"rate_limit_per_minute" binding:"omitempty,min=1,max=100"`
	OTPExpirationSecond int               `json:"otp_expiration_seconds" binding:"omitempty,min=60,max=3600"`
	EmailTemplate       *EmailTemplate    `json:"email_template"`
	WhatsAppTemplate    *WhatsAppTemplate `json:"whatsapp_template"`
}

// ProjectUpdateRequest represents the request body for updating a project
type ProjectUpdateRequest struct {
	Name                *string           `json:"name"`
	Description         *string           `json:"description"`
	RateLimitPerMinute  *int              `json:"rate_limit_per_minute" binding:"omitempty,min=1,max=100"`
	OTPExpirationSecond *int              `json:"otp_expiration_seconds" binding:"omitempty,min=60,max=3600"`
	EmailTemplate       *EmailTemplate    `json:"email_template"`
	WhatsAppTemplate    *WhatsAppTemplate `json:"whatsapp_template"`
	IsProduction        *bool             `json:"is_production"`
}

// AddTokensRequest represents the request body for granting tokens
type AddTokensRequest struct {
	Tokens int64 `json:"tokens" binding:"required,min=1"`
}

// ProjectActiveRequest represents the request body for toggling a project
type ProjectActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ProjectResponse represents a project in API responses
type ProjectResponse struct {
	ID                   string           `json:"id"`
	ProjectID            string           `json:"project_id"`
	ClientID             string           `json:"client_id"`
	Name                 string           `json:"name"`
	Description          string           `json:"description,omitempty"`
	IsActive             bool             `json:"is_active"`
	HasUnlimitedTokens   bool             `json:"has_unlimited_tokens"`
	IsProduction         bool             `json:"is_production"`
	Tokens               int64            `json:"tokens"`
	TokensUsed           int64            `json:"tokens_used"`
	RemainingTokens      int64            `json:"remaining_tokens"`
	RateLimitPerMinute   int              `json:"rate_limit_per_minute"`
	OTPExpirationSecond  int              `json:"otp_expiration_seconds"`
	OTPExpirationMinutes int              `json:"otp_expiration_minutes"`
	EmailTemplate        EmailTemplate    `json:"email_template"`
	WhatsAppTemplate     WhatsAppTemplate `json:"whatsapp_template"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// ToResponse maps a project document to an API response
func (p *Project) ToResponse() ProjectResponse {
	return ProjectResponse{
		ID:                   p.ID.Hex(),
		ProjectID:            p.ProjectID,
		ClientID:             p.ClientID.Hex(),
		Name:                 p.Name,
		Description:          p.Description,
		IsActive:             p.IsActive,
		HasUnlimitedTokens:   p.HasUnlimitedTokens,
		IsProduction:         p.IsProduction,
		Tokens:               p.Tokens,
		TokensUsed:           p.TokensUsed,
		RemainingTokens:      p.RemainingTokens(),
		RateLimitPerMinute:   p.RateLimitPerMinute,
		OTPExpirationSecond:  p.OTPExpirationSecond,
		OTPExpirationMinutes: p.OTPExpirationMinutes(),
		EmailTemplate:        p.EmailTemplate,
		WhatsAppTemplate:     p.WhatsAppTemplate,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}
