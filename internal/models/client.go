package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client represents a tenant account that owns projects and an API key
type Client struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name               string             `bson:"name" json:"name"`
	Email              string             `bson:"email" json:"email"`
	APIKey             string             `bson:"api_key" json:"-"`
	IsActive           bool               `bson:"is_active" json:"is_active"`
	RateLimitPerMinute int                `bson:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// ClientCreateRequest represents the request body for creating a client
type ClientCreateRequest struct {
	Name               string `json:"name" binding:"required"`
	Email              string `json:"email" binding:"required,email"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" binding:"omitempty,min=1,max=100"`
}

// ClientActiveRequest represents the request body for toggling a client
type ClientActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ClientResponse represents a client in API responses, with the API key
// included only on creation
type ClientResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	APIKey             string    `json:"api_key,omitempty"`
	IsActive           bool      `json:"is_active"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ToResponse maps a client document to an API response
func (c *Client) ToResponse(includeKey bool) ClientResponse {
	resp := ClientResponse{
		ID:                 c.ID.Hex(),
		Name:               c.Name,
		Email:              c.Email,
		IsActive:           c.IsActive,
		RateLimitPerMinute: c.RateLimitPerMinute,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if includeKey {
		resp.APIKey = c.APIKey
	}
	return resp
}
