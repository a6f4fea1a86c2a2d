package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ProjectService manages projects: the unit that owns a token budget, an OTP
// expiration policy and the message templates
type ProjectService struct {
	projects *mongo.Collection
}

// NewProjectService creates a project service
func NewProjectService(projects *mongo.Collection) *ProjectService {
	return &ProjectService{projects: projects}
}

// generateProjectID produces the public project identifier used in OTP
// endpoints, distinct from the Mongo _id
func generateProjectID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "PRJ_" + raw[:12]
}

// Create registers a new project for the client with the configured defaults
func (s *ProjectService) Create(ctx context.Context, clientID primitive.ObjectID, req models.ProjectCreateRequest) (*models.Project, error) {
	now := time.Now()
	project := &models.Project{
		ID:                  primitive.NewObjectID(),
		ProjectID:           generateProjectID(),
		ClientID:            clientID,
		Name:                req.Name,
		Description:         req.Description,
		IsActive:            true,
		Tokens:              models.DefaultProjectTokens,
		RateLimitPerMinute:  models.DefaultRateLimitPerMinute,
		OTPExpirationSecond: defaultOTPExpirationSeconds(),
		EmailTemplate:       models.DefaultEmailTemplate(),
		WhatsAppTemplate:    models.DefaultWhatsAppTemplate(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Tokens > 0 {
		project.Tokens = req.Tokens
	}
	if req.RateLimitPerMinute > 0 {
		project.RateLimitPerMinute = req.RateLimitPerMinute
	}
	if req.OTPExpirationSecond > 0 {
		project.OTPExpirationSecond = req.OTPExpirationSecond
	}
	if req.EmailTemplate != nil {
		project.EmailTemplate = *req.EmailTemplate
	}
	if req.WhatsAppTemplate != nil {
		project.WhatsAppTemplate = *req.WhatsAppTemplate
	}

	if _, err := s.projects.InsertOne(ctx, project); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			project.ProjectID = generateProjectID()
			if _, err := s.projects.InsertOne(ctx, project); err != nil {
				return nil, fmt.Errorf("failed to create project: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}
	}

	logging.Logger.Info("project created",
		zap.String("project_id", project.ProjectID),
		zap.String("client_id", clientID.Hex()),
		zap.Int64("tokens", project.Tokens))

	return project, nil
}

// defaultOTPExpirationSeconds returns the service-wide code lifetime for
// projects created without an explicit otp_expiration_seconds
func defaultOTPExpirationSeconds() int {
	if config.AppConfig != nil && config.AppConfig.OTPExpiration > 0 {
		return int(config.AppConfig.OTPExpiration / time.Second)
	}
	return models.DefaultOTPExpirationSecond
}

// GetByProjectID returns a project by its public identifier
func (s *ProjectService) GetByProjectID(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	err := s.projects.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}

// ResolveForOTP loads a project for an OTP operation on behalf of a client.
// Ownership is checked before the active flag so a foreign project id never
// leaks whether it exists in another tenant.
func (s *ProjectService) ResolveForOTP(ctx context.Context, projectID string, clientID primitive.ObjectID) (*models.Project, error) {
	project, err := s.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != clientID {
		return nil, models.ErrNotOwned
	}
	if !project.IsActive {
		return nil, models.ErrProjectInactive
	}
	return project, nil
}

// RateLimitOverride returns the per-minute request limit configured on the
// project, or 0 when the project has none or cannot serve the client. Lookup
// failures fall back to the client-level limit rather than blocking the
// request; the handler reports them properly afterwards.
func (s *ProjectService) RateLimitOverride(ctx context.Context, clientID primitive.ObjectID, projectID string) int {
	project, err := s.ResolveForOTP(ctx, projectID, clientID)
	if err != nil {
		return 0
	}
	return project.RateLimitPerMinute
}

// List returns the client's projects, newest first
func (s *ProjectService) List(ctx context.Context, clientID primitive.ObjectID) ([]models.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.projects.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// Update applies the mutable project settings
func (s *ProjectService) Update(ctx context.Context, projectID string, clientID primitive.ObjectID, req models.ProjectUpdateRequest) (*models.Project, error) {
	set := bson.M{"updated_at": time.Now()}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.RateLimitPerMinute != nil {
		set["rate_limit_per_minute"] = *req.RateLimitPerMinute
	}
	if req.OTPExpirationSecond != nil {
		set["otp_expiration_seconds"] = *req.OTPExpirationSecond
	}
	if req.EmailTemplate != nil {
		set["email_template"] = *req.EmailTemplate
	}
	if req.WhatsAppTemplate != nil {
		set["whatsapp_template"] = *req.WhatsAppTemplate
	}
	if req.IsProduction != nil {
		set["is_production"] = *req.IsProduction
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"project_id": projectID, "client_id": clientID}

	var project models.Project
	err := s.projects.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.notFoundOrForeign(ctx, projectID)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return &project, nil
}

// AddTokens credits tokens to the project budget
func (s *ProjectService) AddTokens(ctx context.Context, projectID string, clientID primitive.ObjectID, amount int64) (*models.Project, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidTokens
	}

	update := bson.M{
		"$inc": bson.M{"tokens": amount},
		"$set": bson.M{"updated_at": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"project_id": projectID, "client_id": clientID}

	var project models.Project
	err := s.projects.FindOneAndUpdate(ctx, filter, update, opts).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.notFoundOrForeign(ctx, projectID)
		}
		return nil, fmt.Errorf("failed to add tokens: %w", err)
	}

	logging.Logger.Info("tokens added",
		zap.String("project_id", projectID),
		zap.Int64("amount", amount),
		zap.Int64("tokens", project.Tokens))

	return &project, nil
}

// SetActive toggles a project's active flag
func (s *ProjectService) SetActive(ctx context.Context, projectID string, clientID primitive.ObjectID, active bool) (*models.Project, error) {
	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"project_id": projectID, "client_id": clientID}

	var project models.Project
	err := s.projects.FindOneAndUpdate(ctx, filter, update, opts).Decode(&project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.notFoundOrForeign(ctx, projectID)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return &project, nil
}

// notFoundOrForeign distinguishes a missing project from one owned by another
// client, keeping the two cases on distinct errors for the handler layer
func (s *ProjectService) notFoundOrForeign(ctx context.Context, projectID string) error {
	count, err := s.projects.CountDocuments(ctx, bson.M{"project_id": projectID})
	if err == nil && count > 0 {
		return models.ErrNotOwned
	}
	return models.ErrProjectNotFound
}
