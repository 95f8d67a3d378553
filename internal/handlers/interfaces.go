package handlers

import (
	"context"
	"time"

	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/oauth"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/sse"
	"github.com/google/uuid"
)

// UserServiceInterface defines the methods used by handlers from UserService
type UserServiceInterface interface {
	FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, name string) (*models.User, error)
}

// TokenServiceInterface defines the methods used by handlers from TokenService
type TokenServiceInterface interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ValidateRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
}

// JWTServiceInterface defines the methods used by handlers from JWTService
type JWTServiceInterface interface {
	GenerateTokenPair(userID uuid.UUID, email string) (*services.TokenPair, error)
	ValidateRefreshToken(token string) (uuid.UUID, error)
	AccessExpiry() time.Duration
	RefreshExpiry() time.Duration
}

// CommunityServiceInterface defines the methods used by handlers from CommunityService
type CommunityServiceInterface interface {
	List(ctx context.Context) ([]models.Community, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Community, error)
	GetByID(ctx context.Context, id string) (*models.Community, error)
	Create(ctx context.Context, c *models.Community) (*models.Community, error)
	Update(ctx context.Context, c *models.Community) (*models.Community, error)
	Delete(ctx context.Context, id string) error
	Records(ctx context.Context, c *models.Community, provisional bool) ([]models.RecordSummary, error)
}

type CurationServiceInterface interface {
	Curate(ctx context.Context, req services.CurateRequest) (*services.CurateResult, error)
}

type EventHubInterface interface {
	Register(client *sse.Client)
	Unregister(client *sse.Client)
}
