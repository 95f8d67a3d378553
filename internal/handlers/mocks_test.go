package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/sse"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJWTService struct {
	mock.Mock
}

func (m *mockJWTService) GenerateTokenPair(userID uuid.UUID, email string) (*services.TokenPair, error) {
	args := m.Called(userID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *mockJWTService) ValidateRefreshToken(token string) (uuid.UUID, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockJWTService) AccessExpiry() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func (m *mockJWTService) RefreshExpiry() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

type mockCommunityService struct {
	mock.Mock
}

func (m *mockCommunityService) List(ctx context.Context) ([]models.Community, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Community), args.Error(1)
}

func (m *mockCommunityService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Community, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Community), args.Error(1)
}

func (m *mockCommunityService) GetByID(ctx context.Context, id string) (*models.Community, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *mockCommunityService) Create(ctx context.Context, c *models.Community) (*models.Community, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *mockCommunityService) Update(ctx context.Context, c *models.Community) (*models.Community, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *mockCommunityService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCommunityService) Records(ctx context.Context, c *models.Community, provisional bool) ([]models.RecordSummary, error) {
	args := m.Called(ctx, c, provisional)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecordSummary), args.Error(1)
}

type mockCurationService struct {
	mock.Mock
}

func (m *mockCurationService) Curate(ctx context.Context, req services.CurateRequest) (*services.CurateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CurateResult), args.Error(1)
}

type mockHub struct {
	mock.Mock
}

func (m *mockHub) Register(client *sse.Client) {
	m.Called(client)
}

func (m *mockHub) Unregister(client *sse.Client) {
	m.Called(client)
}

func newTestJWTService() *services.JWTService {
	return services.NewJWTService("test-secret-key", 15*time.Minute, 24*time.Hour)
}

func generateTestToken(t *testing.T, jwtSvc *services.JWTService, userID uuid.UUID, email string) string {
	t.Helper()
	pair, err := jwtSvc.GenerateTokenPair(userID, email)
	require.NoError(t, err)
	return pair.AccessToken
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
