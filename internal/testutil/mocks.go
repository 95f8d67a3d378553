package testutil

import (
	"context"
	"time"

	"github.com/dimitrije/communities/internal/altmetric"
	"github.com/dimitrije/communities/internal/marc"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/oauth"
	"github.com/dimitrije/communities/internal/upload"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserService mocks the UserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.User, error) {
	args := m.Called(ctx, info)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Update(ctx context.Context, id uuid.UUID, name string) (*models.User, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockTokenService mocks the TokenService
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockTokenService) ValidateRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockTokenService) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *MockTokenService) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockIndex mocks the record index
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Search(ctx context.Context, pattern, field string) ([]int, error) {
	args := m.Called(ctx, pattern, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockIndex) FieldValues(ctx context.Context, recid int, field string) ([]string, error) {
	args := m.Called(ctx, recid, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockIndex) BulkFieldValues(ctx context.Context, recids []int, field string) (map[int][]string, error) {
	args := m.Called(ctx, recids, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int][]string), args.Error(1)
}

func (m *MockIndex) Fields(ctx context.Context, recid int, tag string) ([]marc.DataField, error) {
	args := m.Called(ctx, recid, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marc.DataField), args.Error(1)
}

// MockMetrics mocks the Altmetric client
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) LookupDOI(ctx context.Context, doi string) (*altmetric.Citation, error) {
	args := m.Called(ctx, doi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*altmetric.Citation), args.Error(1)
}

// MockSubmitter mocks the upload pipeline client
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, record *marc.Record, mode upload.Mode) error {
	args := m.Called(ctx, record, mode)
	return args.Error(0)
}

// MockReporter mocks the admin alert channel
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(ctx context.Context, err error, alertAdmin bool) {
	m.Called(ctx, err, alertAdmin)
}

// MockBroadcaster mocks the curation event hub
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastCuration(communityID string, recid int, action string, actor uuid.UUID) {
	m.Called(communityID, recid, action, actor)
}

// HasDataField matches a record delta carrying the given subfield value.
func HasDataField(path, value string) interface{} {
	return mock.MatchedBy(func(r *marc.Record) bool {
		p, err := marc.ParseFieldPath(path)
		if err != nil {
			return false
		}
		return marc.Contains(r.Values(p), value)
	})
}
