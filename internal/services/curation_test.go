package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/communities/internal/cache"
	"github.com/dimitrije/communities/internal/logging"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCommunities struct {
	mock.Mock
}

func (m *mockCommunities) GetByID(ctx context.Context, id string) (*models.Community, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *mockCommunities) AcceptRecord(ctx context.Context, c *models.Community, recid int) error {
	return m.Called(ctx, c, recid).Error(0)
}

func (m *mockCommunities) RejectRecord(ctx context.Context, c *models.Community, recid int) error {
	return m.Called(ctx, c, recid).Error(0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type curationFixture struct {
	svc         *CurationService
	communities *mockCommunities
	index       *testutil.MockIndex
	events      *testutil.MockBroadcaster
	store       *cache.MemoryStore
	clock       *testClock
	community   *models.Community
}

const curateTTL = 5 * time.Minute

func setupCurationService(t *testing.T) *curationFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(cache.WithClock(clock.Now))

	communities := &mockCommunities{}
	index := &testutil.MockIndex{}
	events := &testutil.MockBroadcaster{}
	t.Cleanup(func() {
		communities.AssertExpectations(t)
		index.AssertExpectations(t)
		events.AssertExpectations(t)
	})

	community := &models.Community{ID: "astro", OwnerID: uuid.New(), Title: "Astro"}

	return &curationFixture{
		svc:         NewCurationService(communities, index, store, curateTTL, events, logging.Discard()),
		communities: communities,
		index:       index,
		events:      events,
		store:       store,
		clock:       clock,
		community:   community,
	}
}

func (f *curationFixture) ownerRequest(action string, recid int) CurateRequest {
	return CurateRequest{
		Action:      action,
		CommunityID: f.community.ID,
		RecID:       recid,
		UserID:      f.community.OwnerID,
		Email:       "owner@example.com",
	}
}

func TestCurate_InvalidAction(t *testing.T) {
	f := setupCurationService(t)

	_, err := f.svc.Curate(context.Background(), f.ownerRequest("approve", 1))

	assert.ErrorIs(t, err, ErrInvalidAction)
	f.communities.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	_, found, _ := f.store.Get(context.Background(), curateKey("astro", 1))
	assert.False(t, found)
}

func TestCurate_InvalidRecord(t *testing.T) {
	f := setupCurationService(t)

	_, err := f.svc.Curate(context.Background(), f.ownerRequest(ActionAccept, 0))

	assert.ErrorIs(t, err, ErrInvalidRecord)
	f.communities.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCurate_UnknownCommunity(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(nil, ErrCommunityNotFound)

	_, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 1))

	assert.ErrorIs(t, err, ErrCommunityNotFound)
}

func TestCurate_AcceptRequiresOwner(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)

	req := f.ownerRequest(ActionAccept, 1)
	req.UserID = uuid.New()
	_, err := f.svc.Curate(ctx, req)

	assert.ErrorIs(t, err, ErrForbidden)
	f.communities.AssertNotCalled(t, "AcceptRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestCurate_AcceptTwice(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID).Once()

	first, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true}, first)

	second, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true, Cached: true}, second)

	f.communities.AssertNumberOfCalls(t, "AcceptRecord", 1)
}

func TestCurate_AcceptThenRejectConflicts(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID).Once()

	_, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)

	res, err := f.svc.Curate(ctx, f.ownerRequest(ActionReject, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: false, Cached: true}, res)

	f.communities.AssertNotCalled(t, "RejectRecord", mock.Anything, mock.Anything, mock.Anything)
	value, found, _ := f.store.Get(ctx, curateKey("astro", 5))
	assert.True(t, found)
	assert.Equal(t, ActionAccept, value)
}

func TestCurate_RejectThenAccept(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("RejectRecord", ctx, f.community, 5).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 5, ActionReject, f.community.OwnerID).Once()

	_, err := f.svc.Curate(ctx, f.ownerRequest(ActionReject, 5))
	require.NoError(t, err)

	res, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true, Cached: true}, res)
	f.communities.AssertNotCalled(t, "AcceptRecord", mock.Anything, mock.Anything, mock.Anything)

	// Once the entry expires the accept goes through.
	f.clock.Advance(curateTTL)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID).Once()

	res, err = f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true}, res)
}

func TestCurate_WindowStartsAfterTransition(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil).Once().
		Run(func(mock.Arguments) { f.clock.Advance(4*time.Minute + 50*time.Second) })
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID).Once()

	res, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true}, res)

	// Past the reservation's expiry but well inside the window of the completed accept.
	f.clock.Advance(20 * time.Second)

	res, err = f.svc.Curate(ctx, f.ownerRequest(ActionReject, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: false, Cached: true}, res)
	f.communities.AssertNotCalled(t, "RejectRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestCurate_FailedTransitionReleasesKey(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(ErrNothingToChange).Once()

	res, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))

	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: false}, res)
	_, found, _ := f.store.Get(ctx, curateKey("astro", 5))
	assert.False(t, found)
	f.events.AssertNotCalled(t, "BroadcastCuration", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// A retry is a fresh attempt.
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID).Once()

	res, err = f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
	require.NoError(t, err)
	assert.Equal(t, &CurateResult{Success: true}, res)
}

func TestCurate_RemoveBySubmitter(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()
	submitter := uuid.New()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.index.On("FieldValues", ctx, 8, records.FieldContactEmail).
		Return([]string{" author@example.com ", "other@example.com"}, nil)
	f.communities.On("RejectRecord", ctx, f.community, 8).Return(nil).Once()
	f.events.On("BroadcastCuration", "astro", 8, ActionRemove, submitter).Once()

	res, err := f.svc.Curate(ctx, CurateRequest{
		Action:      ActionRemove,
		CommunityID: "astro",
		RecID:       8,
		UserID:      submitter,
		Email:       "author@example.com",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCurate_RemoveByStranger(t *testing.T) {
	tests := []struct {
		name   string
		emails []string
		email  string
	}{
		{"different email", []string{"author@example.com"}, "someone@example.com"},
		{"no contact email on record", []string{}, "someone@example.com"},
		{"requester has no email", []string{"author@example.com"}, ""},
		{"email differs in case", []string{"Author@Example.com"}, "author@example.com"},
		{"only first contact counts", []string{"author@example.com", "someone@example.com"}, "someone@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupCurationService(t)
			ctx := context.Background()

			f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
			f.index.On("FieldValues", ctx, 8, records.FieldContactEmail).Return(tt.emails, nil)

			_, err := f.svc.Curate(ctx, CurateRequest{
				Action:      ActionRemove,
				CommunityID: "astro",
				RecID:       8,
				UserID:      uuid.New(),
				Email:       tt.email,
			})

			assert.ErrorIs(t, err, ErrForbidden)
			f.communities.AssertNotCalled(t, "RejectRecord", mock.Anything, mock.Anything, mock.Anything)
			_, found, _ := f.store.Get(ctx, curateKey("astro", 8))
			assert.False(t, found)
		})
	}
}

func TestCurate_RemoveIndexError(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.index.On("FieldValues", ctx, 8, records.FieldContactEmail).Return(nil, errors.New("index down"))

	_, err := f.svc.Curate(ctx, CurateRequest{Action: ActionRemove, CommunityID: "astro", RecID: 8, Email: "a@b.c"})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestCurate_ConcurrentAcceptsMutateOnce(t *testing.T) {
	f := setupCurationService(t)
	ctx := context.Background()

	f.communities.On("GetByID", ctx, "astro").Return(f.community, nil)
	f.communities.On("AcceptRecord", ctx, f.community, 5).Return(nil)
	f.events.On("BroadcastCuration", "astro", 5, ActionAccept, f.community.OwnerID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Curate(ctx, f.ownerRequest(ActionAccept, 5))
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	f.communities.AssertNumberOfCalls(t, "AcceptRecord", 1)
}

func TestCachedResult(t *testing.T) {
	tests := []struct {
		existing string
		action   string
		success  bool
	}{
		{ActionAccept, ActionAccept, true},
		{ActionAccept, ActionReject, false},
		{ActionAccept, ActionRemove, false},
		{ActionReject, ActionAccept, true},
		{ActionReject, ActionRemove, true},
		{ActionRemove, ActionAccept, true},
		{ActionRemove, ActionRemove, true},
	}

	for _, tt := range tests {
		t.Run(tt.existing+"_"+tt.action, func(t *testing.T) {
			res := cachedResult(tt.existing, tt.action)
			assert.Equal(t, tt.success, res.Success)
			assert.True(t, res.Cached)
		})
	}
}
