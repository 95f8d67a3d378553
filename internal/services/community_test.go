package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/logging"
	"github.com/dimitrije/communities/internal/marc"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/testutil"
	"github.com/dimitrije/communities/internal/upload"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var communityRowColumns = []string{"id", "owner_id", "title", "description", "curation_policy", "page", "created_at", "updated_at"}

type communityFixture struct {
	svc      *CommunityService
	db       pgxmock.PgxPoolIface
	index    *testutil.MockIndex
	uploader *testutil.MockSubmitter
}

func setupCommunityService(t *testing.T) *communityFixture {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	index := &testutil.MockIndex{}
	uploader := &testutil.MockSubmitter{}
	t.Cleanup(func() {
		index.AssertExpectations(t)
		uploader.AssertExpectations(t)
	})

	db := &database.DB{Pool: pool}
	return &communityFixture{
		svc:      NewCommunityService(db, index, uploader, logging.Discard()),
		db:       pool,
		index:    index,
		uploader: uploader,
	}
}

func communityRow(c *models.Community) *pgxmock.Rows {
	return pgxmock.NewRows(communityRowColumns).
		AddRow(c.ID, c.OwnerID, c.Title, c.Description, c.CurationPolicy, c.Page, c.CreatedAt, c.UpdatedAt)
}

func newCommunity(id string) *models.Community {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Community{
		ID:             id,
		OwnerID:        uuid.New(),
		Title:          "Title of " + id,
		Description:    "A community",
		CurationPolicy: "Anything about " + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCommunityService_GetByID(t *testing.T) {
	f := setupCommunityService(t)
	want := newCommunity("astro")

	f.db.ExpectQuery(`SELECT .* FROM communities WHERE id = \$1`).
		WithArgs("astro").
		WillReturnRows(communityRow(want))

	got, err := f.svc.GetByID(context.Background(), "astro")

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestCommunityService_GetByID_NotFound(t *testing.T) {
	f := setupCommunityService(t)

	f.db.ExpectQuery(`SELECT .* FROM communities WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := f.svc.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrCommunityNotFound)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestCommunityService_GetByID_DatabaseError(t *testing.T) {
	f := setupCommunityService(t)

	f.db.ExpectQuery(`SELECT .* FROM communities`).
		WithArgs("astro").
		WillReturnError(errors.New("connection refused"))

	_, err := f.svc.GetByID(context.Background(), "astro")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCommunityNotFound)
}

func TestCommunityService_List(t *testing.T) {
	f := setupCommunityService(t)
	a, b := newCommunity("alpha"), newCommunity("beta")

	rows := pgxmock.NewRows(communityRowColumns).
		AddRow(a.ID, a.OwnerID, a.Title, a.Description, a.CurationPolicy, a.Page, a.CreatedAt, a.UpdatedAt).
		AddRow(b.ID, b.OwnerID, b.Title, b.Description, b.CurationPolicy, b.Page, b.CreatedAt, b.UpdatedAt)
	f.db.ExpectQuery(`SELECT .* FROM communities ORDER BY title`).WillReturnRows(rows)

	got, err := f.svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].ID)
	assert.Equal(t, "beta", got[1].ID)
}

func TestCommunityService_ListByOwner(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("mine")

	f.db.ExpectQuery(`WHERE owner_id = \$1`).
		WithArgs(c.OwnerID).
		WillReturnRows(communityRow(c))

	got, err := f.svc.ListByOwner(context.Background(), c.OwnerID)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.OwnerID, got[0].OwnerID)
}

func TestCommunityService_Create(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("physics")

	f.db.ExpectQuery(`INSERT INTO communities`).
		WithArgs(c.ID, c.OwnerID, c.Title, c.Description, c.CurationPolicy, c.Page).
		WillReturnRows(communityRow(c))

	got, err := f.svc.Create(context.Background(), c)

	require.NoError(t, err)
	assert.Equal(t, "physics", got.ID)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestCommunityService_Create_DuplicateID(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("physics")

	// ON CONFLICT DO NOTHING returns no row for a taken identifier.
	f.db.ExpectQuery(`INSERT INTO communities`).
		WithArgs(c.ID, c.OwnerID, c.Title, c.Description, c.CurationPolicy, c.Page).
		WillReturnRows(pgxmock.NewRows(communityRowColumns))

	_, err := f.svc.Create(context.Background(), c)

	assert.ErrorIs(t, err, ErrCommunityExists)
}

func TestCommunityService_Update_NotFound(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("gone")

	f.db.ExpectQuery(`UPDATE communities`).
		WithArgs(c.ID, c.Title, c.Description, c.CurationPolicy, c.Page).
		WillReturnError(pgx.ErrNoRows)

	_, err := f.svc.Update(context.Background(), c)

	assert.ErrorIs(t, err, ErrCommunityNotFound)
}

func TestCommunityService_Delete(t *testing.T) {
	f := setupCommunityService(t)

	f.db.ExpectExec(`DELETE FROM communities WHERE id = \$1`).
		WithArgs("astro").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := f.svc.Delete(context.Background(), "astro")

	assert.NoError(t, err)
	assert.NoError(t, f.db.ExpectationsWereMet())
	// Records keep their collection values.
	f.index.AssertNotCalled(t, "Fields", mock.Anything, mock.Anything, mock.Anything)
	f.uploader.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommunityService_Delete_NotFound(t *testing.T) {
	f := setupCommunityService(t)

	f.db.ExpectExec(`DELETE FROM communities`).
		WithArgs("astro").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := f.svc.Delete(context.Background(), "astro")

	assert.ErrorIs(t, err, ErrCommunityNotFound)
}

func TestCommunityService_Records(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Search", ctx, "provisional-user-astro", records.FieldCollection).Return([]int{3, 7}, nil)
	f.index.On("BulkFieldValues", ctx, []int{3, 7}, records.FieldTitle).
		Return(map[int][]string{3: {"Dark matter"}}, nil)

	got, err := f.svc.Records(ctx, c, true)

	require.NoError(t, err)
	assert.Equal(t, []models.RecordSummary{
		{RecID: 3, Title: "Dark matter"},
		{RecID: 7},
	}, got)
}

func TestCommunityService_Records_Empty(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Search", ctx, "user-astro", records.FieldCollection).Return([]int{}, nil)

	got, err := f.svc.Records(ctx, c, false)

	require.NoError(t, err)
	assert.Empty(t, got)
	f.index.AssertNotCalled(t, "BulkFieldValues", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommunityService_AcceptRecord(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 42, records.CollectionTag).Return(collectionFields("ARTICLE", "provisional-user-astro"), nil)

	var sent *marc.Record
	f.uploader.On("Submit", ctx, mock.AnythingOfType("*marc.Record"), upload.ModeCorrect).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*marc.Record) }).
		Return(nil)

	err := f.svc.AcceptRecord(ctx, c, 42)

	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, 42, sent.RecID())
	path, _ := marc.ParseFieldPath(records.FieldCollection)
	assert.Equal(t, []string{"ARTICLE", "user-astro"}, sent.Values(path))
}

func TestCommunityService_AcceptRecord_KeepsOtherSubfields(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 42, records.CollectionTag).Return([]marc.DataField{
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "publication"), marc.Sub("b", "article")}},
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "provisional-user-astro")}},
	}, nil)

	var sent *marc.Record
	f.uploader.On("Submit", ctx, mock.AnythingOfType("*marc.Record"), upload.ModeCorrect).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*marc.Record) }).
		Return(nil)

	err := f.svc.AcceptRecord(ctx, c, 42)

	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, []marc.DataField{
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "publication"), marc.Sub("b", "article")}},
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "user-astro")}},
	}, sent.DataFields)
}

func TestCommunityService_RejectRecord_KeepsOtherSubfields(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 9, records.CollectionTag).Return([]marc.DataField{
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "publication"), marc.Sub("b", "article")}},
		{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", "user-astro")}},
	}, nil)
	f.uploader.On("Submit", ctx, testutil.HasDataField("980__b", "article"), upload.ModeCorrect).Return(nil)

	err := f.svc.RejectRecord(ctx, c, 9)

	require.NoError(t, err)
	f.uploader.AssertNotCalled(t, "Submit", ctx, testutil.HasDataField("980__a", "user-astro"), upload.ModeCorrect)
}

func TestCommunityService_AcceptRecord_NotPending(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 42, records.CollectionTag).Return(collectionFields("ARTICLE", "user-astro"), nil)

	err := f.svc.AcceptRecord(ctx, c, 42)

	assert.ErrorIs(t, err, ErrNothingToChange)
	f.uploader.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommunityService_RejectRecord(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 9, records.CollectionTag).Return(collectionFields("provisional-user-astro", "THESIS", "user-astro"), nil)

	var sent *marc.Record
	f.uploader.On("Submit", ctx, mock.AnythingOfType("*marc.Record"), upload.ModeCorrect).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*marc.Record) }).
		Return(nil)

	err := f.svc.RejectRecord(ctx, c, 9)

	require.NoError(t, err)
	path, _ := marc.ParseFieldPath(records.FieldCollection)
	assert.Equal(t, []string{"THESIS"}, sent.Values(path))
}

func TestCommunityService_RejectRecord_LastCollection(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 9, records.CollectionTag).Return(collectionFields("provisional-user-astro"), nil)
	f.uploader.On("Submit", ctx, testutil.HasDataField("980__a", ""), upload.ModeCorrect).Return(nil)

	err := f.svc.RejectRecord(ctx, c, 9)

	assert.NoError(t, err)
}

func TestCommunityService_RejectRecord_UploadFails(t *testing.T) {
	f := setupCommunityService(t)
	c := newCommunity("astro")
	ctx := context.Background()

	f.index.On("Fields", ctx, 9, records.CollectionTag).Return(collectionFields("user-astro", "ARTICLE"), nil)
	f.uploader.On("Submit", ctx, testutil.HasDataField("980__a", "ARTICLE"), upload.ModeCorrect).
		Return(&upload.Error{StatusCode: 503, Body: "busy"})

	err := f.svc.RejectRecord(ctx, c, 9)

	var upErr *upload.Error
	assert.ErrorAs(t, err, &upErr)
	assert.Equal(t, 503, upErr.StatusCode)
}

func collectionFields(values ...string) []marc.DataField {
	fields := make([]marc.DataField, 0, len(values))
	for _, v := range values {
		fields = append(fields, marc.DataField{Tag: "980", Ind1: " ", Ind2: " ", Subfields: []marc.Subfield{marc.Sub("a", v)}})
	}
	return fields
}
