package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/marc"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/upload"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
)

var (
	ErrCommunityNotFound = errors.New("community not found")
	ErrCommunityExists   = errors.New("community identifier already taken")
	ErrNothingToChange   = errors.New("record membership already in requested state")
)

const communityColumns = `id, owner_id, title, description, curation_policy, page, created_at, updated_at`

type CommunityService struct {
	db       *database.DB
	index    records.Index
	uploader upload.Submitter
	log      *slog.Logger
}

func NewCommunityService(db *database.DB, index records.Index, uploader upload.Submitter, logger *slog.Logger) *CommunityService {
	return &CommunityService{
		db:       db,
		index:    index,
		uploader: uploader,
		log:      logger.With("component", "communities"),
	}
}

func (s *CommunityService) List(ctx context.Context) ([]models.Community, error) {
	var out []models.Community
	err := pgxscan.Select(ctx, s.db.Pool, &out, `
		SELECT `+communityColumns+`
		FROM communities
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	return out, nil
}

func (s *CommunityService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Community, error) {
	var out []models.Community
	err := pgxscan.Select(ctx, s.db.Pool, &out, `
		SELECT `+communityColumns+`
		FROM communities
		WHERE owner_id = $1
		ORDER BY title
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities of %s: %w", ownerID, err)
	}
	return out, nil
}

func (s *CommunityService) GetByID(ctx context.Context, id string) (*models.Community, error) {
	var c models.Community
	err := pgxscan.Get(ctx, s.db.Pool, &c, `
		SELECT `+communityColumns+`
		FROM communities
		WHERE id = $1
	`, id)
	if pgxscan.NotFound(err) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community %s: %w", id, err)
	}
	return &c, nil
}

func (s *CommunityService) Create(ctx context.Context, c *models.Community) (*models.Community, error) {
	var created models.Community
	err := pgxscan.Get(ctx, s.db.Pool, &created, `
		INSERT INTO communities (id, owner_id, title, description, curation_policy, page)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+communityColumns,
		c.ID, c.OwnerID, c.Title, c.Description, c.CurationPolicy, c.Page)
	if pgxscan.NotFound(err) {
		return nil, ErrCommunityExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}

	s.log.InfoContext(ctx, "community created", "community", created.ID, "owner", created.OwnerID)
	return &created, nil
}

// Update rewrites the editable fields. The identifier and owner are fixed.
func (s *CommunityService) Update(ctx context.Context, c *models.Community) (*models.Community, error) {
	var updated models.Community
	err := pgxscan.Get(ctx, s.db.Pool, &updated, `
		UPDATE communities
		SET title = $2, description = $3, curation_policy = $4, page = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+communityColumns,
		c.ID, c.Title, c.Description, c.CurationPolicy, c.Page)
	if pgxscan.NotFound(err) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update community %s: %w", c.ID, err)
	}
	return &updated, nil
}

// Delete removes the community. Records keep their 980 values; they are
// simply no longer listed anywhere.
func (s *CommunityService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM communities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete community %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCommunityNotFound
	}

	s.log.InfoContext(ctx, "community deleted", "community", id)
	return nil
}

// Records lists member records, accepted or pending, with their titles.
func (s *CommunityService) Records(ctx context.Context, c *models.Community, provisional bool) ([]models.RecordSummary, error) {
	ids, err := s.index.Search(ctx, c.CollectionName(provisional), records.FieldCollection)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.RecordSummary{}, nil
	}

	titles, err := s.index.BulkFieldValues(ctx, ids, records.FieldTitle)
	if err != nil {
		return nil, err
	}

	out := make([]models.RecordSummary, 0, len(ids))
	for _, id := range ids {
		summary := models.RecordSummary{RecID: id}
		if t := titles[id]; len(t) > 0 {
			summary.Title = t[0]
		}
		out = append(out, summary)
	}
	return out, nil
}

// AcceptRecord turns a pending membership into an accepted one.
func (s *CommunityService) AcceptRecord(ctx context.Context, c *models.Community, recid int) error {
	provisional := c.CollectionName(true)
	accepted := c.CollectionName(false)

	return s.modifyMembership(ctx, recid, func(colls []string) ([]string, bool) {
		next := make([]string, 0, len(colls))
		dirty := false
		for _, v := range colls {
			if v == provisional {
				dirty = true
				continue
			}
			next = append(next, v)
		}
		if !dirty {
			return colls, false
		}
		if !marc.Contains(next, accepted) {
			next = append(next, accepted)
		}
		return next, true
	})
}

// RejectRecord drops both the pending and the accepted membership.
func (s *CommunityService) RejectRecord(ctx context.Context, c *models.Community, recid int) error {
	provisional := c.CollectionName(true)
	accepted := c.CollectionName(false)

	return s.modifyMembership(ctx, recid, func(colls []string) ([]string, bool) {
		next := make([]string, 0, len(colls))
		for _, v := range colls {
			if v != provisional && v != accepted {
				next = append(next, v)
			}
		}
		return next, len(next) != len(colls)
	})
}

func (s *CommunityService) modifyMembership(ctx context.Context, recid int, change func([]string) ([]string, bool)) error {
	fields, err := s.index.Fields(ctx, recid, records.CollectionTag)
	if err != nil {
		return err
	}

	var colls []string
	for _, f := range fields {
		for _, sf := range f.Subfields {
			if sf.Code == collectionCode {
				colls = append(colls, sf.Value)
			}
		}
	}

	next, dirty := change(colls)
	if !dirty {
		return ErrNothingToChange
	}

	// Correct mode replaces every 980 of the record with the ones sent.
	delta := marc.NewDelta(recid)
	delta.DataFields = append(delta.DataFields, membershipFields(fields, next)...)
	if len(delta.DataFields) == 0 {
		delta.AddField(records.CollectionTag, "", "", marc.Sub(collectionCode, ""))
	}

	if err := s.uploader.Submit(ctx, delta, upload.ModeCorrect); err != nil {
		return fmt.Errorf("failed to submit membership change for record %d: %w", recid, err)
	}

	s.log.InfoContext(ctx, "membership change submitted", "recid", recid, "collections", next)
	return nil
}

const collectionCode = "a"

// membershipFields rewrites the collection fields so that their $a values
// are exactly colls. Other subfields stay where they were, a field left
// empty is dropped and new values get a field of their own.
func membershipFields(fields []marc.DataField, colls []string) []marc.DataField {
	want := make(map[string]bool, len(colls))
	for _, v := range colls {
		want[v] = true
	}

	out := make([]marc.DataField, 0, len(fields)+1)
	for _, f := range fields {
		kept := marc.DataField{Tag: f.Tag, Ind1: f.Ind1, Ind2: f.Ind2}
		for _, sf := range f.Subfields {
			if sf.Code == collectionCode {
				if !want[sf.Value] {
					continue
				}
				delete(want, sf.Value)
			}
			kept.Subfields = append(kept.Subfields, sf)
		}
		if len(kept.Subfields) > 0 {
			out = append(out, kept)
		}
	}

	for _, v := range colls {
		if want[v] {
			out = append(out, marc.DataField{
				Tag:       records.CollectionTag,
				Ind1:      " ",
				Ind2:      " ",
				Subfields: []marc.Subfield{marc.Sub(collectionCode, v)},
			})
			delete(want, v)
		}
	}
	return out
}
