package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dimitrije/communities/internal/cache"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/records"
	"github.com/google/uuid"
)

const (
	ActionAccept = "accept"
	ActionReject = "reject"
	ActionRemove = "remove"

	curateKeyPrefix = "community_curate:"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidRecord = errors.New("invalid record id")
	ErrForbidden     = errors.New("not allowed to curate this record")
)

func ValidAction(action string) bool {
	switch action {
	case ActionAccept, ActionReject, ActionRemove:
		return true
	}
	return false
}

type CurateRequest struct {
	Action      string
	CommunityID string
	RecID       int
	UserID      uuid.UUID
	Email       string
}

type CurateResult struct {
	Success bool
	// Cached is set when the answer came from a live de-duplication entry
	// instead of a fresh transition.
	Cached bool
}

type curationCommunities interface {
	GetByID(ctx context.Context, id string) (*models.Community, error)
	AcceptRecord(ctx context.Context, c *models.Community, recid int) error
	RejectRecord(ctx context.Context, c *models.Community, recid int) error
}

type CurationBroadcaster interface {
	BroadcastCuration(communityID string, recid int, action string, actor uuid.UUID)
}

type CurationService struct {
	communities curationCommunities
	index       records.Index
	cache       cache.Store
	ttl         time.Duration
	events      CurationBroadcaster
	log         *slog.Logger
}

func NewCurationService(
	communities curationCommunities,
	index records.Index,
	store cache.Store,
	ttl time.Duration,
	events CurationBroadcaster,
	logger *slog.Logger,
) *CurationService {
	return &CurationService{
		communities: communities,
		index:       index,
		cache:       store,
		ttl:         ttl,
		events:      events,
		log:         logger.With("component", "curation"),
	}
}

func curateKey(communityID string, recid int) string {
	return fmt.Sprintf("%s%s_%d", curateKeyPrefix, communityID, recid)
}

// Curate applies accept, reject or remove to one record of a community.
//
// Validation and authorization failures come back as errors
// (ErrInvalidAction, ErrInvalidRecord, ErrCommunityNotFound, ErrForbidden).
// A transition that cannot be applied is not an error: the result simply
// reports Success false.
func (s *CurationService) Curate(ctx context.Context, req CurateRequest) (*CurateResult, error) {
	if !ValidAction(req.Action) {
		return nil, ErrInvalidAction
	}
	if req.RecID <= 0 {
		return nil, ErrInvalidRecord
	}

	community, err := s.communities.GetByID(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, community, req); err != nil {
		return nil, err
	}

	key := curateKey(community.ID, req.RecID)
	stored, existing, err := s.cache.SetNX(ctx, key, req.Action, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("reserve curation of record %d: %w", req.RecID, err)
	}
	if !stored {
		return cachedResult(existing, req.Action), nil
	}

	if err := s.transition(ctx, community, req); err != nil {
		if delErr := s.cache.Delete(ctx, key); delErr != nil {
			s.log.ErrorContext(ctx, "failed to release curation reservation", "key", key, "error", delErr)
		}
		s.log.WarnContext(ctx, "curation failed",
			"community", community.ID,
			"recid", req.RecID,
			"action", req.Action,
			"error", err,
		)
		return &CurateResult{Success: false}, nil
	}

	// the window runs from the completed transition, not the reservation
	if err := s.cache.Set(ctx, key, req.Action, s.ttl); err != nil {
		s.log.ErrorContext(ctx, "failed to refresh curation entry", "key", key, "error", err)
	}

	s.log.InfoContext(ctx, "record curated",
		"community", community.ID,
		"recid", req.RecID,
		"action", req.Action,
		"user", req.UserID,
	)
	if s.events != nil {
		s.events.BroadcastCuration(community.ID, req.RecID, req.Action, req.UserID)
	}
	return &CurateResult{Success: true}, nil
}

// cachedResult answers from a live entry. The same action, or any action
// after a terminal one (reject, remove), counts as done. Anything else
// conflicts with the decision already taken.
func cachedResult(existing, action string) *CurateResult {
	if existing == action || existing == ActionReject || existing == ActionRemove {
		return &CurateResult{Success: true, Cached: true}
	}
	return &CurateResult{Success: false, Cached: true}
}

func (s *CurationService) authorize(ctx context.Context, community *models.Community, req CurateRequest) error {
	switch req.Action {
	case ActionAccept, ActionReject:
		if !community.IsOwner(req.UserID) {
			return ErrForbidden
		}
		return nil
	}

	emails, err := s.index.FieldValues(ctx, req.RecID, records.FieldContactEmail)
	if err != nil {
		return fmt.Errorf("read contact email of record %d: %w", req.RecID, err)
	}
	if len(emails) == 0 || req.Email == "" {
		return ErrForbidden
	}
	if strings.TrimSpace(emails[0]) != strings.TrimSpace(req.Email) {
		return ErrForbidden
	}
	return nil
}

func (s *CurationService) transition(ctx context.Context, community *models.Community, req CurateRequest) error {
	if req.Action == ActionAccept {
		return s.communities.AcceptRecord(ctx, community, req.RecID)
	}
	return s.communities.RejectRecord(ctx, community, req.RecID)
}
