package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection name prefixes stored in a record's 980__a field.
const (
	collectionPrefix            = "user-"
	provisionalCollectionPrefix = "provisional-user-"
)

// Community is a user-curated collection of records. Membership lives on
// the records themselves, see CollectionName.
type Community struct {
	ID             string    `json:"id"              db:"id"`
	OwnerID        uuid.UUID `json:"owner_id"        db:"owner_id"`
	Title          string    `json:"title"           db:"title"`
	Description    string    `json:"description"     db:"description"`
	CurationPolicy string    `json:"curation_policy" db:"curation_policy"`
	Page           string    `json:"page"            db:"page"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

func (c *Community) IsOwner(userID uuid.UUID) bool {
	return userID != uuid.Nil && c.OwnerID == userID
}

// CollectionName returns the 980__a value marking membership: accepted
// records carry "user-<id>", pending ones "provisional-user-<id>".
func (c *Community) CollectionName(provisional bool) string {
	return CollectionName(c.ID, provisional)
}

func CollectionName(communityID string, provisional bool) string {
	if provisional {
		return provisionalCollectionPrefix + communityID
	}
	return collectionPrefix + communityID
}

// RecordSummary is what the detail page lists for a member record.
type RecordSummary struct {
	RecID int    `json:"recid"`
	Title string `json:"title"`
}
