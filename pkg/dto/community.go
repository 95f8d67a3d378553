package dto

import "github.com/dimitrije/communities/internal/models"

// CommunityForm is the create/edit form. ID is ignored on edit.
type CommunityForm struct {
	ID             string `json:"identifier"      form:"identifier"      validate:"required,min=2,max=100,community_id"`
	Title          string `json:"title"           form:"title"           validate:"required,max=255"`
	Description    string `json:"description"     form:"description"     validate:"max=10000"`
	CurationPolicy string `json:"curation_policy" form:"curation_policy" validate:"max=10000"`
	Page           string `json:"page"            form:"page"            validate:"max=50000"`
}

func CommunityFormFrom(c *models.Community) CommunityForm {
	return CommunityForm{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		CurationPolicy: c.CurationPolicy,
		Page:           c.Page,
	}
}

// CurateRequest carries a moderation decision. The same names are accepted
// as query, form or JSON fields.
type CurateRequest struct {
	Action     string `json:"action"`
	Collection string `json:"collection"`
	RecID      int    `json:"recid"`
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type CurateResponse struct {
	Status string `json:"status"`
	Cache  int    `json:"cache"`
}
