package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/models"
)

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
}

func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateUser creates a test user with default values
func (f *Fixtures) CreateUser(t *testing.T, opts ...UserOption) *models.User {
	t.Helper()
	f.counter++

	user := &models.User{
		Email:      fmt.Sprintf("user%d@example.com", f.counter),
		Name:       fmt.Sprintf("Test User %d", f.counter),
		Provider:   "github",
		ProviderID: fmt.Sprintf("provider-%d", f.counter),
	}

	for _, opt := range opts {
		opt(user)
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, name, avatar_url, provider, provider_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, name, avatar_url, provider, provider_id, created_at, updated_at
	`, user.Email, user.Name, user.AvatarURL, user.Provider, user.ProviderID).Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL,
		&user.Provider, &user.ProviderID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

type UserOption func(*models.User)

func WithEmail(email string) UserOption {
	return func(u *models.User) {
		u.Email = email
	}
}

// CreateCommunity creates a community owned by owner.
func (f *Fixtures) CreateCommunity(t *testing.T, owner *models.User, opts ...CommunityOption) *models.Community {
	t.Helper()
	f.counter++

	c := &models.Community{
		ID:      fmt.Sprintf("community-%d", f.counter),
		OwnerID: owner.ID,
		Title:   fmt.Sprintf("Community %d", f.counter),
	}

	for _, opt := range opts {
		opt(c)
	}

	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO communities (id, owner_id, title, description, curation_policy, page)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, c.ID, c.OwnerID, c.Title, c.Description, c.CurationPolicy, c.Page).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create community: %v", err)
	}

	return c
}

type CommunityOption func(*models.Community)

func WithCommunityID(id string) CommunityOption {
	return func(c *models.Community) {
		c.ID = id
	}
}

func WithTitle(title string) CommunityOption {
	return func(c *models.Community) {
		c.Title = title
	}
}

// AddRecordFields stores values of one field of a record in the order given.
func (f *Fixtures) AddRecordFields(t *testing.T, recid int, field string, values ...string) {
	t.Helper()

	ctx := context.Background()
	for pos, v := range values {
		_, err := f.db.Pool.Exec(ctx, `
			INSERT INTO record_fields (recid, tag, position, value)
			VALUES ($1, $2, $3, $4)
		`, recid, field, pos, v)
		if err != nil {
			t.Fatalf("failed to add field %s to record %d: %v", field, recid, err)
		}
	}
}
