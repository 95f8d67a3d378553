package oauth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dimitrije/communities/internal/config"
	"golang.org/x/oauth2"
)

const gitlabAPI = "https://gitlab.com/api/v4"

var gitlabEndpoint = oauth2.Endpoint{
	AuthURL:  "https://gitlab.com/oauth/authorize",
	TokenURL: "https://gitlab.com/oauth/token",
}

type GitLabProvider struct {
	config  *oauth2.Config
	apiBase string
}

func NewGitLabProvider(cfg config.OAuthConfig) *GitLabProvider {
	return &GitLabProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read_user", "email"},
			Endpoint:     gitlabEndpoint,
		},
		apiBase: gitlabAPI,
	}
}

func (p *GitLabProvider) Name() string {
	return "gitlab"
}

func (p *GitLabProvider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitLabProvider) ExchangeCode(ctx context.Context, code string) (*UserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	var glUser struct {
		ID          int64  `json:"id"`
		Username    string `json:"username"`
		Name        string `json:"name"`
		Email       string `json:"email"`
		AvatarURL   string `json:"avatar_url"`
		ConfirmedAt string `json:"confirmed_at"`
	}
	if err := getJSON(ctx, p.config.Client(ctx, token), p.Name(), p.apiBase+"/user", &glUser); err != nil {
		return nil, err
	}
	// GitLab only exposes the primary address, and only once confirmed.
	if glUser.Email == "" || glUser.ConfirmedAt == "" {
		return nil, ErrNoEmail
	}

	name := glUser.Name
	if name == "" {
		name = glUser.Username
	}

	return &UserInfo{
		Email:     glUser.Email,
		Name:      name,
		AvatarURL: glUser.AvatarURL,
		ID:        strconv.FormatInt(glUser.ID, 10),
		Provider:  p.Name(),
	}, nil
}
