// Package oauth signs users in through third-party identity providers.
// Only the verified e-mail address is trusted: it is what moderation
// compares against a record's contact address.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/dimitrije/communities/internal/config"
	"github.com/go-resty/resty/v2"
)

var (
	ErrNoEmail         = errors.New("provider returned no verified email")
	ErrUnknownProvider = errors.New("unknown oauth provider")
)

type UserInfo struct {
	Email     string
	Name      string
	AvatarURL string
	ID        string
	Provider  string
}

type Provider interface {
	GetConsentURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*UserInfo, error)
	Name() string
}

// Registry holds the providers that have credentials configured.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// FromConfig registers every provider with a client id set.
func FromConfig(cfg *config.Config) Registry {
	var providers []Provider
	if cfg.GitHub.ClientID != "" {
		providers = append(providers, NewGitHubProvider(cfg.GitHub))
	}
	if cfg.GitLab.ClientID != "" {
		providers = append(providers, NewGitLabProvider(cfg.GitLab))
	}
	if cfg.Google.ClientID != "" {
		providers = append(providers, NewGoogleProvider(cfg.Google))
	}
	return NewRegistry(providers...)
}

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// getJSON fetches url with the token-carrying client and decodes the body
// into out.
func getJSON(ctx context.Context, hc *http.Client, provider, url string, out interface{}) error {
	resp, err := resty.NewWithClient(hc).R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(out).
		Get(url)
	if err != nil {
		return fmt.Errorf("%s api request failed: %w", provider, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s api returned status %d", provider, resp.StatusCode())
	}
	return nil
}
