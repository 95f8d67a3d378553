package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dimitrije/communities/internal/config"
	"github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/oauth"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	stateTTL    = 10 * time.Minute
	authCodeTTL = 30 * time.Second
)

type AuthHandler struct {
	cfg          *config.Config
	providers    oauth.Registry
	userService  UserServiceInterface
	tokenService TokenServiceInterface
	jwtService   JWTServiceInterface
	render       *Renderer
	log          *slog.Logger
	states       sync.Map
	authCodes    sync.Map
}

// stateData remembers how a sign-in was started: browser sign-ins end with
// session cookies, API sign-ins with a one-time code.
type stateData struct {
	expiresAt time.Time
	web       bool
}

type authCodeData struct {
	userID    uuid.UUID
	expiresAt time.Time
}

func NewAuthHandler(
	cfg *config.Config,
	providers oauth.Registry,
	userService UserServiceInterface,
	tokenService TokenServiceInterface,
	jwtService JWTServiceInterface,
	render *Renderer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		cfg:          cfg,
		providers:    providers,
		userService:  userService,
		tokenService: tokenService,
		jwtService:   jwtService,
		render:       render,
		log:          logger.With("component", "auth"),
	}
}

// CleanupLoop drops expired states and codes until ctx is done.
func (h *AuthHandler) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.cleanup(now)
		}
	}
}

func (h *AuthHandler) cleanup(now time.Time) {
	h.states.Range(func(key, value interface{}) bool {
		if sd, ok := value.(stateData); ok && now.After(sd.expiresAt) {
			h.states.Delete(key)
		}
		return true
	})
	h.authCodes.Range(func(key, value interface{}) bool {
		if acd, ok := value.(authCodeData); ok && now.After(acd.expiresAt) {
			h.authCodes.Delete(key)
		}
		return true
	})
}

func (h *AuthHandler) Providers(c *drift.Context) {
	_ = c.JSON(200, dto.ProvidersResponse{Providers: h.providers.Names()})
}

func (h *AuthHandler) newState(web bool) (string, error) {
	state, err := oauth.GenerateState()
	if err != nil {
		return "", err
	}
	h.states.Store(state, stateData{expiresAt: time.Now().Add(stateTTL), web: web})
	return state, nil
}

func (h *AuthHandler) GetConsentURL(c *drift.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.BadRequest("unsupported provider: " + c.Param("provider"))
		return
	}

	state, err := h.newState(false)
	if err != nil {
		c.InternalServerError("failed to generate state")
		return
	}

	_ = c.JSON(200, dto.ConsentURLResponse{
		URL: p.GetConsentURL(state),
	})
}

// Login starts a browser sign-in by redirecting to the provider.
func (h *AuthHandler) Login(c *drift.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		h.failWeb(c, "Unsupported sign-in provider.")
		return
	}

	state, err := h.newState(true)
	if err != nil {
		c.InternalServerError("failed to generate state")
		return
	}

	redirect(c, p.GetConsentURL(state))
}

func (h *AuthHandler) Callback(c *drift.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		h.failWeb(c, "Unsupported sign-in provider.")
		return
	}

	state := c.QueryParam("state")
	if state == "" {
		h.failWeb(c, "Missing state parameter.")
		return
	}

	sd, ok := h.states.LoadAndDelete(state)
	if !ok {
		h.failWeb(c, "Sign-in link is invalid or expired.")
		return
	}

	started, ok := sd.(stateData)
	if !ok || time.Now().After(started.expiresAt) {
		h.failWeb(c, "Sign-in link expired.")
		return
	}

	code := c.QueryParam("code")
	if code == "" {
		h.failWeb(c, "Missing authorization code.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		h.log.Warn("oauth exchange failed", "provider", p.Name(), "error", err)
		h.failWeb(c, "The provider did not confirm your identity.")
		return
	}

	user, err := h.userService.FindOrCreateFromOAuth(ctx, userInfo)
	if err != nil {
		h.log.Error("failed to create user", "provider", p.Name(), "error", err)
		h.failWeb(c, "Failed to create your account.")
		return
	}

	if started.web {
		pair, err := h.issueTokens(ctx, user)
		if err != nil {
			h.log.Error("failed to issue session", "user", user.ID, "error", err)
			h.failWeb(c, "Failed to start your session.")
			return
		}
		h.setSessionCookies(c, pair)
		redirect(c, h.cfg.LoginRedirectURL)
		return
	}

	authCode, err := oauth.GenerateState()
	if err != nil {
		h.failWeb(c, "Failed to generate a sign-in code.")
		return
	}
	h.authCodes.Store(authCode, authCodeData{
		userID:    user.ID,
		expiresAt: time.Now().Add(authCodeTTL),
	})

	h.render.HTML(c, http.StatusOK, "signed_in.html", struct {
		page
		Code string
	}{
		page: page{Title: "Signed in"},
		Code: authCode,
	})
}

func (h *AuthHandler) ExchangeCode(c *drift.Context) {
	var req dto.ExchangeCodeRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Code == "" {
		c.BadRequest("code is required")
		return
	}

	acd, ok := h.authCodes.LoadAndDelete(req.Code)
	if !ok {
		c.Unauthorized("invalid or expired code")
		return
	}

	codeData, ok := acd.(authCodeData)
	if !ok || time.Now().After(codeData.expiresAt) {
		c.Unauthorized("code expired")
		return
	}

	ctx := c.Request.Context()

	user, err := h.userService.GetByID(ctx, codeData.userID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	pair, err := h.issueTokens(ctx, user)
	if err != nil {
		c.InternalServerError("failed to issue tokens")
		return
	}

	_ = c.JSON(200, tokenResponse(pair))
}

func (h *AuthHandler) RefreshToken(c *drift.Context) {
	var req dto.RefreshTokenRequest
	_ = c.BindJSON(&req)
	if req.RefreshToken == "" {
		if cookie, err := c.Request.Cookie(middleware.RefreshTokenCookie); err == nil {
			req.RefreshToken = cookie.Value
		}
	}

	if req.RefreshToken == "" {
		c.BadRequest("refresh_token is required")
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Unauthorized("invalid refresh token")
		return
	}

	tokenHash := services.HashToken(req.RefreshToken)
	ctx := c.Request.Context()

	storedUserID, err := h.tokenService.ValidateRefreshToken(ctx, tokenHash)
	if err != nil || storedUserID != userID {
		c.Unauthorized("refresh token not found or expired")
		return
	}

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	if err := h.tokenService.RevokeRefreshToken(ctx, tokenHash); err != nil {
		c.InternalServerError("failed to revoke old token")
		return
	}

	pair, err := h.issueTokens(ctx, user)
	if err != nil {
		c.InternalServerError("failed to issue tokens")
		return
	}

	h.setSessionCookies(c, pair)
	_ = c.JSON(200, tokenResponse(pair))
}

func (h *AuthHandler) Logout(c *drift.Context) {
	var req dto.RefreshTokenRequest
	_ = c.BindJSON(&req)
	if req.RefreshToken == "" {
		if cookie, err := c.Request.Cookie(middleware.RefreshTokenCookie); err == nil {
			req.RefreshToken = cookie.Value
		}
	}

	if req.RefreshToken != "" {
		tokenHash := services.HashToken(req.RefreshToken)
		_ = h.tokenService.RevokeRefreshToken(c.Request.Context(), tokenHash)
	}

	h.clearSessionCookies(c)
	_ = c.JSON(200, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) LogoutAll(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	if err := h.tokenService.RevokeAllUserTokens(c.Request.Context(), userID); err != nil {
		c.InternalServerError("failed to revoke tokens")
		return
	}

	h.clearSessionCookies(c)
	_ = c.JSON(200, map[string]string{"message": "all sessions logged out"})
}

// issueTokens signs a new pair and stores the refresh token hash.
func (h *AuthHandler) issueTokens(ctx context.Context, user *models.User) (*services.TokenPair, error) {
	pair, err := h.jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	tokenHash := services.HashToken(pair.RefreshToken)
	expiresAt := time.Now().Add(h.jwtService.RefreshExpiry())
	if err := h.tokenService.StoreRefreshToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return nil, err
	}
	return pair, nil
}

func (h *AuthHandler) setSessionCookies(c *drift.Context, pair *services.TokenPair) {
	secure := h.cfg.IsProduction()
	setCookie(c, middleware.SessionCookie(middleware.AccessTokenCookie, pair.AccessToken,
		int(h.jwtService.AccessExpiry().Seconds()), secure))
	setCookie(c, middleware.SessionCookie(middleware.RefreshTokenCookie, pair.RefreshToken,
		int(h.jwtService.RefreshExpiry().Seconds()), secure))
}

func (h *AuthHandler) clearSessionCookies(c *drift.Context) {
	secure := h.cfg.IsProduction()
	setCookie(c, middleware.SessionCookie(middleware.AccessTokenCookie, "", -1, secure))
	setCookie(c, middleware.SessionCookie(middleware.RefreshTokenCookie, "", -1, secure))
}

// failWeb sends the browser back to the communities index with an error
// flash.
func (h *AuthHandler) failWeb(c *drift.Context, msg string) {
	setFlash(c, FlashError, msg)
	redirect(c, h.cfg.LoginRedirectURL)
}

func tokenResponse(pair *services.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}
