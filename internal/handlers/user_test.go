package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/testutil"
	"github.com/dimitrije/communities/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func userApp(handler *UserHandler) http.Handler {
	jwtSvc := newTestJWTService()
	app := drift.New()
	app.Use(driftmw.BodyParser())
	app.Use(middleware.Auth(jwtSvc))
	app.Get("/users/me", handler.GetMe)
	app.Patch("/users/me", handler.UpdateMe)
	return app
}

func authorized(t *testing.T, req *http.Request, userID uuid.UUID) *http.Request {
	t.Helper()
	token := generateTestToken(t, newTestJWTService(), userID, "test@example.com")
	req.Header.Set("Authorization", testutil.AuthHeader(token))
	return req
}

func TestUserHandler_GetMe_Success(t *testing.T) {
	mockUserService := new(testutil.MockUserService)
	handler := NewUserHandler(mockUserService)

	userID := uuid.New()
	avatarURL := "https://example.com/avatar.png"
	user := &models.User{
		ID:        userID,
		Email:     "test@example.com",
		Name:      "Test User",
		AvatarURL: &avatarURL,
		Provider:  "github",
	}

	mockUserService.On("GetByID", mock.Anything, userID).Return(user, nil)

	req := authorized(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), userID)
	rec := serve(userApp(handler), req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, userID, response.ID)
	assert.Equal(t, "test@example.com", response.Email)
	assert.Equal(t, "Test User", response.Name)
	assert.Equal(t, &avatarURL, response.AvatarURL)
	mockUserService.AssertExpectations(t)
}

func TestUserHandler_GetMe_Unauthorized(t *testing.T) {
	handler := NewUserHandler(new(testutil.MockUserService))

	rec := serve(userApp(handler), httptest.NewRequest(http.MethodGet, "/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserHandler_GetMe_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", services.ErrUserNotFound, http.StatusNotFound},
		{"database error", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserService := new(testutil.MockUserService)
			handler := NewUserHandler(mockUserService)
			userID := uuid.New()

			mockUserService.On("GetByID", mock.Anything, userID).Return(nil, tt.err)

			req := authorized(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), userID)
			rec := serve(userApp(handler), req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestUserHandler_UpdateMe_Success(t *testing.T) {
	mockUserService := new(testutil.MockUserService)
	handler := NewUserHandler(mockUserService)
	userID := uuid.New()

	updated := &models.User{ID: userID, Email: "test@example.com", Name: "New Name", Provider: "gitlab"}
	mockUserService.On("Update", mock.Anything, userID, "New Name").Return(updated, nil)

	client := testutil.NewHTTPTestClient(t, userApp(handler))
	token := generateTestToken(t, newTestJWTService(), userID, "test@example.com")
	rec := client.Request(http.MethodPatch, "/users/me", dto.UpdateUserRequest{Name: "New Name"}, map[string]string{
		"Authorization": testutil.AuthHeader(token),
	})

	testutil.AssertStatus(t, rec, http.StatusOK)

	var response dto.UserResponse
	testutil.ParseJSON(t, rec, &response)
	assert.Equal(t, "New Name", response.Name)
	mockUserService.AssertExpectations(t)
}

func TestUserHandler_UpdateMe_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty name", ""},
		{"too long", strings.Repeat("x", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserService := new(testutil.MockUserService)
			handler := NewUserHandler(mockUserService)
			userID := uuid.New()

			req := authorized(t, jsonRequest(t, http.MethodPatch, "/users/me", dto.UpdateUserRequest{Name: tt.body}), userID)
			rec := serve(userApp(handler), req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			mockUserService.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestUserHandler_UpdateMe_ServiceError(t *testing.T) {
	mockUserService := new(testutil.MockUserService)
	handler := NewUserHandler(mockUserService)
	userID := uuid.New()

	mockUserService.On("Update", mock.Anything, userID, "Name").Return(nil, errors.New("boom"))

	req := authorized(t, jsonRequest(t, http.MethodPatch, "/users/me", dto.UpdateUserRequest{Name: "Name"}), userID)
	rec := serve(userApp(handler), req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
