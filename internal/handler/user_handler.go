package handler

import (
	"net/http"
	"time"

	"shared-transactions/internal/auth"
	"shared-transactions/internal/middleware"
	"shared-transactions/internal/service"
)

type UserHandler struct {
	userService *service.UserService
	jwtManager  *auth.JWTManager
}

func NewUserHandler(userService *service.UserService, jwtManager *auth.JWTManager) *UserHandler {
	return &UserHandler{
		userService: userService,
		jwtManager:  jwtManager,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
}

type UserResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	Token     string `json:"token,omitempty"`
}

// Register creates a user and returns a session token for it.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.jwtManager.Generate(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{
		UserID:    user.ID.String(),
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		Token:     token,
	})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		UserID:    user.ID.String(),
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}
