package auth

import "github.com/david/jv-board/internal/models"

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// LoginRequest carries the account name and the personal access code handed out with it.
type LoginRequest struct {
	Username   string `json:"username"`
	AccessCode string `json:"access_code"`
}

type CreateUserRequest struct {
	Username   string `json:"username"`
	Name       string `json:"name"`
	AccessCode string `json:"access_code"`
	Role       string `json:"role"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}
