package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/jv-board/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")
	ErrInvalidUser  = errors.New("username, name and access code are required")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

const tokenTTL = 24 * time.Hour

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

// UserStore is the account storage the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Service struct {
	users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// CreateUser registers an account. The access code is stored as a bcrypt hash.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)
	if username == "" || name == "" || req.AccessCode == "" {
		return nil, ErrInvalidUser
	}

	role := RoleUser
	if strings.EqualFold(strings.TrimSpace(req.Role), RoleAdmin) {
		role = RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.AccessCode), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.users.UserByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.AccessCode)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := generateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	// Clear hash before returning
	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: *user}, nil
}

// User loads the account behind a token subject.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func generateToken(userID uuid.UUID, role string) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// Claims are the verified contents of a bearer token.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// ParseToken verifies an HS256 token and extracts its subject and role.
func ParseToken(tokenString string) (Claims, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return Claims{}, err
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("invalid or expired token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token subject: %w", err)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid user ID in token: %w", err)
	}

	role, _ := mc["role"].(string)
	return Claims{UserID: userID, Role: role}, nil
}
