package auth

import (
	"context"
	"errors"
	"time"

	"confession-service/internal/user"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailExists         = errors.New("email already exists")
	ErrUsernameExists      = errors.New("username already taken")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

type Service struct {
	authRepo *Repository
	userRepo user.Repository
}

func NewService(authRepo *Repository, userRepo user.Repository) *Service {
	return &Service{
		authRepo: authRepo,
		userRepo: userRepo,
	}
}

// Register creates a new account. New accounts start with the weekly message
// allowance and accept messages by default.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if existing, _ := s.userRepo.GetByEmail(ctx, req.Email); existing != nil {
		return nil, ErrEmailExists
	}
	if existing, _ := s.userRepo.GetByUsername(ctx, req.Username); existing != nil {
		return nil, ErrUsernameExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	newUser := &user.User{
		Username:          req.Username,
		Email:             req.Email,
		Password:          string(hashedPassword),
		AcceptingMessages: true,
		MessagesLeft:      user.WeeklyAllowance,
		CreatedAt:         time.Now(),
	}

	created, err := s.userRepo.Create(ctx, newUser)
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, created)
}

// Login authenticates a user and returns tokens
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, u)
}

// RefreshAccessToken generates a new access token using refresh token
func (s *Service) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	refreshToken, err := s.authRepo.GetRefreshToken(ctx, refreshTokenString)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.userRepo.GetByID(ctx, refreshToken.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	return s.generateTokenPair(ctx, u)
}

// Logout invalidates refresh token
func (s *Service) Logout(ctx context.Context, refreshTokenString string) error {
	return s.authRepo.DeleteRefreshToken(ctx, refreshTokenString)
}

// LogoutAll invalidates all refresh tokens for a user
func (s *Service) LogoutAll(ctx context.Context, userID int) error {
	return s.authRepo.DeleteAllUserTokens(ctx, userID)
}

// generateTokenPair creates access and refresh tokens
func (s *Service) generateTokenPair(ctx context.Context, u *user.User) (*AuthResponse, error) {
	// Access token (JWT, 15 minutes)
	accessToken, err := GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	// Refresh token (random, 7 days)
	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(7 * 24 * time.Hour)
	if err := s.authRepo.CreateRefreshToken(ctx, u.ID, refreshToken, expiresAt); err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         u,
	}, nil
}
