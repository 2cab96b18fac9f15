package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned by Verify for any token that does not resolve
// to a known principal.
var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	db       database.Database
	cfg      *config.Config
	validate *validator.Validate
}

func NewService(db database.Database, cfg *config.Config) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		validate: validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid registration request: %w", err)
	}

	user, err := s.db.CreateUser(ctx, req)
	if err != nil {
		if errors.Is(err, database.ErrUniqueViolation) {
			return nil, fmt.Errorf("username or email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, *models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("invalid login request: %w", err)
	}

	user, err := s.db.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, fmt.Errorf("invalid credentials")
	}

	access, err := s.IssueAccess(user.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate token: %w", err)
	}
	refresh, err := s.IssueRefresh(user.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate token: %w", err)
	}
	csrf, err := newCSRFToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	return &models.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		CSRFToken:    csrf,
		TokenType:    "bearer",
	}, user, nil
}

// Verify resolves an access token to the Principal it was issued for.
func (s *Service) Verify(ctx context.Context, tokenString string) (models.Principal, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return models.Principal{}, ErrInvalidToken
	}
	if typ, _ := claims["type"].(string); typ == "refresh" {
		return models.Principal{}, ErrInvalidToken
	}

	username, _ := claims["sub"].(string)
	if username == "" {
		return models.Principal{}, ErrInvalidToken
	}

	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return models.Principal{}, ErrInvalidToken
	}
	return user.Principal(), nil
}

// RefreshAccess issues a new access token from a valid refresh token.
func (s *Service) RefreshAccess(tokenString string) (string, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return "", ErrInvalidToken
	}
	if typ, _ := claims["type"].(string); typ != "refresh" {
		return "", ErrInvalidToken
	}

	username, _ := claims["sub"].(string)
	if username == "" {
		return "", ErrInvalidToken
	}
	return s.IssueAccess(username)
}

func (s *Service) IssueAccess(username string) (string, error) {
	return s.signToken(jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(s.cfg.JWT.AccessExpiresIn).Unix(),
		"iat": time.Now().Unix(),
	})
}

func (s *Service) IssueRefresh(username string) (string, error) {
	return s.signToken(jwt.MapClaims{
		"sub":  username,
		"type": "refresh",
		"exp":  time.Now().Add(s.cfg.JWT.RefreshExpiresIn).Unix(),
		"iat":  time.Now().Unix(),
	})
}

func (s *Service) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}

func (s *Service) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return *claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func newCSRFToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
