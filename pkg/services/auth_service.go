package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusride/pkg/models"
	"campusride/pkg/repository"
	"campusride/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (models.AuthResponse, error)
	ParseToken(tokenStr string) (uuid.UUID, error)
}

type authService struct {
	users     repository.AuthRepository
	profiles  repository.ProfileRepository
	jwtSecret []byte
	ttl       time.Duration
}

func NewAuthService(users repository.AuthRepository, profiles repository.ProfileRepository, secret string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{users: users, profiles: profiles, jwtSecret: []byte(secret), ttl: ttl}
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := validation.Struct(req); err != nil {
		return models.AuthResponse{}, fromValidation(err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, req, string(hashed))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.AuthResponse{}, ErrConflict
		}
		return models.AuthResponse{}, fmt.Errorf("create user: %w", err)
	}

	return s.respond(ctx, user)
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		return models.AuthResponse{}, fromValidation(err)
	}

	user, hash, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AuthResponse{}, ErrInvalidCredentials
		}
		return models.AuthResponse{}, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return models.AuthResponse{}, ErrInvalidCredentials
	}

	return s.respond(ctx, user)
}

func (s *authService) Me(ctx context.Context, userID uuid.UUID) (models.AuthResponse, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AuthResponse{}, ErrNotFound
		}
		return models.AuthResponse{}, fmt.Errorf("get user: %w", err)
	}
	resp := models.AuthResponse{User: user}
	if p, err := s.profiles.Get(ctx, userID); err == nil {
		resp.Profile = p
	} else {
		resp.Profile = *models.UnknownProfile(userID)
	}
	return resp, nil
}

func (s *authService) respond(ctx context.Context, user models.User) (models.AuthResponse, error) {
	token, err := s.issue(user)
	if err != nil {
		return models.AuthResponse{}, err
	}
	resp, err := s.Me(ctx, user.ID)
	if err != nil {
		resp = models.AuthResponse{User: user, Profile: *models.UnknownProfile(user.ID)}
	}
	resp.AccessToken = token
	resp.ExpiresIn = int(s.ttl.Seconds())
	return resp, nil
}

func (s *authService) issue(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken validates an access token and returns the user id in its subject.
func (s *authService) ParseToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrUnauthorized
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}
	return id, nil
}
