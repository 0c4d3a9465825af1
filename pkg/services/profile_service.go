package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campusride/pkg/models"
	"campusride/pkg/repository"
	"campusride/pkg/validation"

	"github.com/google/uuid"
)

type ProfileService interface {
	Get(ctx context.Context, id uuid.UUID) (models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (models.Profile, error)
	IsAdmin(ctx context.Context, id uuid.UUID) bool
	List(ctx context.Context, limit, offset int) ([]models.Profile, error)
	PromoteToAdmin(ctx context.Context, studentID string) (models.Profile, error)
}

type profileService struct {
	repo repository.ProfileRepository
}

func NewProfileService(repo repository.ProfileRepository) ProfileService {
	return &profileService{repo: repo}
}

func (s *profileService) Get(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *profileService) Update(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (models.Profile, error) {
	for _, f := range []*string{req.FullName, req.StudentID, req.Department, req.Gender, req.PhoneNumber} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if err := validation.Struct(req); err != nil {
		return models.Profile{}, fromValidation(err)
	}
	if req.PhoneNumber != nil {
		n := validation.NormalizePhone(*req.PhoneNumber)
		req.PhoneNumber = &n
	}

	p, err := s.repo.Update(ctx, id, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return models.Profile{}, ErrConflict
		case errors.Is(err, sql.ErrNoRows):
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// IsAdmin reads the role column. Lookup failures count as not admin.
func (s *profileService) IsAdmin(ctx context.Context, id uuid.UUID) bool {
	p, err := s.repo.Get(ctx, id)
	return err == nil && p.IsAdmin()
}

func (s *profileService) List(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

func (s *profileService) PromoteToAdmin(ctx context.Context, studentID string) (models.Profile, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return models.Profile{}, invalid("student_id", "is required")
	}
	id, err := s.repo.PromoteToAdmin(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("promote: %w", err)
	}
	return s.Get(ctx, id)
}
