package repository

import (
	"context"
	"database/sql"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Get(ctx context.Context, id uuid.UUID) (models.Profile, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (models.Profile, error)
	List(ctx context.Context, limit, offset int) ([]models.Profile, error)
	PromoteToAdmin(ctx context.Context, studentID string) (uuid.UUID, error)
}

type profileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `p.id, u.email, p.full_name, p.student_id, p.department, p.gender, p.role, p.phone_number, p.created_at`

func scanProfile(s scanner) (models.Profile, error) {
	var p models.Profile
	var role string
	var phone sql.NullString
	err := s.Scan(&p.ID, &p.Email, &p.FullName, &p.StudentID, &p.Department, &p.Gender, &role, &phone, &p.CreatedAt)
	p.Role = models.Role(role)
	p.PhoneNumber = phone.String
	return p, err
}

func (r *profileRepository) Get(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM profiles p JOIN users u ON u.id = p.id WHERE p.id = $1
	`, id))
}

func (r *profileRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	result := make(map[uuid.UUID]models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+profileColumns+` FROM profiles p JOIN users u ON u.id = p.id WHERE p.id = ANY($1::uuid[])
	`, idArray(ids))
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			continue
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (r *profileRepository) Update(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (models.Profile, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET
			full_name = COALESCE($2, full_name),
			student_id = COALESCE($3, student_id),
			department = COALESCE($4, department),
			gender = COALESCE($5, gender),
			phone_number = COALESCE($6, phone_number)
		WHERE id = $1
	`, id, req.FullName, req.StudentID, req.Department, req.Gender, req.PhoneNumber)
	if isUniqueViolation(err) {
		return models.Profile{}, ErrDuplicate
	}
	if err != nil {
		return models.Profile{}, err
	}
	return r.Get(ctx, id)
}

func (r *profileRepository) List(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+profileColumns+` FROM profiles p JOIN users u ON u.id = p.id
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *profileRepository) PromoteToAdmin(ctx context.Context, studentID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT promote_to_admin($1)`, studentID).Scan(&id)
	if isNoDataFound(err) {
		return id, sql.ErrNoRows
	}
	return id, err
}
