package repository

import (
	"context"
	"database/sql"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

type AuthRepository interface {
	CreateUser(ctx context.Context, req models.RegisterRequest, passwordHash string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, string, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type authRepository struct {
	db *sql.DB
}

func NewAuthRepository(db *sql.DB) AuthRepository {
	return &authRepository{db: db}
}

// CreateUser inserts the account and its profile in one transaction.
func (r *authRepository) CreateUser(ctx context.Context, req models.RegisterRequest, passwordHash string) (models.User, error) {
	var user models.User

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return user, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, password) VALUES ($1, $2)
		RETURNING id, email, created_at
	`, req.Email, passwordHash).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if isUniqueViolation(err) {
		return user, ErrDuplicate
	}
	if err != nil {
		return user, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, student_id) VALUES ($1, $2, $3)
	`, user.ID, req.FullName, req.StudentID)
	if isUniqueViolation(err) {
		return user, ErrDuplicate
	}
	if err != nil {
		return user, err
	}

	return user, tx.Commit()
}

func (r *authRepository) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var user models.User
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password, created_at FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &hash, &user.CreatedAt)
	return user, hash, err
}

func (r *authRepository) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.CreatedAt)
	return user, err
}
