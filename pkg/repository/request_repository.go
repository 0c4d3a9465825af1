package repository

import (
	"context"
	"database/sql"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

type RequestRepository interface {
	Create(ctx context.Context, rideID, requesterID uuid.UUID, message string) (models.RideRequest, error)
	Get(ctx context.Context, rideID, requesterID uuid.UUID) (models.RideRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.RideRequest, error)
	ListForRide(ctx context.Context, rideID uuid.UUID) ([]models.RideRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]models.RideRequest, error)
	// UpdateStatus moves a request only if it is still in the from state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (models.RideRequest, error)
	UpdatePendingMessage(ctx context.Context, id uuid.UUID, message string) error
}

type requestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `rr.id, rr.ride_id, rr.requester_id, rr.message, rr.status, rr.created_at, rr.updated_at,
	COALESCE(p.full_name, ''), COALESCE(p.department, ''), COALESCE(p.gender, '')`

func scanRequest(s scanner) (models.RideRequest, error) {
	var rr models.RideRequest
	var status string
	var requester models.Profile
	err := s.Scan(&rr.ID, &rr.RideID, &rr.RequesterID, &rr.Message, &status, &rr.CreatedAt, &rr.UpdatedAt,
		&requester.FullName, &requester.Department, &requester.Gender)
	if err != nil {
		return rr, err
	}
	rr.Status = models.RequestStatus(status)
	requester.ID = rr.RequesterID
	requester.Role = models.RoleStudent
	if requester.FullName == "" {
		requester.FullName = models.UnknownUserName
	}
	rr.Requester = &requester
	return rr, nil
}

func (r *requestRepository) Create(ctx context.Context, rideID, requesterID uuid.UUID, message string) (models.RideRequest, error) {
	rr := models.RideRequest{
		RideID:      rideID,
		RequesterID: requesterID,
		Message:     message,
		Status:      models.StatusPending,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ride_requests (ride_id, requester_id, message, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, created_at, updated_at
	`, rideID, requesterID, message).Scan(&rr.ID, &rr.CreatedAt, &rr.UpdatedAt)
	if isUniqueViolation(err) {
		return rr, ErrDuplicate
	}
	return rr, err
}

func (r *requestRepository) Get(ctx context.Context, rideID, requesterID uuid.UUID) (models.RideRequest, error) {
	return scanRequest(r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests rr
		LEFT JOIN profiles p ON p.id = rr.requester_id
		WHERE rr.ride_id = $1 AND rr.requester_id = $2
	`, rideID, requesterID))
}

func (r *requestRepository) GetByID(ctx context.Context, id uuid.UUID) (models.RideRequest, error) {
	return scanRequest(r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests rr
		LEFT JOIN profiles p ON p.id = rr.requester_id
		WHERE rr.id = $1
	`, id))
}

func (r *requestRepository) ListForRide(ctx context.Context, rideID uuid.UUID) ([]models.RideRequest, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests rr
		LEFT JOIN profiles p ON p.id = rr.requester_id
		WHERE rr.ride_id = $1
		ORDER BY rr.created_at DESC
	`, rideID)
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]models.RideRequest, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests rr
		LEFT JOIN profiles p ON p.id = rr.requester_id
		WHERE rr.requester_id = $1
		ORDER BY rr.created_at DESC
	`, requesterID)
}

func (r *requestRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.RideRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RideRequest{}
	for rows.Next() {
		rr, err := scanRequest(rows)
		if err != nil {
			continue
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (models.RideRequest, error) {
	var rr models.RideRequest
	var status string
	err := r.db.QueryRowContext(ctx, `
		UPDATE ride_requests SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id, ride_id, requester_id, message, status, created_at, updated_at
	`, id, string(from), string(to)).Scan(&rr.ID, &rr.RideID, &rr.RequesterID, &rr.Message, &status, &rr.CreatedAt, &rr.UpdatedAt)
	rr.Status = models.RequestStatus(status)
	return rr, err
}

func (r *requestRepository) UpdatePendingMessage(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ride_requests SET message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, message)
	return err
}
