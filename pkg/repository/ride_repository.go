package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

type RideRepository interface {
	Create(ctx context.Context, ownerID uuid.UUID, req models.CreateRideRequest) (models.Ride, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Ride, error)
	List(ctx context.Context, filter models.RideFilter) ([]models.Ride, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Ride, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (models.CleanupResult, error)
}

type rideRepository struct {
	db *sql.DB
}

func NewRideRepository(db *sql.DB) RideRepository {
	return &rideRepository{db: db}
}

const rideColumns = `r.id, r.owner_id, r.origin, r.destination, r.ride_time, r.notes, r.created_at,
	COALESCE(p.full_name, ''), COALESCE(p.department, ''), COALESCE(p.gender, ''), COALESCE(p.role, 'student')`

func scanRideWithOwner(s scanner) (models.Ride, error) {
	var r models.Ride
	var owner models.Profile
	var role string
	err := s.Scan(&r.ID, &r.OwnerID, &r.Origin, &r.Destination, &r.RideTime, &r.Notes, &r.CreatedAt,
		&owner.FullName, &owner.Department, &owner.Gender, &role)
	if err != nil {
		return r, err
	}
	owner.ID = r.OwnerID
	owner.Role = models.Role(role)
	if owner.FullName == "" {
		owner.FullName = models.UnknownUserName
	}
	r.Owner = &owner
	return r, nil
}

func (r *rideRepository) Create(ctx context.Context, ownerID uuid.UUID, req models.CreateRideRequest) (models.Ride, error) {
	ride := models.Ride{
		OwnerID:     ownerID,
		Origin:      req.Origin,
		Destination: req.Destination,
		RideTime:    req.RideTime,
		Notes:       req.Notes,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO rides (owner_id, origin, destination, ride_time, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, ownerID, req.Origin, req.Destination, req.RideTime, req.Notes).Scan(&ride.ID, &ride.CreatedAt)
	return ride, err
}

func (r *rideRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Ride, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+rideColumns+`
		FROM rides r
		LEFT JOIN profiles p ON p.id = r.owner_id
		WHERE r.id = $1
	`, id)
	return scanRideWithOwner(row)
}

func (r *rideRepository) List(ctx context.Context, filter models.RideFilter) ([]models.Ride, error) {
	var where []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if !filter.After.IsZero() {
		add("r.ride_time > $%d", filter.After)
	}
	if o := strings.TrimSpace(filter.Origin); o != "" {
		add("r.origin ILIKE $%d", "%"+o+"%")
	}
	if d := strings.TrimSpace(filter.Destination); d != "" {
		add("r.destination ILIKE $%d", "%"+d+"%")
	}

	query := `SELECT ` + rideColumns + ` FROM rides r LEFT JOIN profiles p ON p.id = r.owner_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY r.ride_time ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rides := []models.Ride{}
	for rows.Next() {
		ride, err := scanRideWithOwner(rows)
		if err != nil {
			continue
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func (r *rideRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Ride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rideColumns+`
		FROM rides r
		LEFT JOIN profiles p ON p.id = r.owner_id
		WHERE r.owner_id = $1
		ORDER BY r.ride_time DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rides := []models.Ride{}
	for rows.Next() {
		ride, err := scanRideWithOwner(rows)
		if err != nil {
			continue
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func (r *rideRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes rides departing before the cutoff together with their
// messages and requests. Children are deleted explicitly so the counts are exact.
func (r *rideRepository) DeleteExpired(ctx context.Context, before time.Time) (models.CleanupResult, error) {
	var out models.CleanupResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	// Row locks keep new messages and requests off these rides until commit.
	if _, err := tx.ExecContext(ctx, `SELECT id FROM rides WHERE ride_time < $1 FOR UPDATE`, before); err != nil {
		return out, err
	}

	steps := []struct {
		query string
		dst   *int64
	}{
		{`DELETE FROM messages WHERE ride_id IN (SELECT id FROM rides WHERE ride_time < $1)`, &out.Messages},
		{`DELETE FROM ride_requests WHERE ride_id IN (SELECT id FROM rides WHERE ride_time < $1)`, &out.Requests},
		{`DELETE FROM rides WHERE ride_time < $1`, &out.Rides},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, before)
		if err != nil {
			return models.CleanupResult{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return models.CleanupResult{}, err
		}
		*step.dst = n
	}

	if err := tx.Commit(); err != nil {
		return models.CleanupResult{}, err
	}
	return out, nil
}
