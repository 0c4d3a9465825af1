package repository

import (
	"context"
	"database/sql"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

// ChatRepository answers the membership questions behind chat access and the
// conversation roster.
type ChatRepository interface {
	RideOwner(ctx context.Context, rideID uuid.UUID) (uuid.UUID, error)
	HasRequest(ctx context.Context, rideID, userID uuid.UUID) (bool, error)
	HasSentMessage(ctx context.Context, rideID, userID uuid.UUID) (bool, error)

	// ChatRides is the single round-trip roster query.
	ChatRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error)

	// The four independent sources the roster falls back to.
	OwnedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error)
	MessagedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error)
	AcceptedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error)
	RequestedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error)

	// Latest non-owner requester and message sender per ride.
	LatestRequesters(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	LatestSenders(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

type chatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) RideOwner(ctx context.Context, rideID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM rides WHERE id = $1`, rideID).Scan(&owner)
	return owner, err
}

func (r *chatRepository) HasRequest(ctx context.Context, rideID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ride_requests WHERE ride_id = $1 AND requester_id = $2)
	`, rideID, userID).Scan(&ok)
	return ok, err
}

func (r *chatRepository) HasSentMessage(ctx context.Context, rideID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM messages WHERE ride_id = $1 AND sender_id = $2)
	`, rideID, userID).Scan(&ok)
	return ok, err
}

const plainRideColumns = `r.id, r.owner_id, r.origin, r.destination, r.ride_time, r.notes, r.created_at`

func (r *chatRepository) rides(ctx context.Context, query string, args ...interface{}) ([]models.Ride, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Ride{}
	for rows.Next() {
		var ride models.Ride
		if err := rows.Scan(&ride.ID, &ride.OwnerID, &ride.Origin, &ride.Destination, &ride.RideTime, &ride.Notes, &ride.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ride)
	}
	return out, rows.Err()
}

func (r *chatRepository) ChatRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return r.rides(ctx, `SELECT `+plainRideColumns+` FROM user_chat_rides($1) r`, userID)
}

func (r *chatRepository) OwnedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return r.rides(ctx, `SELECT `+plainRideColumns+` FROM rides r WHERE r.owner_id = $1`, userID)
}

func (r *chatRepository) MessagedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return r.rides(ctx, `
		SELECT `+plainRideColumns+` FROM rides r
		WHERE r.owner_id <> $1
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.ride_id = r.id AND m.sender_id = $1)
	`, userID)
}

func (r *chatRepository) AcceptedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return r.rides(ctx, `
		SELECT `+plainRideColumns+` FROM rides r
		JOIN ride_requests rr ON rr.ride_id = r.id
		WHERE rr.requester_id = $1 AND rr.status = 'accepted' AND r.owner_id <> $1
	`, userID)
}

// RequestedRides covers any request by the user and any request by others on
// the user's own rides.
func (r *chatRepository) RequestedRides(ctx context.Context, userID uuid.UUID) ([]models.Ride, error) {
	return r.rides(ctx, `
		SELECT DISTINCT `+plainRideColumns+` FROM rides r
		JOIN ride_requests rr ON rr.ride_id = r.id
		WHERE rr.requester_id = $1
		   OR (r.owner_id = $1 AND rr.requester_id <> $1)
	`, userID)
}

func (r *chatRepository) latestPerRide(ctx context.Context, query string, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	result := make(map[uuid.UUID]uuid.UUID, len(rideIDs))
	if len(rideIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, query, idArray(rideIDs))
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		var rideID, userID uuid.UUID
		if err := rows.Scan(&rideID, &userID); err != nil {
			continue
		}
		result[rideID] = userID
	}
	return result, rows.Err()
}

func (r *chatRepository) LatestRequesters(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	return r.latestPerRide(ctx, `
		SELECT DISTINCT ON (rr.ride_id) rr.ride_id, rr.requester_id
		FROM ride_requests rr
		JOIN rides r ON r.id = rr.ride_id
		WHERE rr.ride_id = ANY($1::uuid[]) AND rr.requester_id <> r.owner_id
		ORDER BY rr.ride_id, rr.created_at DESC
	`, rideIDs)
}

func (r *chatRepository) LatestSenders(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	return r.latestPerRide(ctx, `
		SELECT DISTINCT ON (m.ride_id) m.ride_id, m.sender_id
		FROM messages m
		JOIN rides r ON r.id = m.ride_id
		WHERE m.ride_id = ANY($1::uuid[]) AND m.sender_id <> r.owner_id
		ORDER BY m.ride_id, m.seq DESC
	`, rideIDs)
}
