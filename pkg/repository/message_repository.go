package repository

import (
	"context"
	"database/sql"

	"campusride/pkg/models"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Insert(ctx context.Context, m models.Message) (models.Message, error)
	Get(ctx context.Context, rideID, id uuid.UUID) (models.Message, error)
	ListByRide(ctx context.Context, rideID uuid.UUID) ([]models.Message, error)
	LatestByRides(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
	Delete(ctx context.Context, rideID, id uuid.UUID) (int64, error)
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `m.id, m.ride_id, m.sender_id, m.content, m.created_at, m.seq, m.message_type, m.phone_number, m.phone_shared`

func scanMessage(s scanner) (models.Message, error) {
	var m models.Message
	var kind string
	var phone sql.NullString
	var shared bool
	if err := s.Scan(&m.ID, &m.RideID, &m.SenderID, &m.Content, &m.CreatedAt, &m.Seq, &kind, &phone, &shared); err != nil {
		return m, err
	}
	var p *string
	if phone.Valid {
		p = &phone.String
	}
	m.Body = models.BodyFromColumns(kind, p, shared)
	return m, nil
}

func (r *messageRepository) Insert(ctx context.Context, m models.Message) (models.Message, error) {
	kind, phone, shared := m.Columns()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (ride_id, sender_id, content, message_type, phone_number, phone_shared)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, seq, created_at
	`, m.RideID, m.SenderID, m.Content, kind, phone, shared).Scan(&m.ID, &m.Seq, &m.CreatedAt)
	return m, err
}

func (r *messageRepository) Get(ctx context.Context, rideID, id uuid.UUID) (models.Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages m WHERE m.ride_id = $1 AND m.id = $2
	`, rideID, id))
}

func (r *messageRepository) ListByRide(ctx context.Context, rideID uuid.UUID) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m WHERE m.ride_id = $1 ORDER BY m.seq ASC
	`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messageRepository) LatestByRides(ctx context.Context, rideIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	result := make(map[uuid.UUID]models.Message, len(rideIDs))
	if len(rideIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (m.ride_id) `+messageColumns+`
		FROM messages m
		WHERE m.ride_id = ANY($1::uuid[])
		ORDER BY m.ride_id, m.seq DESC
	`, idArray(rideIDs))
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			continue
		}
		result[m.RideID] = m
	}
	return result, rows.Err()
}

func (r *messageRepository) Delete(ctx context.Context, rideID, id uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE ride_id = $1 AND id = $2`, rideID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
