package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/movitel/lineops/internal/journal/domain"
)

type PgEventRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgEventRepository creates a new PostgreSQL implementation of EventRepository.
func NewPgEventRepository(dbPool *pgxpool.Pool, logger *slog.Logger) *PgEventRepository {
	return &PgEventRepository{
		db:     dbPool,
		logger: logger,
	}
}

// Create inserts a new event record into the realtime_events table.
func (r *PgEventRepository) Create(ctx context.Context, record *domain.EventRecord) error {
	query := `
		INSERT INTO realtime_events (id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.EventType,
		record.Payload,
		record.ReceivedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting event record into database",
			"error", err,
			"event_id", record.ID,
			"event_type", record.EventType,
		)
		return err
	}

	r.logger.DebugContext(ctx, "Event record inserted", "event_id", record.ID, "event_type", record.EventType)
	return nil
}

// Recent returns the newest event records, most recent first.
func (r *PgEventRepository) Recent(ctx context.Context, limit int) ([]domain.EventRecord, error) {
	query := `
		SELECT id, event_type, payload, received_at
		FROM realtime_events
		ORDER BY received_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying recent event records", "error", err)
		return nil, err
	}
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Payload, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
