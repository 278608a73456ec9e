package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/models"
)

const activitySchema = `
	CREATE TABLE IF NOT EXISTS activity_logs (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		case_id     TEXT NOT NULL,
		staff_id    TEXT NOT NULL,
		action      TEXT NOT NULL,
		description TEXT NOT NULL,
		trace_id    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS activity_logs_case_id_idx ON activity_logs (case_id, created_at DESC);
`

// ActivityLogService records staff actions on cases for accountability
type ActivityLogService struct {
	db     *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewActivityLogService creates a new activity log service
func NewActivityLogService(db *pgxpool.Pool, logger *zap.SugaredLogger) *ActivityLogService {
	return &ActivityLogService{db: db, logger: logger}
}

// EnsureSchema creates the activity_logs table if it does not exist
func (s *ActivityLogService) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, activitySchema); err != nil {
		return fmt.Errorf("create activity_logs: %w", err)
	}
	return nil
}

// Log records a staff action
func (s *ActivityLogService) Log(ctx context.Context, entry *models.ActivityLogEntry) error {
	query := `
		INSERT INTO activity_logs (case_id, staff_id, action, description, trace_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.Exec(ctx, query,
		entry.CaseID,
		entry.StaffID,
		entry.Action,
		entry.Description,
		entry.TraceID,
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}

	s.logger.Infow("Activity logged",
		"case_id", entry.CaseID,
		"staff_id", entry.StaffID,
		"action", entry.Action,
	)

	return nil
}

// FetchByCase returns the most recent actions taken on a case
func (s *ActivityLogService) FetchByCase(ctx context.Context, caseID string, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT id, case_id, staff_id, action, description, trace_id, created_at
		FROM activity_logs
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return s.fetch(ctx, query, caseID, limit)
}

// FetchRecent returns recent actions across all cases
func (s *ActivityLogService) FetchRecent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT id, case_id, staff_id, action, description, trace_id, created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	return s.fetch(ctx, query, limit)
}

func (s *ActivityLogService) fetch(ctx context.Context, query string, args ...any) ([]models.ActivityLog, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	logs := []models.ActivityLog{}
	for rows.Next() {
		var log models.ActivityLog
		if err := rows.Scan(&log.ID, &log.CaseID, &log.StaffID,
			&log.Action, &log.Description, &log.TraceID, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
