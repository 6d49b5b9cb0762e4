package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrAlertNotFound is returned when an alert id matches no row
var ErrAlertNotFound = errors.New("alert not found")

// DefaultAlertLimit caps alert listings
const DefaultAlertLimit = 50

// Postgres implements the relational stores: supervisor directory, alerts and QA scores
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgres connects to the database, verifies it and applies migrations
func NewPostgres(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Postgres, error) {
	logger = logger.With().Str("component", "postgres").Logger()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Int32("max_conns", pool.Config().MaxConns).Msg("Postgres store initialized")
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// LoadSupervisorMappings reads the extension -> supervisor directory
func (p *Postgres) LoadSupervisorMappings(ctx context.Context) ([]types.SupervisorMapping, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT extension, supervisor_reference
		FROM public.directory_search
		WHERE role = 'Agent'
		  AND extension IS NOT NULL
		  AND supervisor_reference IS NOT NULL
		  AND supervisor_reference != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query supervisor mappings: %w", err)
	}
	defer rows.Close()

	var mappings []types.SupervisorMapping
	for rows.Next() {
		var m types.SupervisorMapping
		if err := rows.Scan(&m.Extension, &m.SupervisorID); err != nil {
			return nil, fmt.Errorf("failed to scan supervisor mapping: %w", err)
		}
		m.Extension = strings.TrimSpace(m.Extension)
		m.SupervisorID = strings.TrimSpace(m.SupervisorID)
		if m.Extension == "" || m.SupervisorID == "" {
			continue
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read supervisor mappings: %w", err)
	}
	return mappings, nil
}

// InsertAlert stores a supervisor alert and returns its id
func (p *Postgres) InsertAlert(ctx context.Context, alert types.SupervisorAlert) (int64, error) {
	transcripts, err := json.Marshal(alert.RecentTranscripts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert transcripts: %w", err)
	}
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert metadata: %w", err)
	}

	var supervisorID *string
	if alert.SupervisorID != "" {
		supervisorID = &alert.SupervisorID
	}

	var alertID int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO supervisor_alerts
			(call_id, agent_id, supervisor_id, alert_type, negative_streak_count,
			 alert_reason, customer_sentiment_score, recent_transcripts, alert_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING alert_id`,
		alert.CallID,
		alert.AgentID,
		supervisorID,
		alert.AlertType,
		alert.StreakCount,
		alert.Reason,
		alert.AvgCustomerSentiment,
		transcripts,
		metadata,
	).Scan(&alertID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert supervisor alert: %w", err)
	}

	p.logger.Info().
		Int64("alert_id", alertID).
		Str("call_id", alert.CallID).
		Str("agent_id", alert.AgentID).
		Str("supervisor_id", alert.SupervisorID).
		Msg("supervisor alert stored")
	return alertID, nil
}

// AcknowledgeAlert marks an alert acknowledged by the given supervisor
func (p *Postgres) AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE supervisor_alerts
		SET alert_status = 'acknowledged',
		    acknowledged_at = CURRENT_TIMESTAMP,
		    acknowledged_by = $1
		WHERE alert_id = $2`,
		acknowledgedBy, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListAlerts returns alerts with the given status, newest first. An empty
// supervisorID lists across all supervisors.
func (p *Postgres) ListAlerts(ctx context.Context, supervisorID string, status types.AlertStatus, limit int) ([]types.SupervisorAlert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	query := `
		SELECT alert_id, call_id, agent_id, COALESCE(supervisor_id, ''), alert_type,
		       negative_streak_count, alert_reason, customer_sentiment_score,
		       recent_transcripts, alert_metadata, alert_status, alert_timestamp,
		       acknowledged_by, acknowledged_at
		FROM supervisor_alerts
		WHERE alert_status = $1`
	args := []interface{}{string(status)}
	if supervisorID != "" {
		query += ` AND supervisor_id = $2`
		args = append(args, supervisorID)
	}
	query += fmt.Sprintf(` ORDER BY alert_timestamp DESC LIMIT %d`, limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []types.SupervisorAlert{}
	for rows.Next() {
		var (
			a           types.SupervisorAlert
			transcripts []byte
			metadata    []byte
			st          string
		)
		if err := rows.Scan(
			&a.AlertID, &a.CallID, &a.AgentID, &a.SupervisorID, &a.AlertType,
			&a.StreakCount, &a.Reason, &a.AvgCustomerSentiment,
			&transcripts, &metadata, &st, &a.CreatedAt,
			&a.AcknowledgedBy, &a.AcknowledgedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Status = types.AlertStatus(st)
		if err := json.Unmarshal(transcripts, &a.RecentTranscripts); err != nil {
			p.logger.Warn().Err(err).Int64("alert_id", a.AlertID).Msg("malformed alert transcripts")
		}
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			p.logger.Warn().Err(err).Int64("alert_id", a.AlertID).Msg("malformed alert metadata")
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, nil
}

// InsertQAScore stores the QA result of an ended call. The breakdown is kept
// as JSON in the message column.
func (p *Postgres) InsertQAScore(ctx context.Context, rec types.QAScoreRecord) error {
	message, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal QA breakdown: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO qa_score (call_id, agent_id, customer_id, qa_score, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.CallID, rec.AgentID, rec.CustomerID, rec.OverallScore, message, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert QA score: %w", err)
	}

	p.logger.Info().
		Str("call_id", rec.CallID).
		Str("agent_id", rec.AgentID).
		Float64("qa_score", rec.OverallScore).
		Msg("QA score stored")
	return nil
}
