package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 报警事件档案仓库
// 会话内存日志之外的持久化归档（对应 alert_events 表）
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建报警事件仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertEventFilters 报警事件过滤条件
type AlertEventFilters struct {
	// 时间段过滤
	StartTime *time.Time // triggered_at >= StartTime
	EndTime   *time.Time // triggered_at <= EndTime

	// 类型和级别过滤
	AlertType  *string
	Severity   *string
	Severities []string // IN 查询

	// 状态过滤
	Acknowledged *bool
}

// CreateAlertEvent 归档一条报警事件
func (r *AlertEventsRepository) CreateAlertEvent(ctx context.Context, tripID string, alert *models.Alert) error {
	if tripID == "" {
		return fmt.Errorf("trip_id is required")
	}
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert.id is required")
	}

	query := `
		INSERT INTO alert_events (
			event_id,
			trip_id,
			alert_type,
			severity,
			confidence,
			acknowledged,
			ack_time,
			triggered_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		alert.ID,
		tripID,
		string(alert.Type),
		alert.Severity.String(),
		alert.Confidence,
		alert.Acknowledged,
		nil,
		alert.Timestamp,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to create alert event: %w", err)
	}

	return nil
}

// AcknowledgeAlertEvent 确认报警事件（设置 acknowledged 和 ack_time）
func (r *AlertEventsRepository) AcknowledgeAlertEvent(ctx context.Context, tripID, eventID string) error {
	if tripID == "" {
		return fmt.Errorf("trip_id is required")
	}
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE alert_events
		SET acknowledged = TRUE,
		    ack_time = $1
		WHERE event_id = $2
		  AND trip_id = $3
		  AND acknowledged = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), eventID, tripID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found or already acknowledged: event_id=%s, trip_id=%s", eventID, tripID)
	}

	return nil
}

// buildWhereClause 构建 WHERE 子句（用于列表和计数）
func (r *AlertEventsRepository) buildWhereClause(tripID string, filters AlertEventFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("trip_id = $%d", *argN)}
	*args = append(*args, tripID)
	*argN++

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", *argN))
		*args = append(*args, *filters.AlertType)
		*argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, *filters.Severity)
		*argN++
	}
	if len(filters.Severities) > 0 {
		placeholders := make([]string, len(filters.Severities))
		for i := range filters.Severities {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Severities[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filters.Acknowledged != nil {
		where = append(where, fmt.Sprintf("acknowledged = $%d", *argN))
		*args = append(*args, *filters.Acknowledged)
		*argN++
	}

	return where
}

// ListAlertEvents 列表查询（支持过滤、分页，最新在前）
func (r *AlertEventsRepository) ListAlertEvents(ctx context.Context, tripID string, filters AlertEventFilters, page, size int) ([]*models.AlertEvent, int, error) {
	if tripID == "" {
		return []*models.AlertEvent{}, 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tripID, filters, &args, &argN)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM alert_events
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT
			event_id,
			trip_id,
			alert_type,
			severity,
			confidence,
			acknowledged,
			ack_time,
			triggered_at,
			created_at
		FROM alert_events
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)+1, len(args)+2)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlertEvent{}
	for rows.Next() {
		event, err := scanAlertEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, total, nil
}

// GetRecentAlertEvent 获取最近的同类型报警事件（用于归档侧的重复检查）
// 窗口内没有记录时返回 (nil, nil)
func (r *AlertEventsRepository) GetRecentAlertEvent(ctx context.Context, tripID string, alertType models.AlertType, within time.Duration) (*models.AlertEvent, error) {
	if tripID == "" {
		return nil, fmt.Errorf("trip_id is required")
	}
	if alertType == "" {
		return nil, fmt.Errorf("alert_type is required")
	}

	thresholdTime := time.Now().Add(-within)

	query := `
		SELECT
			event_id,
			trip_id,
			alert_type,
			severity,
			confidence,
			acknowledged,
			ack_time,
			triggered_at,
			created_at
		FROM alert_events
		WHERE trip_id = $1
		  AND alert_type = $2
		  AND triggered_at > $3
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, tripID, string(alertType), thresholdTime)
	event, err := scanAlertEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return event, nil
}

// CountAlertEvents 统计报警事件数量（按条件）
func (r *AlertEventsRepository) CountAlertEvents(ctx context.Context, tripID string, filters AlertEventFilters) (int, error) {
	if tripID == "" {
		return 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tripID, filters, &args, &argN)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM alert_events
		WHERE %s
	`, strings.Join(where, " AND "))

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	return total, nil
}

// GetUnacknowledgedAlertEvents 获取未确认的报警事件
func (r *AlertEventsRepository) GetUnacknowledgedAlertEvents(ctx context.Context, tripID string, page, size int) ([]*models.AlertEvent, int, error) {
	acknowledged := false
	return r.ListAlertEvents(ctx, tripID, AlertEventFilters{Acknowledged: &acknowledged}, page, size)
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAlertEvent 扫描一行报警事件
func scanAlertEvent(s scanner) (*models.AlertEvent, error) {
	var event models.AlertEvent
	var alertType, severity string
	var ackTime sql.NullTime

	err := s.Scan(
		&event.EventID,
		&event.TripID,
		&alertType,
		&severity,
		&event.Confidence,
		&event.Acknowledged,
		&ackTime,
		&event.TriggeredAt,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert event: %w", err)
	}

	event.Type = models.AlertType(alertType)
	level, err := models.ParseRiskLevel(severity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse severity: %w", err)
	}
	event.Severity = level

	if ackTime.Valid {
		event.AckTime = &ackTime.Time
	}

	return &event, nil
}
