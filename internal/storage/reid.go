package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/watchtower/internal/models"
)

// RecordDetection commits one queued detection task: the person
// aggregate upsert and exactly one branch_detections fact row, as a
// single transaction. Either both land or neither does.
func (s *PostgresStore) RecordDetection(ctx context.Context, d *models.BranchDetection) (*models.ReIDPerson, error) {
	var person *models.ReIDPerson
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := upsertPerson(ctx, tx,
			d.ReID, d.BranchID, d.DetectionTimestamp, d.DetectedCount, d.DetectionData)
		if err != nil {
			return err
		}

		d.ID = uuid.New()
		d.CreatedAt = time.Now().UTC()
		data := d.DetectionData
		if data == nil {
			data = json.RawMessage("{}")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO branch_detections (id, re_id, branch_id, device_id, detection_timestamp, detected_count, detection_data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, d.ReID, d.BranchID, d.DeviceID, d.DetectionTimestamp, d.DetectedCount, data, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert branch detection: %w", err)
		}

		person = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// RecordEventLog is the event-style twin of RecordDetection: same
// person upsert, but the fact lands in event_logs with its image path
// and delivery flags. image_sent is set when an image was stored.
func (s *PostgresStore) RecordEventLog(ctx context.Context, e *models.EventLog) (*models.ReIDPerson, error) {
	var person *models.ReIDPerson
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := upsertPerson(ctx, tx,
			e.ReID, e.BranchID, e.DetectionTimestamp, e.DetectedCount, e.EventData)
		if err != nil {
			return err
		}

		e.ID = uuid.New()
		e.CreatedAt = time.Now().UTC()
		e.ImageSent = e.ImagePath != ""
		data := e.EventData
		if data == nil {
			data = json.RawMessage("{}")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO event_logs (id, re_id, branch_id, device_id, event_type, detection_timestamp, detected_count, event_data, image_path, image_sent, message_sent, notification_sent, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, false, $11)`,
			e.ID, e.ReID, e.BranchID, e.DeviceID, e.EventType, e.DetectionTimestamp,
			e.DetectedCount, data, e.ImagePath, e.ImageSent, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert event log: %w", err)
		}

		person = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// upsertPerson resolves or creates the (re_id, day) aggregate row
// inside the caller's transaction. The day derives from the event's
// own timestamp. On the existing-row path the row is locked FOR UPDATE
// for the whole read-modify-write, so concurrent workers cannot lose
// counter updates. Both fact families feed the same aggregate, so the
// branch counter moves only when neither branch_detections nor
// event_logs holds a prior row for this branch on this day.
func upsertPerson(ctx context.Context, tx pgx.Tx, reID string, branchID int64, ts time.Time, count int, features json.RawMessage) (*models.ReIDPerson, error) {
	date := models.DetectionDateOf(ts)
	if features == nil {
		features = json.RawMessage("{}")
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO reid_persons (re_id, detection_date, detection_time, appearance_features, first_detected_at, last_detected_at, total_detection_branch_count, total_actual_count, status)
		 VALUES ($1, $2, $3, $4, $3, $3, 1, $5, 'active')
		 ON CONFLICT (re_id, detection_date) DO NOTHING`,
		reID, date, ts, features, count)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return models.NewReIDPerson(reID, ts, count, features), nil
	}

	p := &models.ReIDPerson{}
	err = tx.QueryRow(ctx,
		`SELECT re_id, detection_date, detection_time, person_name, appearance_features, first_detected_at, last_detected_at, total_detection_branch_count, total_actual_count, status
		 FROM reid_persons WHERE re_id = $1 AND detection_date = $2 FOR UPDATE`,
		reID, date,
	).Scan(&p.ReID, &p.DetectionDate, &p.DetectionTime, &p.PersonName, &p.AppearanceFeatures,
		&p.FirstDetectedAt, &p.LastDetectedAt, &p.BranchCount, &p.ActualCount, &p.Status)
	if err != nil {
		return nil, fmt.Errorf("lock person: %w", err)
	}

	var seen bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM branch_detections
			WHERE re_id = $1 AND branch_id = $2
			  AND detection_timestamp >= $3 AND detection_timestamp < $4)
		 OR EXISTS (
			SELECT 1 FROM event_logs
			WHERE re_id = $1 AND branch_id = $2
			  AND detection_timestamp >= $3 AND detection_timestamp < $4)`,
		reID, branchID, date, date.AddDate(0, 0, 1),
	).Scan(&seen)
	if err != nil {
		return nil, fmt.Errorf("check branch contribution: %w", err)
	}

	p.ApplyDetection(ts, count, !seen)

	_, err = tx.Exec(ctx,
		`UPDATE reid_persons
		 SET total_actual_count = $3, total_detection_branch_count = $4,
		     first_detected_at = $5, last_detected_at = $6, updated_at = now()
		 WHERE re_id = $1 AND detection_date = $2`,
		reID, date, p.ActualCount, p.BranchCount, p.FirstDetectedAt, p.LastDetectedAt)
	if err != nil {
		return nil, fmt.Errorf("update person counters: %w", err)
	}
	return p, nil
}

// --- Person projections ---

func (s *PostgresStore) GetPerson(ctx context.Context, reID string, date time.Time) (*models.ReIDPerson, error) {
	p := &models.ReIDPerson{}
	err := s.pool.QueryRow(ctx,
		`SELECT re_id, detection_date, detection_time, person_name, appearance_features, first_detected_at, last_detected_at, total_detection_branch_count, total_actual_count, status, created_at, updated_at
		 FROM reid_persons WHERE re_id = $1 AND detection_date = $2`,
		reID, models.DetectionDateOf(date),
	).Scan(&p.ReID, &p.DetectionDate, &p.DetectionTime, &p.PersonName, &p.AppearanceFeatures,
		&p.FirstDetectedAt, &p.LastDetectedAt, &p.BranchCount, &p.ActualCount, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context, date time.Time, limit, offset int) ([]models.ReIDPerson, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	day := models.DetectionDateOf(date)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reid_persons WHERE detection_date = $1`, day).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT re_id, detection_date, detection_time, person_name, appearance_features, first_detected_at, last_detected_at, total_detection_branch_count, total_actual_count, status, created_at, updated_at
		 FROM reid_persons WHERE detection_date = $1
		 ORDER BY last_detected_at DESC LIMIT $2 OFFSET $3`,
		day, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.ReIDPerson
	for rows.Next() {
		var p models.ReIDPerson
		if err := rows.Scan(&p.ReID, &p.DetectionDate, &p.DetectionTime, &p.PersonName, &p.AppearanceFeatures,
			&p.FirstDetectedAt, &p.LastDetectedAt, &p.BranchCount, &p.ActualCount, &p.Status,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, total, nil
}

// UpdatePersonProfile applies the only operator mutations the pipeline
// allows on the aggregate: rename and status toggle.
func (s *PostgresStore) UpdatePersonProfile(ctx context.Context, reID string, date time.Time, name *string, status *models.PersonStatus) error {
	day := models.DetectionDateOf(date)

	set := ""
	args := []interface{}{reID, day}
	argIdx := 3
	if name != nil {
		set += fmt.Sprintf(", person_name = $%d", argIdx)
		args = append(args, *name)
		argIdx++
	}
	if status != nil {
		set += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, *status)
	}
	if set == "" {
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reid_persons SET updated_at = now()`+set+` WHERE re_id = $1 AND detection_date = $2`,
		args...)
	if err != nil {
		return fmt.Errorf("update person profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Detection projections ---

func (s *PostgresStore) QueryDetections(ctx context.Context, branchID *int64, reID string, from, to *time.Time, limit, offset int) ([]models.BranchDetection, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if branchID != nil {
		baseWhere += fmt.Sprintf(" AND branch_id = $%d", argIdx)
		args = append(args, *branchID)
		argIdx++
	}
	if reID != "" {
		baseWhere += fmt.Sprintf(" AND re_id = $%d", argIdx)
		args = append(args, reID)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND detection_timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND detection_timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM branch_detections " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, re_id, branch_id, device_id, detection_timestamp, detected_count, detection_data, created_at
		 FROM branch_detections %s ORDER BY detection_timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var detections []models.BranchDetection
	for rows.Next() {
		var d models.BranchDetection
		if err := rows.Scan(&d.ID, &d.ReID, &d.BranchID, &d.DeviceID, &d.DetectionTimestamp,
			&d.DetectedCount, &d.DetectionData, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, total, nil
}

// --- Event log projections ---

func (s *PostgresStore) QueryEventLogs(ctx context.Context, branchID *int64, reID string, eventType models.EventType, from, to *time.Time, limit, offset int) ([]models.EventLog, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if branchID != nil {
		baseWhere += fmt.Sprintf(" AND branch_id = $%d", argIdx)
		args = append(args, *branchID)
		argIdx++
	}
	if reID != "" {
		baseWhere += fmt.Sprintf(" AND re_id = $%d", argIdx)
		args = append(args, reID)
		argIdx++
	}
	if eventType != "" {
		baseWhere += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND detection_timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND detection_timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM event_logs "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count event logs: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, re_id, branch_id, device_id, event_type, detection_timestamp, detected_count, event_data, image_path, image_sent, message_sent, notification_sent, created_at
		 FROM event_logs %s ORDER BY detection_timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query event logs: %w", err)
	}
	defer rows.Close()

	var events []models.EventLog
	for rows.Next() {
		var e models.EventLog
		if err := rows.Scan(&e.ID, &e.ReID, &e.BranchID, &e.DeviceID, &e.EventType, &e.DetectionTimestamp,
			&e.DetectedCount, &e.EventData, &e.ImagePath, &e.ImageSent, &e.MessageSent,
			&e.NotificationSent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event log: %w", err)
		}
		events = append(events, e)
	}
	return events, total, nil
}

// --- Branch summary ---

type BranchSummary struct {
	BranchID      int64  `json:"branch_id"`
	BranchName    string `json:"branch_name"`
	DetectedTotal int64  `json:"detected_total"`
	UniquePersons int64  `json:"unique_persons"`
	DetectionRows int64  `json:"detection_rows"`
}

// BranchSummaries aggregates one day's detections per branch.
func (s *PostgresStore) BranchSummaries(ctx context.Context, date time.Time) ([]BranchSummary, error) {
	day := models.DetectionDateOf(date)
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.name,
		        COALESCE(SUM(d.detected_count), 0),
		        COUNT(DISTINCT d.re_id),
		        COUNT(d.id)
		 FROM branches b
		 LEFT JOIN branch_detections d
		   ON d.branch_id = b.id
		  AND d.detection_timestamp >= $1 AND d.detection_timestamp < $2
		 GROUP BY b.id, b.name ORDER BY b.id`,
		day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("branch summaries: %w", err)
	}
	defer rows.Close()

	var summaries []BranchSummary
	for rows.Next() {
		var sm BranchSummary
		if err := rows.Scan(&sm.BranchID, &sm.BranchName, &sm.DetectedTotal, &sm.UniquePersons, &sm.DetectionRows); err != nil {
			return nil, fmt.Errorf("scan branch summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, nil
}

// GetEventLog returns a single event log row, used by the image proxy.
func (s *PostgresStore) GetEventLog(ctx context.Context, id uuid.UUID) (*models.EventLog, error) {
	e := &models.EventLog{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, re_id, branch_id, device_id, event_type, detection_timestamp, detected_count, event_data, image_path, image_sent, message_sent, notification_sent, created_at
		 FROM event_logs WHERE id = $1`, id,
	).Scan(&e.ID, &e.ReID, &e.BranchID, &e.DeviceID, &e.EventType, &e.DetectionTimestamp,
		&e.DetectedCount, &e.EventData, &e.ImagePath, &e.ImageSent, &e.MessageSent,
		&e.NotificationSent, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get event log: %w", err)
	}
	return e, nil
}
