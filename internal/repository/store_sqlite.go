package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"climate_bridge/internal/models"
)

// SQLiteStore keeps the state store collections in the local database. It is
// the offline counterpart of RESTStore.
type SQLiteStore struct {
	db *sql.DB
}

var _ StateStore = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

const (
	selectLatestSensorSQL = `SELECT temperatura, humedad, setpoint, alert, created_at FROM sensor_readings ORDER BY created_at DESC, id DESC LIMIT 1`
	insertSensorSQL       = `INSERT INTO sensor_readings (temperatura, humedad, setpoint, alert, created_at) VALUES (?, ?, ?, ?, ?)`
	selectLatestConfigSQL = `SELECT id, setpoint, hysteresis, temp_max, temp_min, updated_at FROM system_config ORDER BY id DESC LIMIT 1`
	insertRelaySQL        = `INSERT INTO relay_states (relay_number, relay_name, state, mode, created_at) VALUES (?, ?, ?, ?, ?)`
	selectLatestRelaySQL  = `SELECT relay_number, relay_name, state, mode, created_at FROM relay_states WHERE relay_number = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	insertAlertSQL        = `INSERT INTO system_alerts (alert_type, message, severity, created_at) VALUES (?, ?, ?, ?)`
	selectAlertsSQL       = `SELECT alert_type, message, severity, created_at FROM system_alerts ORDER BY created_at DESC, id DESC LIMIT ?`
)

func (s *SQLiteStore) LatestSensorReading(ctx context.Context) (models.SensorReading, error) {
	var (
		temp, hum, setpoint sql.NullFloat64
		alert               sql.NullString
		createdAt           string
	)
	err := s.db.QueryRowContext(ctx, selectLatestSensorSQL).Scan(&temp, &hum, &setpoint, &alert, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SensorReading{}, ErrNotFound
		}
		return models.SensorReading{}, fmt.Errorf("select latest sensor reading: %w", err)
	}

	out := models.DefaultSensorReading()
	if temp.Valid {
		out.Temperature = models.Float(temp.Float64)
	}
	if hum.Valid {
		out.Humidity = models.Float(hum.Float64)
	}
	if setpoint.Valid {
		out.Setpoint = setpoint.Float64
	}
	if alert.Valid && alert.String != "" {
		out.Alert = alert.String
	}
	out.CreatedAt = parseTime(createdAt)
	return out, nil
}

func (s *SQLiteStore) AppendSensorReading(ctx context.Context, r models.SensorReading) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertSensorSQL,
		nullFloat(r.Temperature), nullFloat(r.Humidity), r.Setpoint, r.Alert, formatTime(created))
	if err != nil {
		return fmt.Errorf("insert sensor reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestSystemConfig(ctx context.Context) (models.SystemConfig, error) {
	var (
		c         models.SystemConfig
		updatedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectLatestConfigSQL).
		Scan(&c.ID, &c.Setpoint, &c.Hysteresis, &c.TempMax, &c.TempMin, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SystemConfig{}, ErrNotFound
		}
		return models.SystemConfig{}, fmt.Errorf("select latest config: %w", err)
	}
	if updatedAt.Valid {
		c.UpdatedAt = parseTime(updatedAt.String)
	}
	return c, nil
}

// PatchSystemConfig updates only the provided columns of the latest row.
func (s *SQLiteStore) PatchSystemConfig(ctx context.Context, p models.ConfigPatch) error {
	current, err := s.LatestSystemConfig(ctx)
	if err != nil {
		return fmt.Errorf("resolve config row: %w", err)
	}

	var (
		sets []string
		args []any
	)
	if p.Setpoint != nil {
		sets = append(sets, "setpoint = ?")
		args = append(args, *p.Setpoint)
	}
	if p.Hysteresis != nil {
		sets = append(sets, "hysteresis = ?")
		args = append(args, *p.Hysteresis)
	}
	if p.TempMax != nil {
		sets = append(sets, "temp_max = ?")
		args = append(args, *p.TempMax)
	}
	if p.TempMin != nil {
		sets = append(sets, "temp_min = ?")
		args = append(args, *p.TempMin)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(updated), current.ID)

	q := "UPDATE system_config SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update config %d: %w", current.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendRelayRecord(ctx context.Context, r models.RelayRecord) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertRelaySQL, r.RelayNumber, r.RelayName, r.State, int(r.Mode), formatTime(created))
	if err != nil {
		return fmt.Errorf("insert relay %d record: %w", r.RelayNumber, err)
	}
	return nil
}

func (s *SQLiteStore) LatestRelayRecord(ctx context.Context, relay int) (models.RelayRecord, error) {
	var (
		r         models.RelayRecord
		mode      int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, selectLatestRelaySQL, relay).
		Scan(&r.RelayNumber, &r.RelayName, &r.State, &mode, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RelayRecord{}, ErrNotFound
		}
		return models.RelayRecord{}, fmt.Errorf("select relay %d: %w", relay, err)
	}
	r.Mode = models.RelayMode(mode)
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

func (s *SQLiteStore) AppendAlert(ctx context.Context, a models.Alert) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertAlertSQL, a.Type, a.Message, string(a.Severity), formatTime(created))
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.Type, err)
	}
	return nil
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	rows, err := s.db.QueryContext(ctx, selectAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var (
			a         models.Alert
			severity  string
			createdAt string
		)
		if err := rows.Scan(&a.Type, &a.Message, &severity, &createdAt); err != nil {
			return nil, err
		}
		a.Severity = models.Severity(severity)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
