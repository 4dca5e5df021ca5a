package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"climate_bridge/internal/models"
)

// PostgREST collections.
const (
	tableSensorReadings = "sensor_readings"
	tableSystemConfig   = "system_config"
	tableRelayStates    = "relay_states"
	tableSystemAlerts   = "system_alerts"
)

const (
	defaultStoreTimeout = 8 * time.Second
	maxErrorBody        = 512
	defaultAlertLimit   = 20
)

// RESTStore talks to a PostgREST endpoint such as Supabase (/rest/v1).
type RESTStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ StateStore = (*RESTStore)(nil)

// NewRESTStore returns a store rooted at baseURL (the project URL, without /rest/v1).
func NewRESTStore(baseURL, apiKey string, timeout time.Duration) *RESTStore {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return NewRESTStoreWithClient(baseURL, apiKey, &http.Client{Timeout: timeout})
}

// NewRESTStoreWithClient is NewRESTStore with a caller-supplied HTTP client.
func NewRESTStoreWithClient(baseURL, apiKey string, client *http.Client) *RESTStore {
	return &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1/",
		apiKey:  apiKey,
		http:    client,
	}
}

type sensorRow struct {
	Temperatura *float64 `json:"temperatura"`
	Humedad     *float64 `json:"humedad"`
	Setpoint    *float64 `json:"setpoint,omitempty"`
	Alert       *string  `json:"alert,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func (r sensorRow) model() models.SensorReading {
	out := models.DefaultSensorReading()
	out.Temperature = r.Temperatura
	out.Humidity = r.Humedad
	if r.Setpoint != nil {
		out.Setpoint = *r.Setpoint
	}
	if r.Alert != nil && *r.Alert != "" {
		out.Alert = *r.Alert
	}
	out.CreatedAt = parseTime(r.CreatedAt)
	return out
}

type configRow struct {
	ID         int64   `json:"id"`
	Setpoint   float64 `json:"setpoint"`
	Hysteresis float64 `json:"hysteresis"`
	TempMax    float64 `json:"temp_max"`
	TempMin    float64 `json:"temp_min"`
	UpdatedAt  string  `json:"updated_at"`
}

func (r configRow) model() models.SystemConfig {
	return models.SystemConfig{
		ID:         r.ID,
		Setpoint:   r.Setpoint,
		Hysteresis: r.Hysteresis,
		TempMax:    int(r.TempMax),
		TempMin:    int(r.TempMin),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}
}

type relayRow struct {
	RelayNumber int    `json:"relay_number"`
	RelayName   string `json:"relay_name"`
	State       bool   `json:"state"`
	Mode        int    `json:"mode"`
	CreatedAt   string `json:"created_at"`
}

func (r relayRow) model() models.RelayRecord {
	return models.RelayRecord{
		RelayNumber: r.RelayNumber,
		RelayName:   r.RelayName,
		State:       r.State,
		Mode:        models.RelayMode(r.Mode),
		CreatedAt:   parseTime(r.CreatedAt),
	}
}

type alertRow struct {
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	CreatedAt string `json:"created_at"`
}

func latestQuery(orderBy string) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", orderBy+".desc")
	q.Set("limit", "1")
	return q
}

func (s *RESTStore) LatestSensorReading(ctx context.Context) (models.SensorReading, error) {
	var rows []sensorRow
	if err := s.get(ctx, tableSensorReadings, latestQuery("created_at"), &rows); err != nil {
		return models.SensorReading{}, err
	}
	if len(rows) == 0 {
		return models.SensorReading{}, ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *RESTStore) AppendSensorReading(ctx context.Context, r models.SensorReading) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	row := sensorRow{
		Temperatura: r.Temperature,
		Humedad:     r.Humidity,
		Setpoint:    &r.Setpoint,
		CreatedAt:   created.UTC().Format(time.RFC3339Nano),
	}
	return s.send(ctx, http.MethodPost, tableSensorReadings, nil, row, http.StatusOK, http.StatusCreated)
}

func (s *RESTStore) LatestSystemConfig(ctx context.Context) (models.SystemConfig, error) {
	var rows []configRow
	if err := s.get(ctx, tableSystemConfig, latestQuery("id"), &rows); err != nil {
		return models.SystemConfig{}, err
	}
	if len(rows) == 0 {
		return models.SystemConfig{}, ErrNotFound
	}
	return rows[0].model(), nil
}

// PatchSystemConfig reads the latest row id, then patches that row.
func (s *RESTStore) PatchSystemConfig(ctx context.Context, p models.ConfigPatch) error {
	current, err := s.LatestSystemConfig(ctx)
	if err != nil {
		return fmt.Errorf("resolve config row: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	p.UpdatedAt = p.UpdatedAt.UTC()

	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(current.ID, 10))
	return s.send(ctx, http.MethodPatch, tableSystemConfig, q, p, http.StatusOK, http.StatusNoContent)
}

func (s *RESTStore) AppendRelayRecord(ctx context.Context, r models.RelayRecord) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	row := relayRow{
		RelayNumber: r.RelayNumber,
		RelayName:   r.RelayName,
		State:       r.State,
		Mode:        int(r.Mode),
		CreatedAt:   created.UTC().Format(time.RFC3339Nano),
	}
	return s.send(ctx, http.MethodPost, tableRelayStates, nil, row, http.StatusOK, http.StatusCreated)
}

func (s *RESTStore) LatestRelayRecord(ctx context.Context, relay int) (models.RelayRecord, error) {
	q := latestQuery("created_at")
	q.Set("relay_number", "eq."+strconv.Itoa(relay))

	var rows []relayRow
	if err := s.get(ctx, tableRelayStates, q, &rows); err != nil {
		return models.RelayRecord{}, err
	}
	if len(rows) == 0 {
		return models.RelayRecord{}, ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *RESTStore) AppendAlert(ctx context.Context, a models.Alert) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	row := alertRow{
		AlertType: a.Type,
		Message:   a.Message,
		Severity:  string(a.Severity),
		CreatedAt: created.UTC().Format(time.RFC3339Nano),
	}
	return s.send(ctx, http.MethodPost, tableSystemAlerts, nil, row, http.StatusOK, http.StatusCreated)
}

func (s *RESTStore) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	q := latestQuery("created_at")
	q.Set("limit", strconv.Itoa(limit))

	var rows []alertRow
	if err := s.get(ctx, tableSystemAlerts, q, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Alert{
			Type:      r.AlertType,
			Message:   r.Message,
			Severity:  models.Severity(r.Severity),
			CreatedAt: parseTime(r.CreatedAt),
		})
	}
	return out, nil
}

func (s *RESTStore) newRequest(ctx context.Context, method, table string, q url.Values, body io.Reader) (*http.Request, error) {
	u := s.baseURL + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	return req, nil
}

func (s *RESTStore) get(ctx context.Context, table string, q url.Values, dst any) error {
	req, err := s.newRequest(ctx, http.MethodGet, table, q, nil)
	if err != nil {
		return fmt.Errorf("build GET %s: %w", table, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(http.MethodGet, table, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

func (s *RESTStore) send(ctx context.Context, method, table string, q url.Values, body any, okCodes ...int) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", table, err)
	}
	req, err := s.newRequest(ctx, method, table, q, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, table, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	for _, code := range okCodes {
		if resp.StatusCode == code {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
	}
	return statusError(method, table, resp)
}

func statusError(method, table string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s %s: unexpected status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(msg)))
}
