package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"climate_bridge/internal/models"
)

// ErrNotFound is returned when a collection holds no matching row.
var ErrNotFound = errors.New("not found")

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StateStore is the persistent home of readings, configuration, relay history
// and alerts. Implementations return ErrNotFound for empty collections.
type StateStore interface {
	LatestSensorReading(ctx context.Context) (models.SensorReading, error)
	AppendSensorReading(ctx context.Context, r models.SensorReading) error
	LatestSystemConfig(ctx context.Context) (models.SystemConfig, error)
	// PatchSystemConfig updates only the fields present in p on the latest row.
	PatchSystemConfig(ctx context.Context, p models.ConfigPatch) error
	AppendRelayRecord(ctx context.Context, r models.RelayRecord) error
	LatestRelayRecord(ctx context.Context, relay int) (models.RelayRecord, error)
	AppendAlert(ctx context.Context, a models.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// JournalQuery selects command log entries. Zero fields do not filter;
// From and To are inclusive.
type JournalQuery struct {
	From       time.Time
	To         time.Time
	Intent     string
	Source     string
	OperatorID int
}

// CommandLog is the append-only journal of interpreted commands.
type CommandLog interface {
	Append(ctx context.Context, e models.CommandEvent) error
	List(ctx context.Context, q JournalQuery) ([]models.CommandEvent, error)
}

type Repository struct {
	State   StateStore
	Journal CommandLog
	Auth    Authorization
}

// NewRepository wires the local database and the selected state store.
func NewRepository(db *sql.DB, state StateStore) *Repository {
	return &Repository{
		State:   state,
		Journal: NewJournalSQLite(db),
		Auth:    NewUserRepository(db),
	}
}
