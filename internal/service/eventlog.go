package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/repository"
)

// EventLogService reads the command journal written by the assistant.
type EventLogService struct {
	journal repository.CommandLog
}

func NewEventLogService(journal repository.CommandLog) *EventLogService {
	return &EventLogService{journal: journal}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errUnknownSource    = errors.New("unknown source; use TEXT, VOICE, CALLBACK or HTTP")
)

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// journalQuery folds f into the repository query: times in UTC, intents in
// snake_case and sources upper case.
func journalQuery(f LogFilter) (repository.JournalQuery, error) {
	q := repository.JournalQuery{
		From:       utcOrZero(f.From),
		To:         utcOrZero(f.To),
		Intent:     strings.ToLower(strings.TrimSpace(f.Intent)),
		Source:     strings.ToUpper(strings.TrimSpace(f.Source)),
		OperatorID: f.OperatorID,
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return repository.JournalQuery{}, errInvalidTimeRange
	}
	if q.Source != "" && !models.ValidSource(q.Source) {
		return repository.JournalQuery{}, errUnknownSource
	}
	if q.OperatorID < 0 {
		q.OperatorID = 0
	}
	return q, nil
}

// List returns journal entries matching f, oldest first.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.CommandEvent, error) {
	q, err := journalQuery(f)
	if err != nil {
		return nil, err
	}
	return s.journal.List(ctx, q)
}
