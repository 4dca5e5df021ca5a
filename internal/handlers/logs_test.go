package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/service"
)

func TestLogsHandler_Filters(t *testing.T) {
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	endOfDay := time.Date(2025, 8, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)

	cases := []struct {
		name  string
		query string
		want  service.LogFilter
	}{
		{"no filters", "", service.LogFilter{}},
		{"date only range covers last day", "?from=2025-08-01&to=2025-08-31", service.LogFilter{From: from, To: endOfDay}},
		{"intent lowercased", "?intent=%20Turn_On", service.LogFilter{Intent: "turn_on"}},
		{"mode intent", "?intent=mode", service.LogFilter{Intent: "mode"}},
		{"source uppercased", "?source=voice", service.LogFilter{Source: models.SourceVoice}},
		{"own commands", "?operator=me&source=HTTP", service.LogFilter{OperatorID: 99, Source: models.SourceHTTP}},
		{"other operator", "?operator=4", service.LogFilter{OperatorID: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := &mockEventLog{resp: []models.CommandEvent{{EventID: "e1", Intent: "turn_on"}}}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 99}, EventLog: logs})

			w := doAuthed(r, http.MethodGet, "/api/v1/logs/"+tc.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			got := logs.last
			if !got.From.Equal(tc.want.From) || !got.To.Equal(tc.want.To) {
				t.Fatalf("range=[%v, %v] want [%v, %v]", got.From, got.To, tc.want.From, tc.want.To)
			}
			if got.Intent != tc.want.Intent || got.Source != tc.want.Source || got.OperatorID != tc.want.OperatorID {
				t.Fatalf("filter=%+v want %+v", got, tc.want)
			}
			var out struct {
				Count  int                   `json:"count"`
				Events []models.CommandEvent `json:"events"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Count != 1 || out.Events[0].EventID != "e1" {
				t.Fatalf("unexpected response: %+v", out)
			}
		})
	}
}

func TestLogsHandler_BadQueries(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"from not a time", "?from=notatime", errFromInvalid},
		{"to not a time", "?to=31/08/2025", errToInvalid},
		{"inverted range", "?from=2025-09-01&to=2025-08-01", errRangeInverted},
		{"unknown source", "?source=sms", errSourceInvalid},
		{"operator not a number", "?operator=ana", errOperatorInvalid},
		{"operator zero", "?operator=0", errOperatorInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := &mockEventLog{}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})

			w := doAuthed(r, http.MethodGet, "/api/v1/logs/"+tc.query, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400 body=%s", w.Code, w.Body.String())
			}
			var out map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out["error"] != tc.wantErr {
				t.Fatalf("error=%q want %q", out["error"], tc.wantErr)
			}
			if logs.calls != 0 {
				t.Fatalf("journal queried for a bad request")
			}
		})
	}
}

func TestLogsHandler_JournalError(t *testing.T) {
	logs := &mockEventLog{err: errors.New("database is locked")}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})

	w := doAuthed(r, http.MethodGet, "/api/v1/logs/", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", w.Code)
	}
}
