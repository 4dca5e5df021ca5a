package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"climate_bridge/internal/service"
)

func TestOperatorMiddleware_RejectsBeforeTouchingDevices(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		parseErr error
		wantErr  string
	}{
		{"missing header", "", nil, "missing Authorization header"},
		{"basic scheme", "Basic b3A6cHc=", nil, "invalid Authorization header format"},
		{"lowercase scheme", "bearer abc", nil, "invalid Authorization header format"},
		{"bearer without token", "Bearer ", nil, "invalid Authorization header format"},
		{"expired token", "Bearer expired", service.ErrInvalidToken, "invalid or expired token"},
		{"forged token", "Bearer forged", errors.New("signature is invalid"), "invalid or expired token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := &mockDevices{}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{parseErr: tc.parseErr}, Devices: dev})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/1/state", strings.NewReader(`{"on":true}`))
			req.Header.Set("Content-Type", "application/json")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status=%d want 401 body=%s", w.Code, w.Body.String())
			}
			var out struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Error != tc.wantErr {
				t.Fatalf("error=%q want %q", out.Error, tc.wantErr)
			}
			if dev.stateCalls != 0 {
				t.Fatalf("relay switched without a valid token")
			}
		})
	}
}

func TestOperatorMiddleware_AdmitsAndRecordsOperator(t *testing.T) {
	auth := &mockAuth{parseID: 123}
	dev := &mockDevices{}
	r := newTestRouter(&service.Service{Authorization: auth, Devices: dev})

	w := doAuthed(r, http.MethodPost, "/api/v1/devices/2/state", `{"on":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("state status=%d body=%s", w.Code, w.Body.String())
	}
	if auth.lastParseToken != "valid" {
		t.Fatalf("ParseToken got %q, want %q", auth.lastParseToken, "valid")
	}
	if dev.stateCalls != 1 || dev.lastRelay != 2 || !dev.lastOn {
		t.Fatalf("unexpected device call: %+v", dev)
	}

	w = doAuthed(r, http.MethodGet, "/api/v1/me", "")
	var me struct {
		OperatorID int `json:"operator_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Code != http.StatusOK || me.OperatorID != 123 {
		t.Fatalf("me status=%d body=%s", w.Code, w.Body.String())
	}
}
