package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"climate_bridge/internal/service"
)

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantUser string
	}{
		{"created and normalized", `{"username":"  Operador ","password":"cambiame123"}`, nil, http.StatusCreated, "operador"},
		{"username taken", `{"username":"operador","password":"cambiame123"}`, service.ErrUserExists, http.StatusConflict, "operador"},
		{"store failure", `{"username":"operador","password":"cambiame123"}`, errors.New("disk I/O error"), http.StatusInternalServerError, "operador"},
		{"short password", `{"username":"operador","password":"1234"}`, nil, http.StatusBadRequest, ""},
		{"short username", `{"username":"op","password":"cambiame123"}`, nil, http.StatusBadRequest, ""},
		{"wrong types", `{"username":1}`, nil, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &mockAuth{signUpID: 42, signUpErr: tc.err}
			r := newTestRouter(&service.Service{Authorization: auth})

			w := postJSON(r, "/auth/sign-up", tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if auth.lastSignUpUsername != tc.wantUser {
				t.Fatalf("service got username %q, want %q", auth.lastSignUpUsername, tc.wantUser)
			}
			if tc.wantCode != http.StatusCreated {
				return
			}
			var resp struct {
				ID       int    `json:"id"`
				Username string `json:"username"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.ID != 42 || resp.Username != "operador" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"token issued", nil, http.StatusOK, ""},
		{"unknown operator", service.ErrUserNotFound, http.StatusUnauthorized, errBadCredentials},
		{"wrong password", service.ErrInvalidPassword, http.StatusUnauthorized, errBadCredentials},
		{"store failure", errors.New("select user: disk I/O error"), http.StatusInternalServerError, errSignIn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &mockAuth{genTokenToken: "tok123", genTokenErr: tc.err}
			r := newTestRouter(&service.Service{Authorization: auth})

			w := postJSON(r, "/auth/sign-in", `{"username":"operador","password":"cambiame123"}`)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			var resp map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if tc.wantErr != "" {
				if resp["error"] != tc.wantErr {
					t.Fatalf("error=%q want %q", resp["error"], tc.wantErr)
				}
				return
			}
			if resp["token"] != "tok123" || resp["token_type"] != tokenType {
				t.Fatalf("unexpected response: %v", resp)
			}
		})
	}
}

func TestSignIn_ShortLegacyPasswordStillChecked(t *testing.T) {
	auth := &mockAuth{genTokenToken: "tok"}
	r := newTestRouter(&service.Service{Authorization: auth})

	if w := postJSON(r, "/auth/sign-in", `{"username":"op","password":"1234"}`); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if auth.lastGenUsername != "op" || auth.lastGenPassword != "1234" {
		t.Fatalf("service got %q/%q", auth.lastGenUsername, auth.lastGenPassword)
	}
	if w := postJSON(r, "/auth/sign-in", `{"username":"op"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status=%d", w.Code)
	}
}

func TestSignInTokenDrivesCommandJournal(t *testing.T) {
	auth := &mockAuth{genTokenToken: "tok-7", parseID: 7}
	asst := &mockAssistant{reply: service.Reply{EventID: "ev7", Intent: "status"}}
	r := newTestRouter(&service.Service{Authorization: auth, Assistant: asst})

	w := postJSON(r, "/auth/sign-in", `{"username":"operador","password":"cambiame123"}`)
	var signed map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &signed)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewBufferString(`{"text":"estado"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", signed["token_type"]+" "+signed["token"])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("command status=%d body=%s", w.Code, w.Body.String())
	}
	if auth.lastParseToken != "tok-7" {
		t.Fatalf("middleware parsed %q", auth.lastParseToken)
	}
	if asst.lastReq.OperatorID != 7 {
		t.Fatalf("command not attributed to operator 7: %+v", asst.lastReq)
	}
}
