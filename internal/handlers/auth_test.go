package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

// doRequest sends a request with an optional JSON body and bearer token.
func doRequest(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return m
}

func TestAuthHandlers_SignUpPassesRole(t *testing.T) {
	auth := &mockAuth{signUpID: 42}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := doRequest(r, http.MethodPost, "/auth/sign-up", `{"username":"u","password":"p","role":"ADMIN"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	if int(decodeBody(t, w)["id"].(float64)) != 42 {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if auth.lastSignUpRole != "ADMIN" || auth.lastSignUpUsername != "u" {
		t.Fatalf("unexpected sign-up args: %+v", auth)
	}

	auth.signUpErr = service.ErrInvalidRole
	w = doRequest(r, http.MethodPost, "/auth/sign-up", `{"username":"u","password":"p","role":"ROOT"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid role, got %d", w.Code)
	}
}

func TestAuthHandlers_SignInOpensDashboard(t *testing.T) {
	auth := &mockAuth{genTokenToken: "tok123", parseID: 5}
	dash := &mockDashboard{}
	r := newTestRouter(&service.Service{Authorization: auth, Dashboard: dash})

	w := doRequest(r, http.MethodPost, "/auth/sign-in", `{"username":"u","password":"p"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	m := decodeBody(t, w)
	if m["token"] != "tok123" || m["role"] != models.RoleUser {
		t.Fatalf("unexpected body %v", m)
	}
	if len(dash.opened) != 1 || dash.opened[0].UserID != 5 {
		t.Fatalf("dashboard not opened for the identity: %+v", dash.opened)
	}
	if dash.openCreds[0] != "tok123" {
		t.Fatalf("session must be opened with the issued token, got %q", dash.openCreds[0])
	}

	// bad body → 400, nothing opened
	w = doRequest(r, http.MethodPost, "/auth/sign-in", `{"username":1}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}

	// wrong credentials → 401
	auth.genTokenErr = service.ErrInvalidPassword
	w = doRequest(r, http.MethodPost, "/auth/sign-in", `{"username":"u","password":"x"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(dash.opened) != 1 {
		t.Fatalf("failed sign-in must not open a session")
	}
}

func TestAuthHandlers_SignOutAlwaysSucceeds(t *testing.T) {
	auth := &mockAuth{parseID: 9}
	dash := &mockDashboard{flush: drain.FlushResult{Attempted: 3, Failed: 1, Err: errors.New("meter 2: timeout")}}
	r := newTestRouter(&service.Service{Authorization: auth, Dashboard: dash})

	w := doRequest(r, http.MethodPost, "/api/v1/auth/sign-out", "", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("sign-out status=%d, body=%s", w.Code, w.Body.String())
	}
	m := decodeBody(t, w)
	if m["status"] != statusSignedOut || m["flushed"].(float64) != 2 || m["failed"].(float64) != 1 {
		t.Fatalf("unexpected body %v", m)
	}
	if len(dash.closed) != 1 || dash.closed[0] != 9 {
		t.Fatalf("dashboard not closed for user 9: %v", dash.closed)
	}
}
