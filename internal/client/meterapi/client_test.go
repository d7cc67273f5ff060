package meterapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_cash_power/internal/models"
)

type recorded struct {
	method string
	path   string
	auth   string
	ctype  string
	body   string
}

func newServer(t *testing.T, status int, respond string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   string(b),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respond)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetchMeters(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, `[
		{"id": 3, "meterNumber": "0101", "currentUnits": 1.5, "usedUnits": 8.5, "active": true, "createdAt": "2025-01-02T10:00:00"},
		{"id": 4, "meterNumber": "0202", "currentUnits": 0, "usedUnits": 2, "active": false}
	]`)
	c := New(srv.URL+"/api/v1/", WithAuthorization("Bearer abc"))

	meters, err := c.FetchMeters(context.Background())
	require.NoError(t, err)
	require.Len(t, meters, 2)
	assert.Equal(t, models.Meter{ID: 3, MeterNumber: "0101", CurrentUnits: 1.5, UsedUnits: 8.5, Active: true}, meters[0])
	assert.False(t, meters[1].Active)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/v1/meters", got.path)
	assert.Equal(t, "Bearer abc", got.auth)
}

func TestFetchMeters_EmptyBodyIsEmptyList(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `null`)
	meters, err := New(srv.URL).FetchMeters(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, meters)
	assert.Empty(t, meters)
}

func TestWriteMeterUnits(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, `{"id": 9}`)
	c := New(srv.URL)

	err := c.WriteMeterUnits(context.Background(), 9, models.Units{CurrentUnits: 0, UsedUnits: 10.003})
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/meters/9/units", got.path)
	assert.Equal(t, "application/json", got.ctype)
	assert.Empty(t, got.auth)

	var body map[string]float64
	require.NoError(t, json.Unmarshal([]byte(got.body), &body))
	assert.Equal(t, map[string]float64{"currentUnits": 0, "usedUnits": 10.003}, body)
}

func TestAddAndDeleteMeter(t *testing.T) {
	srv, calls := newServer(t, http.StatusCreated, `{"id": 12, "meterNumber": "77", "active": true}`)
	c := New(srv.URL)

	m, err := c.AddMeter(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.ID)
	assert.JSONEq(t, `{"meterNumber":"77"}`, (*calls)[0].body)

	require.NoError(t, c.DeleteMeter(context.Background(), 12))
	assert.Equal(t, http.MethodDelete, (*calls)[1].method)
	assert.Equal(t, "/meters/12", (*calls)[1].path)
}

func TestStatusError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest, `{"error":"used units cannot decrease"}`)

	err := New(srv.URL).WriteMeterUnits(context.Background(), 1, models.Units{})
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "/meters/1/units", se.Path)
	assert.Contains(t, se.Error(), "used units cannot decrease")
}

func TestContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, WithTimeout(5*time.Second)).FetchMeters(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextAuthorizationOverridesDefault(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, WithAuthorization("Bearer shared"))

	_, err := c.FetchMeters(ContextWithAuthorization(context.Background(), "Bearer tenant-a"))
	require.NoError(t, err)
	_, err = c.FetchMeters(context.Background())
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	assert.Equal(t, "Bearer tenant-a", (*calls)[0].auth)
	assert.Equal(t, "Bearer shared", (*calls)[1].auth)
}
