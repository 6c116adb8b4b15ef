package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amaumene/stremarr/internal/api/middleware"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{Name: "alice", APIKey: "secret"}
	require.NoError(t, db.CreateUser(user))

	store := session.NewStore(time.Hour)
	handler := NewSessionHandler(db, store, time.Hour, quietLogger())

	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"user_id":`+jsonUint(user.ID)+`,"api_key":"secret"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Token     string `json:"token"`
		UserID    uint64 `json:"user_id"`
		ExpiresIn int64  `json:"expires_in"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, user.ID, body.UserID)
	assert.Equal(t, int64(3600), body.ExpiresIn)

	userID, ok := store.Lookup(body.Token)
	require.True(t, ok)
	assert.Equal(t, user.ID, userID)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	req.Header.Set(middleware.SessionHeader, body.Token)
	rec = httptest.NewRecorder()
	handler.Delete(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = store.Lookup(body.Token)
	assert.False(t, ok)
}

func TestSessionRejectsBadCredentials(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{Name: "alice", APIKey: "secret"}
	require.NoError(t, db.CreateUser(user))
	noKey := &models.User{Name: "bob"}
	require.NoError(t, db.CreateUser(noKey))

	handler := NewSessionHandler(db, session.NewStore(time.Hour), time.Hour, quietLogger())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong key", `{"user_id":` + jsonUint(user.ID) + `,"api_key":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"user_id":999,"api_key":"secret"}`, http.StatusUnauthorized},
		{"user without key", `{"user_id":` + jsonUint(noKey.ID) + `,"api_key":""}`, http.StatusUnauthorized},
		{"malformed", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
