package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/amaumene/stremarr/internal/api/middleware"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/session"
	"github.com/sirupsen/logrus"
)

// SessionHandler exchanges user API keys for session tokens
type SessionHandler struct {
	db       *models.Database
	sessions *session.Store
	ttl      time.Duration
	logger   *logrus.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(db *models.Database, sessions *session.Store, ttl time.Duration, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		db:       db,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
	}
}

type createSessionRequest struct {
	UserID uint64 `json:"user_id"`
	APIKey string `json:"api_key"`
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := h.db.GetUserByID(req.UserID)
	if err != nil {
		if !models.IsNotFound(err) {
			h.logger.WithError(err).Error("Failed to load user")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if user.APIKey == "" || subtle.ConstantTimeCompare([]byte(user.APIKey), []byte(req.APIKey)) != 1 {
		h.logger.WithField("user_id", req.UserID).Warn("Rejected session request")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := h.sessions.Create(user.ID)
	h.logger.WithField("user_id", user.ID).Info("Session created")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      token,
		"user_id":    user.ID,
		"expires_in": int64(h.ttl.Seconds()),
	})
}

// Delete handles DELETE /api/sessions
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(r.Header.Get(middleware.SessionHeader))
	w.WriteHeader(http.StatusNoContent)
}
