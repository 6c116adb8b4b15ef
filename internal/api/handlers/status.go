package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalMedias   int            `json:"total_medias"`
	Available     int            `json:"available"`
	Unavailable   int            `json:"unavailable"`
	NeverChecked  int            `json:"never_checked"`
	Watched       int            `json:"watched"`
	TotalStreams  int            `json:"total_streams"`
	MediasByKind  map[string]int `json:"medias_by_kind"`
	Reasons       map[string]int `json:"unavailable_reasons"`
	LastCheckedAt *time.Time     `json:"last_checked_at,omitempty"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	medias, err := h.db.GetAllMedias()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get medias")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, buildStatus(medias))
}

func buildStatus(medias []*models.Media) StatusResponse {
	response := StatusResponse{
		TotalMedias:  len(medias),
		MediasByKind: make(map[string]int),
		Reasons:      make(map[string]int),
	}

	for _, media := range medias {
		switch {
		case media.LastStreamCheck == nil:
			response.NeverChecked++
		case media.StreamsAvailable:
			response.Available++
		default:
			response.Unavailable++
			// "addon list failed: <cause>" is grouped under its prefix
			reason, _, _ := strings.Cut(media.LastCheckReason, ":")
			response.Reasons[reason]++
		}

		if media.Watched {
			response.Watched++
		}
		response.TotalStreams += media.StreamCount
		response.MediasByKind[string(media.Kind)]++

		if media.LastStreamCheck != nil &&
			(response.LastCheckedAt == nil || media.LastStreamCheck.After(*response.LastCheckedAt)) {
			checked := *media.LastStreamCheck
			response.LastCheckedAt = &checked
		}
	}

	return response
}
