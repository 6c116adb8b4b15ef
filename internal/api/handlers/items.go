package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/stremarr/internal/api/middleware"
	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// AvailabilityChecker runs a synchronous availability check
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, media *models.Media, trigger controllers.Trigger) (models.Verdict, error)
}

// BackgroundChecker runs availability checks detached from the request
type BackgroundChecker interface {
	CheckAsync(media *models.Media, trigger controllers.Trigger) bool
	RefreshStale(medias []*models.Media) int
}

// ItemsHandler serves the media item endpoints of the authenticated user
type ItemsHandler struct {
	db          *models.Database
	checker     AvailabilityChecker
	background  BackgroundChecker
	syncTimeout time.Duration
	logger      *logrus.Logger
}

// NewItemsHandler creates a new items handler. Synchronous checks taking
// longer than syncTimeout continue in the background; zero means unbounded.
func NewItemsHandler(db *models.Database, checker AvailabilityChecker, background BackgroundChecker, syncTimeout time.Duration, logger *logrus.Logger) *ItemsHandler {
	return &ItemsHandler{
		db:          db,
		checker:     checker,
		background:  background,
		syncTimeout: syncTimeout,
		logger:      logger,
	}
}

// RegisterRequest is the body of POST /api/items
type RegisterRequest struct {
	Kind          string   `json:"kind"`
	TMDBId        int      `json:"tmdb_id"`
	IMDBId        string   `json:"imdb_id"`
	TVDBId        int      `json:"tvdb_id"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"original_title"`
	Year          int      `json:"year"`
	Overview      string   `json:"overview"`
	PosterURL     string   `json:"poster_url"`
	BackdropURL   string   `json:"backdrop_url"`
	Genres        []string `json:"genres"`
	Runtime       int      `json:"runtime"`
}

// EpisodeRequest is the body of POST /api/items/{id}/episodes
type EpisodeRequest struct {
	SeasonNumber  int        `json:"season_number"`
	EpisodeNumber int        `json:"episode_number"`
	Title         string     `json:"title"`
	Overview      string     `json:"overview"`
	AirDate       *time.Time `json:"air_date"`
}

// Register handles POST /api/items. The first availability check runs in the
// background unless sync=true is passed.
func (h *ItemsHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	kind, ok := models.ParseMediaKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or series")
		return
	}
	imdbID := strings.TrimSpace(req.IMDBId)
	if imdbID != "" && !strings.HasPrefix(imdbID, "tt") {
		writeError(w, http.StatusBadRequest, "imdb_id must start with tt")
		return
	}
	if imdbID == "" && req.TMDBId <= 0 && req.TVDBId <= 0 {
		writeError(w, http.StatusBadRequest, "one of imdb_id, tmdb_id or tvdb_id is required")
		return
	}

	if imdbID != "" {
		existing, err := h.db.GetMediaByIMDBID(userID, imdbID, kind)
		if err == nil {
			writeJSON(w, http.StatusOK, newItemResponse(existing, nil))
			return
		}
		if !models.IsNotFound(err) {
			h.logger.WithError(err).Error("Failed to look up media")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	media := &models.Media{
		UserID:        userID,
		Kind:          kind,
		TMDBId:        req.TMDBId,
		IMDBId:        imdbID,
		TVDBId:        req.TVDBId,
		Title:         req.Title,
		OriginalTitle: req.OriginalTitle,
		Year:          req.Year,
		Overview:      req.Overview,
		PosterURL:     req.PosterURL,
		BackdropURL:   req.BackdropURL,
		Genres:        req.Genres,
		Runtime:       req.Runtime,
		Monitored:     true,
	}
	if err := h.db.CreateMedia(media); err != nil {
		h.logger.WithError(err).Error("Failed to create media")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"media_id": media.ID,
		"user_id":  userID,
		"kind":     kind,
		"title":    media.Title,
	}).Info("Media registered")

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		h.checkAndRespond(w, r, media, controllers.TriggerRegistered, http.StatusCreated)
		return
	}

	h.background.CheckAsync(media, controllers.TriggerRegistered)
	writeJSON(w, http.StatusAccepted, newItemResponse(media, nil))
}

// Recent handles GET /api/items/recent. Stale items are rechecked after the response is written.
func (h *ItemsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxRecentLimit)
	}

	medias, err := h.db.GetMediaByUser(userID, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent medias")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items := make([]ItemResponse, 0, len(medias))
	for _, media := range medias {
		items = append(items, newItemResponse(media, nil))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})

	h.background.RefreshStale(medias)
}

// Get handles GET /api/items/{id}
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	media, ok := h.ownedMedia(w, r)
	if !ok {
		return
	}

	var episodes []*models.Episode
	if media.Kind == models.MediaKindSeries {
		var err error
		if episodes, err = h.db.GetEpisodesByMediaID(media.ID); err != nil {
			h.logger.WithError(err).Error("Failed to get episodes")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, newItemResponse(media, episodes))
}

// Recheck handles POST /api/items/{id}/recheck
func (h *ItemsHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	media, ok := h.ownedMedia(w, r)
	if !ok {
		return
	}
	h.checkAndRespond(w, r, media, controllers.TriggerManual, http.StatusOK)
}

// Delete handles DELETE /api/items/{id}
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	media, ok := h.ownedMedia(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteMedia(media.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete media")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.WithField("media_id", media.ID).Info("Media deleted")
	w.WriteHeader(http.StatusNoContent)
}

// MarkWatched handles POST /api/items/{id}/watched
func (h *ItemsHandler) MarkWatched(w http.ResponseWriter, r *http.Request) {
	media, ok := h.ownedMedia(w, r)
	if !ok {
		return
	}

	updated, err := h.db.MarkMediaWatched(media.ID, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark media watched")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(updated, nil))
}

// AddEpisode handles POST /api/items/{id}/episodes
func (h *ItemsHandler) AddEpisode(w http.ResponseWriter, r *http.Request) {
	media, ok := h.ownedMedia(w, r)
	if !ok {
		return
	}
	if media.Kind != models.MediaKindSeries {
		writeError(w, http.StatusBadRequest, "episodes can only be added to a series")
		return
	}

	var req EpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.SeasonNumber < 0 || req.EpisodeNumber < 1 {
		writeError(w, http.StatusBadRequest, "invalid season or episode number")
		return
	}

	episode := &models.Episode{
		MediaID:       media.ID,
		SeasonNumber:  req.SeasonNumber,
		EpisodeNumber: req.EpisodeNumber,
		Title:         req.Title,
		Overview:      req.Overview,
		AirDate:       req.AirDate,
	}
	if err := h.db.CreateEpisode(episode); err != nil {
		h.logger.WithError(err).Error("Failed to create episode")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, newEpisodeResponse(episode))
}

// MarkEpisodeWatched handles POST /api/episodes/{id}/watched
func (h *ItemsHandler) MarkEpisodeWatched(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid episode id")
		return
	}

	episode, err := h.db.GetEpisodeByID(id)
	if err == nil {
		var media *models.Media
		media, err = h.db.GetMediaByID(episode.MediaID)
		if err == nil && media.UserID != userID {
			err = models.ErrNotFound
		}
	}
	if err != nil {
		h.respondLookupError(w, err, "episode")
		return
	}

	updated, err := h.db.MarkEpisodeWatched(id, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark episode watched")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, newEpisodeResponse(updated))
}

// checkAndRespond runs a synchronous check and writes the updated item. When
// the check outlives the sync timeout it is handed to the background and the
// stored item is returned with 202.
func (h *ItemsHandler) checkAndRespond(w http.ResponseWriter, r *http.Request, media *models.Media, trigger controllers.Trigger, status int) {
	ctx := r.Context()
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	if _, err := h.checker.CheckAvailability(ctx, media, trigger); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			h.logger.WithFields(logrus.Fields{
				"media_id": media.ID,
				"timeout":  h.syncTimeout,
			}).Warn("Synchronous availability check timed out, continuing in background")
			h.background.CheckAsync(media, trigger)
			status = http.StatusAccepted
		} else {
			h.logger.WithError(err).WithField("media_id", media.ID).Error("Availability check failed")
			writeError(w, http.StatusInternalServerError, "availability check failed")
			return
		}
	}

	updated, err := h.db.GetMediaByID(media.ID)
	if err != nil {
		h.respondLookupError(w, err, "media")
		return
	}
	writeJSON(w, status, newItemResponse(updated, nil))
}

// ownedMedia loads the {id} media item and answers 404 unless the
// authenticated user owns it
func (h *ItemsHandler) ownedMedia(w http.ResponseWriter, r *http.Request) (*models.Media, bool) {
	userID, _ := middleware.UserID(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return nil, false
	}

	media, err := h.db.GetMediaByID(id)
	if err == nil && media.UserID != userID {
		err = models.ErrNotFound
	}
	if err != nil {
		h.respondLookupError(w, err, "media")
		return nil, false
	}
	return media, true
}

func (h *ItemsHandler) respondLookupError(w http.ResponseWriter, err error, what string) {
	if models.IsNotFound(err) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.logger.WithError(err).Errorf("Failed to load %s", what)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
