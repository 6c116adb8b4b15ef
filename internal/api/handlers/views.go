package handlers

import (
	"time"

	"github.com/amaumene/stremarr/internal/models"
)

// StreamResponse is one evidence entry
type StreamResponse struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Quality string `json:"quality,omitempty"`
	Size    string `json:"size,omitempty"`
}

// AddonResponse groups the evidence of one addon
type AddonResponse struct {
	AddonID     string           `json:"addon_id"`
	AddonName   string           `json:"addon_name"`
	StreamCount int              `json:"stream_count"`
	Streams     []StreamResponse `json:"streams"`
}

// EpisodeResponse is the JSON view of an episode
type EpisodeResponse struct {
	ID            uint64     `json:"id"`
	MediaID       uint64     `json:"media_id"`
	SeasonNumber  int        `json:"season_number"`
	EpisodeNumber int        `json:"episode_number"`
	Title         string     `json:"title,omitempty"`
	AirDate       *time.Time `json:"air_date,omitempty"`
	Watched       bool       `json:"watched"`
	WatchedAt     *time.Time `json:"watched_at,omitempty"`
}

// ItemResponse is the JSON view of a media item
type ItemResponse struct {
	ID               uint64            `json:"id"`
	Kind             models.MediaKind  `json:"kind"`
	TMDBId           int               `json:"tmdb_id,omitempty"`
	IMDBId           string            `json:"imdb_id,omitempty"`
	TVDBId           int               `json:"tvdb_id,omitempty"`
	Title            string            `json:"title"`
	Year             int               `json:"year,omitempty"`
	PosterURL        string            `json:"poster_url,omitempty"`
	Watched          bool              `json:"watched"`
	StreamsAvailable bool              `json:"streams_available"`
	StreamCount      int               `json:"stream_count"`
	LastStreamCheck  *time.Time        `json:"last_stream_check"`
	LastCheckReason  string            `json:"last_check_reason,omitempty"`
	Addons           []AddonResponse   `json:"addons"`
	Episodes         []EpisodeResponse `json:"episodes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

func newItemResponse(media *models.Media, episodes []*models.Episode) ItemResponse {
	response := ItemResponse{
		ID:               media.ID,
		Kind:             media.Kind,
		TMDBId:           media.TMDBId,
		IMDBId:           media.IMDBId,
		TVDBId:           media.TVDBId,
		Title:            media.Title,
		Year:             media.Year,
		PosterURL:        media.PosterURL,
		Watched:          media.Watched,
		StreamsAvailable: media.StreamsAvailable,
		StreamCount:      media.StreamCount,
		LastStreamCheck:  media.LastStreamCheck,
		LastCheckReason:  media.LastCheckReason,
		Addons:           make([]AddonResponse, 0, len(media.StreamsDetail)),
		CreatedAt:        media.CreatedAt,
	}

	for _, addon := range media.StreamsDetail {
		streams := make([]StreamResponse, 0, len(addon.Streams))
		for _, s := range addon.Streams {
			streams = append(streams, StreamResponse(s))
		}
		response.Addons = append(response.Addons, AddonResponse{
			AddonID:     addon.AddonID,
			AddonName:   addon.AddonName,
			StreamCount: addon.StreamCount,
			Streams:     streams,
		})
	}

	for _, episode := range episodes {
		response.Episodes = append(response.Episodes, newEpisodeResponse(episode))
	}
	return response
}

func newEpisodeResponse(episode *models.Episode) EpisodeResponse {
	return EpisodeResponse{
		ID:            episode.ID,
		MediaID:       episode.MediaID,
		SeasonNumber:  episode.SeasonNumber,
		EpisodeNumber: episode.EpisodeNumber,
		Title:         episode.Title,
		AirDate:       episode.AirDate,
		Watched:       episode.Watched,
		WatchedAt:     episode.WatchedAt,
	}
}
