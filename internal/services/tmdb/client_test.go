package tmdb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.TMDBAPIKey = "key"
	cfg.TMDBBaseURL = server.URL

	client, err := NewClient(&cfg, logger, WithMaxRetries(2))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	_, err := NewClient(&cfg, logrus.New())
	assert.Error(t, err)
}

func TestResolveExternalIDMovie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/603/external_ids", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"id":603,"imdb_id":"tt0133093"}`))
	})

	id, err := client.ResolveExternalID(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", id)
}

func TestResolveExternalIDSeriesUsesTVPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/1399/external_ids", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":1399,"imdb_id":"tt0944947","tvdb_id":121361}`))
	})

	id, err := client.ResolveExternalID(context.Background(), 1399, models.MediaKindSeries)
	require.NoError(t, err)
	assert.Equal(t, "tt0944947", id)
}

func TestResolveExternalIDNotFoundIsUnresolved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	id, err := client.ResolveExternalID(context.Background(), 1, models.MediaKindMovie)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveExternalIDRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"imdb_id":"tt0133093"}`))
	})

	id, err := client.ResolveExternalID(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestResolveExternalIDClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ResolveExternalID(context.Background(), 603, models.MediaKindMovie)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFindByTVDB(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find/121361", r.URL.Path)
		assert.Equal(t, "tvdb_id", r.URL.Query().Get("external_source"))
		_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[{"id":1399}]}`))
	})

	tmdbID, err := client.FindByTVDB(context.Background(), 121361)
	require.NoError(t, err)
	assert.Equal(t, 1399, tmdbID)
}

func TestFindByTVDBNoMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[]}`))
	})

	tmdbID, err := client.FindByTVDB(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, tmdbID)
}
