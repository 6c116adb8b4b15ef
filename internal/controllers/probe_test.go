package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/stremio"
	"github.com/amaumene/stremarr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSkipsAddonOfOtherKind(t *testing.T) {
	fake := newFakeStremio(t, testAddon{
		id:      "seriesonly",
		types:   []string{"series"},
		streams: []stremio.Stream{stream("The.Matrix.1999.1080p.BluRay")},
	})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{
		provider: &fakeProvider{imdbByTMDB: map[int]string{603: "tt0133093"}},
	})

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, TMDBId: 603})
	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	assert.False(t, verdict.Available)
	assert.Zero(t, verdict.StreamCount)
	assert.Empty(t, verdict.Addons)
	assert.Equal(t, ReasonNoStreamsFound, verdict.Reason)
	assert.Empty(t, fake.requests(), "no stream query should reach an addon of another kind")
}

func TestProbeStreamResourceTypesOverrideManifestTypes(t *testing.T) {
	fake := newFakeStremio(t, testAddon{
		id:        "catalogmovies",
		types:     []string{"movie", "series"},
		resources: `["catalog",{"name":"stream","types":["series"]}]`,
		streams:   []stremio.Stream{stream("The.Matrix.1999.1080p")},
	})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{})

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt0133093"})
	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	assert.False(t, verdict.Available)
	assert.Empty(t, fake.requests())
}

func TestProbeMinimumResolutionFiltersEverything(t *testing.T) {
	fake := newFakeStremio(t, testAddon{
		id:    "torrentio",
		types: []string{"movie"},
		streams: []stremio.Stream{
			stream("The.Matrix.1999.1080p.BluRay.x264"),
			stream("The Matrix 1999 1080p WEB-DL"),
		},
	})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{
		provider: &fakeProvider{imdbByTMDB: map[int]string{603: "tt0133093"}},
	})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, TMDBId: 603})

	verdict := probe.Probe(context.Background(), media, "auth", nil,
		&models.FilterPreferences{MinResolution: models.Resolution4K})
	assert.False(t, verdict.Available)
	assert.Zero(t, verdict.StreamCount)
	assert.Equal(t, ReasonNoStreamsFound, verdict.Reason)

	verdict = probe.Probe(context.Background(), media, "auth", nil, nil)
	assert.True(t, verdict.Available)
	assert.Equal(t, 2, verdict.StreamCount)
	require.Len(t, verdict.Addons, 1)
	assert.Equal(t, "torrentio", verdict.Addons[0].AddonID)
	assert.Equal(t, "1080p", verdict.Addons[0].Streams[0].Quality)
}

func TestProbeSeriesUsesFirstEpisodeSentinel(t *testing.T) {
	fake := newFakeStremio(t, testAddon{
		id:      "torrentio",
		types:   []string{"movie", "series"},
		streams: []stremio.Stream{stream("Game.of.Thrones.S01E01.720p")},
	})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{})

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindSeries, IMDBId: "tt0944947"})
	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	assert.True(t, verdict.Available)
	assert.Equal(t, []string{"/torrentio/stream/series/tt0944947:1:1.json"}, fake.requests())
}

func TestProbeIsolatesAddonFailures(t *testing.T) {
	fake := newFakeStremio(t,
		testAddon{id: "a", types: []string{"movie"}, streams: []stremio.Stream{stream("Movie.2020.1080p")}},
		testAddon{id: "b", types: []string{"movie"}, delay: 5 * time.Second, streams: []stremio.Stream{stream("Movie.2020.720p")}},
		testAddon{id: "c", types: []string{"movie"}, status: http.StatusInternalServerError},
		testAddon{id: "d", types: []string{"movie"}, streams: []stremio.Stream{stream("Movie.2020.4K"), stream("Movie.2020.2160p.HDR")}},
	)
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{timeout: 200 * time.Millisecond, concurrency: 1})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1234567"})

	start := time.Now()
	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)
	elapsed := time.Since(start)

	assert.True(t, verdict.Available)
	assert.Equal(t, 3, verdict.StreamCount)
	require.Len(t, verdict.Addons, 2)
	assert.Equal(t, "a", verdict.Addons[0].AddonID)
	assert.Equal(t, "d", verdict.Addons[1].AddonID)
	assert.Less(t, elapsed, 2*time.Second, "a hanging addon costs at most its own timeout")
}

func TestProbeConcurrentQueriesKeepAddonOrder(t *testing.T) {
	fake := newFakeStremio(t,
		testAddon{id: "slow", types: []string{"movie"}, delay: 150 * time.Millisecond, streams: []stremio.Stream{stream("Movie.720p")}},
		testAddon{id: "fast", types: []string{"movie"}, streams: []stremio.Stream{stream("Movie.1080p")}},
	)
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{concurrency: 4})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1234567"})

	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	require.Len(t, verdict.Addons, 2)
	assert.Equal(t, "slow", verdict.Addons[0].AddonID)
	assert.Equal(t, "fast", verdict.Addons[1].AddonID)
}

func TestProbeShortCircuitReasons(t *testing.T) {
	tests := []struct {
		name      string
		addons    []testAddon
		listError string
		media     models.Media
		authKey   string
		selected  []string
		want      string
	}{
		{
			name:    "no external id",
			addons:  []testAddon{{id: "a", types: []string{"movie"}}},
			media:   models.Media{Kind: models.MediaKindMovie, TMDBId: 99},
			authKey: "auth",
			want:    ReasonNoExternalID,
		},
		{
			name:   "blank auth key",
			addons: []testAddon{{id: "a", types: []string{"movie"}}},
			media:  models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"},
			want:   ReasonNoAuthKey,
		},
		{
			name:      "addon list rejected",
			listError: "Session does not exist",
			media:     models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"},
			authKey:   "expired",
			want:      ReasonAddonListFailed,
		},
		{
			name:    "no stream addons",
			addons:  []testAddon{{id: "catalog", types: []string{"movie"}, resources: `["catalog","meta"]`}},
			media:   models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"},
			authKey: "auth",
			want:    ReasonNoStreamAddons,
		},
		{
			name:     "selection not installed",
			addons:   []testAddon{{id: "a", types: []string{"movie"}}},
			media:    models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"},
			authKey:  "auth",
			selected: []string{"other"},
			want:     ReasonNoSelectedAddons,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeStremio(t, tt.addons...)
			fake.listError = tt.listError
			db := newTestDB(t)
			probe := newTestProbe(t, fake, db, probeOptions{})
			media := createMedia(t, db, &tt.media)

			verdict := probe.Probe(context.Background(), media, tt.authKey, tt.selected, nil)

			assert.False(t, verdict.Available)
			assert.Zero(t, verdict.StreamCount)
			assert.True(t, strings.HasPrefix(verdict.Reason, tt.want), "reason %q", verdict.Reason)
			assert.False(t, verdict.CheckedAt.IsZero())
		})
	}
}

func TestProbeRestrictsToSelectedAddons(t *testing.T) {
	fake := newFakeStremio(t,
		testAddon{id: "a", types: []string{"movie"}, streams: []stremio.Stream{stream("Movie.1080p")}},
		testAddon{id: "b", types: []string{"movie"}, streams: []stremio.Stream{stream("Movie.720p")}},
	)
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"})

	verdict := probe.Probe(context.Background(), media, "auth", []string{"b"}, nil)

	require.Len(t, verdict.Addons, 1)
	assert.Equal(t, "b", verdict.Addons[0].AddonID)
	assert.Equal(t, []string{"/b/stream/movie/tt1.json"}, fake.requests())
}

func TestProbeCapsEvidencePerAddon(t *testing.T) {
	streams := make([]stremio.Stream, 15)
	for i := range streams {
		streams[i] = stream(fmt.Sprintf("Movie.2020.1080p.Release%d 2.%d GB", i, i))
	}
	fake := newFakeStremio(t, testAddon{id: "a", types: []string{"movie"}, streams: streams})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"})

	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	assert.Equal(t, 15, verdict.StreamCount)
	require.Len(t, verdict.Addons, 1)
	assert.Equal(t, 15, verdict.Addons[0].StreamCount)
	assert.Len(t, verdict.Addons[0].Streams, models.MaxEvidencePerAddon)
	assert.Equal(t, "2.0 GB", verdict.Addons[0].Streams[0].Size)
}

func TestProbeSkipsBlacklistedStreams(t *testing.T) {
	fake := newFakeStremio(t, testAddon{
		id:    "a",
		types: []string{"movie"},
		streams: []stremio.Stream{
			stream("Movie.2020.1080p.CAM"),
			stream("Movie.2020.1080p.BluRay"),
		},
	})
	db := newTestDB(t)
	probe := newTestProbe(t, fake, db, probeOptions{blacklist: utils.NewBlacklist([]string{"cam"})})
	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt1"})

	verdict := probe.Probe(context.Background(), media, "auth", nil, nil)

	assert.Equal(t, 1, verdict.StreamCount)
	assert.Equal(t, "Movie.2020.1080p.BluRay", verdict.Addons[0].Streams[0].Name)
}
