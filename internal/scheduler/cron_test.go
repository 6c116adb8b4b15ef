package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/stremio"
	"github.com/amaumene/stremarr/internal/services/webhook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db        *models.Database
	scheduler *Scheduler
	user      *models.User
	queries   *int32
}

// newFixture wires a scheduler against a single fake addon that always
// returns one 1080p stream
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var queries int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/addonCollectionGet" {
			fmt.Fprintf(w, `{"result":{"addons":[{"transportUrl":"%s/addon/manifest.json","manifest":{"id":"addon","name":"Addon","types":["movie","series"],"resources":["stream"]}}]}}`, server.URL)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/addon/stream/") {
			atomic.AddInt32(&queries, 1)
			_, _ = w.Write([]byte(`{"streams":[{"name":"Addon","title":"Release.2020.1080p"}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.StremioAPIURL = server.URL
	cfg.RecheckPacing = 0
	cfg.RecheckStartupDelay = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	m := metrics.NewNop()
	resolver := controllers.NewResolverController(db, logger)
	probe := controllers.NewProbeController(stremio.NewClient(&cfg, logger), resolver, nil, cfg.AddonTimeout, cfg.AddonConcurrency, m, logger)
	availability := controllers.NewAvailabilityController(db, probe, webhook.NewNotifier(&cfg, logger), m, logger)
	cleanup := controllers.NewCleanupController(db, logger)

	user := &models.User{Name: "alice", StremioAuthKey: "auth"}
	require.NoError(t, db.CreateUser(user))

	s := NewScheduler(availability, cleanup, db, &cfg, m, logger)
	t.Cleanup(s.Stop)

	return &fixture{db: db, scheduler: s, user: user, queries: &queries}
}

func (f *fixture) media(t *testing.T, imdbID string) *models.Media {
	t.Helper()
	media := &models.Media{UserID: f.user.ID, Kind: models.MediaKindMovie, IMDBId: imdbID}
	require.NoError(t, f.db.CreateMedia(media))
	return media
}

func TestRecheckUnavailableProbesDueItems(t *testing.T) {
	f := newFixture(t, nil)

	due := f.media(t, "tt0000001")

	recent := f.media(t, "tt0000002")
	_, err := f.db.RecordVerdict(recent.ID, models.Verdict{Reason: "no streams found", CheckedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	old := f.media(t, "tt0000003")
	_, err = f.db.RecordVerdict(old.ID, models.Verdict{Reason: "no streams found", CheckedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)

	checked, err := f.scheduler.RecheckUnavailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, checked)

	for _, id := range []uint64{due.ID, old.ID} {
		stored, err := f.db.GetMediaByID(id)
		require.NoError(t, err)
		assert.True(t, stored.StreamsAvailable, "media %d", id)
	}

	stored, err := f.db.GetMediaByID(recent.ID)
	require.NoError(t, err)
	assert.False(t, stored.StreamsAvailable)
}

func TestRecheckUnavailableStopsBetweenItems(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RecheckPacing = 10 * time.Second
	})
	for i := 0; i < 3; i++ {
		f.media(t, fmt.Sprintf("tt000000%d", i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	checked, err := f.scheduler.RecheckUnavailable(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, checked)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRefreshStaleSchedulesOncePerWindow(t *testing.T) {
	f := newFixture(t, nil)

	stale := f.media(t, "tt0000001")
	fresh := f.media(t, "tt0000002")
	_, err := f.db.RecordVerdict(fresh.ID, models.Verdict{CheckedAt: time.Now()})
	require.NoError(t, err)
	fresh, err = f.db.GetMediaByID(fresh.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.scheduler.RefreshStale([]*models.Media{stale, fresh}))
	assert.Equal(t, 0, f.scheduler.RefreshStale([]*models.Media{stale, fresh}))

	f.scheduler.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(f.queries))

	stored, err := f.db.GetMediaByID(stale.ID)
	require.NoError(t, err)
	assert.True(t, stored.StreamsAvailable)
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.scheduler.Start())
	require.NoError(t, f.scheduler.Start())
	assert.Len(t, f.scheduler.cron.Entries(), 2)

	f.scheduler.Stop()
	f.scheduler.Stop()
	assert.Error(t, f.scheduler.Start())
}

func TestStartRunsFirstPassAfterDelay(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RecheckStartupDelay = 50 * time.Millisecond
	})
	media := f.media(t, "tt0000001")

	require.NoError(t, f.scheduler.Start())
	assert.Eventually(t, func() bool {
		stored, err := f.db.GetMediaByID(media.ID)
		return err == nil && stored.LastStreamCheck != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCheckAsyncAfterStopIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	media := f.media(t, "tt0000001")

	f.scheduler.Stop()
	assert.False(t, f.scheduler.CheckAsync(media, controllers.TriggerRegistered))
	assert.Zero(t, atomic.LoadInt32(f.queries))
}

func TestRecheckMaxAge(t *testing.T) {
	assert.Equal(t, 21*time.Hour+36*time.Minute, recheckMaxAge(24*time.Hour))
	assert.Equal(t, 54*time.Minute, recheckMaxAge(time.Hour))
}

func TestRecheckUnavailableIncludesItemsCheckedLateInLastPass(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.RecheckInterval = 24 * time.Hour })

	late := f.media(t, "tt0000001")
	_, err := f.db.RecordVerdict(late.ID, models.Verdict{Reason: "no streams found", CheckedAt: time.Now().Add(-23 * time.Hour)})
	require.NoError(t, err)

	fresh := f.media(t, "tt0000002")
	_, err = f.db.RecordVerdict(fresh.ID, models.Verdict{Reason: "no streams found", CheckedAt: time.Now().Add(-20 * time.Hour)})
	require.NoError(t, err)

	checked, err := f.scheduler.RecheckUnavailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, checked)

	stored, err := f.db.GetMediaByID(late.ID)
	require.NoError(t, err)
	assert.True(t, stored.StreamsAvailable)
}
