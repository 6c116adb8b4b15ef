package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/stremio"
	"github.com/amaumene/stremarr/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeProvider is an in-memory metadata provider
type fakeProvider struct {
	imdbByTMDB map[int]string
	tmdbByTVDB map[int]int
	err        error
	calls      int32
}

func (p *fakeProvider) ResolveExternalID(ctx context.Context, tmdbID int, kind models.MediaKind) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return "", p.err
	}
	return p.imdbByTMDB[tmdbID], nil
}

func (p *fakeProvider) FindByTVDB(ctx context.Context, tvdbID int) (int, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return 0, p.err
	}
	return p.tmdbByTVDB[tvdbID], nil
}

// testAddon describes one addon served by fakeStremio
type testAddon struct {
	id        string
	types     []string
	resources string // raw JSON, defaults to ["stream"]
	streams   []stremio.Stream
	status    int
	delay     time.Duration
}

// fakeStremio serves the addon collection endpoint and every addon's stream
// endpoint from one test server
type fakeStremio struct {
	server *httptest.Server

	mu        sync.Mutex
	addons    []testAddon
	listError string
	requested []string
}

func newFakeStremio(t *testing.T, addons ...testAddon) *fakeStremio {
	t.Helper()
	f := &fakeStremio{addons: addons}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeStremio) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/addonCollectionGet" {
		f.serveCollection(w)
		return
	}

	addonID, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	f.mu.Lock()
	f.requested = append(f.requested, r.URL.Path)
	var addon *testAddon
	for i := range f.addons {
		if f.addons[i].id == addonID {
			a := f.addons[i]
			addon = &a
		}
	}
	f.mu.Unlock()

	if addon == nil {
		http.NotFound(w, r)
		return
	}
	if addon.delay > 0 {
		select {
		case <-time.After(addon.delay):
		case <-r.Context().Done():
			return
		}
	}
	if addon.status != 0 {
		w.WriteHeader(addon.status)
		return
	}
	streams := addon.streams
	if streams == nil {
		streams = []stremio.Stream{}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"streams": streams})
}

func (f *fakeStremio) serveCollection(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listError != "" {
		fmt.Fprintf(w, `{"error":{"message":%q,"code":1}}`, f.listError)
		return
	}

	entries := make([]string, 0, len(f.addons))
	for _, a := range f.addons {
		resources := a.resources
		if resources == "" {
			resources = `["stream"]`
		}
		types, _ := json.Marshal(a.types)
		entries = append(entries, fmt.Sprintf(
			`{"transportUrl":"%s/%s/manifest.json","manifest":{"id":%q,"name":%q,"version":"1.0.0","types":%s,"resources":%s}}`,
			f.server.URL, a.id, a.id, strings.ToUpper(a.id), types, resources))
	}
	fmt.Fprintf(w, `{"result":{"addons":[%s]}}`, strings.Join(entries, ","))
}

func (f *fakeStremio) setStreams(addonID string, streams []stremio.Stream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.addons {
		if f.addons[i].id == addonID {
			f.addons[i].streams = streams
		}
	}
}

func (f *fakeStremio) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

type probeOptions struct {
	timeout     time.Duration
	concurrency int
	blacklist   *utils.Blacklist
	provider    *fakeProvider
}

func newTestProbe(t *testing.T, fake *fakeStremio, db *models.Database, opts probeOptions) *ProbeController {
	t.Helper()
	logger := quietLogger()

	cfg := config.Default()
	cfg.StremioAPIURL = fake.server.URL
	client := stremio.NewClient(&cfg, logger)

	if opts.timeout == 0 {
		opts.timeout = 2 * time.Second
	}
	if opts.concurrency == 0 {
		opts.concurrency = 1
	}
	if opts.provider == nil {
		opts.provider = &fakeProvider{}
	}

	resolver := NewResolverController(db, logger, opts.provider)
	return NewProbeController(client, resolver, opts.blacklist, opts.timeout, opts.concurrency, metrics.NewNop(), logger)
}

func createMedia(t *testing.T, db *models.Database, media *models.Media) *models.Media {
	t.Helper()
	require.NoError(t, db.CreateMedia(media))
	require.NotZero(t, media.ID)
	return media
}

func stream(title string) stremio.Stream {
	return stremio.Stream{Name: "Torrentio", Title: title, InfoHash: "abc"}
}
