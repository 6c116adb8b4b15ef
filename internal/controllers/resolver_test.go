package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStreamIDKeepsExistingID(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{}
	resolver := NewResolverController(db, quietLogger(), provider)

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, IMDBId: "tt0133093", TMDBId: 603})

	id, err := resolver.ResolveStreamID(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", id)
	assert.Zero(t, provider.calls)
}

func TestResolveStreamIDFromTMDBWritesThrough(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{imdbByTMDB: map[int]string{603: "tt0133093"}}
	resolver := NewResolverController(db, quietLogger(), provider)

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, TMDBId: 603})

	id, err := resolver.ResolveStreamID(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", id)

	stored, err := db.GetMediaByID(media.ID)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", stored.IMDBId)
	assert.Nil(t, stored.LastStreamCheck)
}

func TestResolveStreamIDFromTVDB(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{
		tmdbByTVDB: map[int]int{121361: 1399},
		imdbByTMDB: map[int]string{1399: "tt0944947"},
	}
	resolver := NewResolverController(db, quietLogger(), provider)

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindSeries, TVDBId: 121361})

	id, err := resolver.ResolveStreamID(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, "tt0944947", id)
}

func TestResolveStreamIDFallsBackToNextProvider(t *testing.T) {
	db := newTestDB(t)
	failing := &fakeProvider{err: errors.New("tmdb down")}
	fallback := &fakeProvider{imdbByTMDB: map[int]string{603: "tt0133093"}}
	resolver := NewResolverController(db, quietLogger(), failing, fallback)

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, TMDBId: 603})

	id, err := resolver.ResolveStreamID(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", id)
	assert.Equal(t, int32(1), failing.calls)
}

func TestResolveStreamIDUnresolved(t *testing.T) {
	db := newTestDB(t)
	resolver := NewResolverController(db, quietLogger(), &fakeProvider{})

	media := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie, TMDBId: 1})

	id, err := resolver.ResolveStreamID(context.Background(), media)
	require.NoError(t, err)
	assert.Empty(t, id)

	noIDs := createMedia(t, db, &models.Media{Kind: models.MediaKindMovie})
	id, err = resolver.ResolveStreamID(context.Background(), noIDs)
	require.NoError(t, err)
	assert.Empty(t, id)
}
