package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Media operations

// CreateMedia registers a new media item
func (db *Database) CreateMedia(media *Media) error {
	media.CreatedAt = time.Now()
	media.UpdatedAt = media.CreatedAt
	return db.store.Insert(bolthold.NextSequence(), media)
}

// GetMediaByID retrieves a media item by ID
func (db *Database) GetMediaByID(id uint64) (*Media, error) {
	var media Media
	if err := db.store.Get(id, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// GetMediaByAvailability retrieves all media items with the given availability
func (db *Database) GetMediaByAvailability(available bool) ([]*Media, error) {
	var medias []*Media
	err := db.store.Find(&medias, bolthold.Where("StreamsAvailable").Eq(available))
	return medias, err
}

// GetMediaByKind retrieves all media items of one kind
func (db *Database) GetMediaByKind(kind MediaKind) ([]*Media, error) {
	var medias []*Media
	err := db.store.Find(&medias, bolthold.Where("Kind").Eq(kind))
	return medias, err
}

// GetMediaByUser retrieves a user's media items, newest first.
// A limit of zero returns everything.
func (db *Database) GetMediaByUser(userID uint64, limit int) ([]*Media, error) {
	query := bolthold.Where("UserID").Eq(userID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var medias []*Media
	err := db.store.Find(&medias, query)
	return medias, err
}

// GetMediaByIMDBID finds a user's media item by IMDB ID and kind
func (db *Database) GetMediaByIMDBID(userID uint64, imdbID string, kind MediaKind) (*Media, error) {
	var media Media
	err := db.store.FindOne(&media,
		bolthold.Where("IMDBId").Eq(imdbID).
			And("Kind").Eq(kind).
			And("UserID").Eq(userID))
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// GetAllMedias retrieves all media items
func (db *Database) GetAllMedias() ([]*Media, error) {
	var medias []*Media
	err := db.store.Find(&medias, nil)
	return medias, err
}

// GetWatchedMedias retrieves all media items flagged as watched
func (db *Database) GetWatchedMedias() ([]*Media, error) {
	var medias []*Media
	err := db.store.Find(&medias, bolthold.Where("Watched").Eq(true))
	return medias, err
}

// SetIMDBID stores a resolved IMDB ID without touching any other field
func (db *Database) SetIMDBID(id uint64, imdbID string) error {
	return db.mutateMedia(id, func(media *Media) {
		media.IMDBId = imdbID
	})
}

// MarkMediaWatched flags a media item as watched
func (db *Database) MarkMediaWatched(id uint64, watchedAt time.Time) (*Media, error) {
	var updated *Media
	err := db.mutateMediaTx(id, func(media *Media) {
		media.Watched = true
		media.WatchedAt = &watchedAt
	}, func(media *Media) {
		updated = media
	})
	return updated, err
}

// MarkAvailableNotified records that the availability notification went out
func (db *Database) MarkAvailableNotified(id uint64, at time.Time) error {
	return db.mutateMedia(id, func(media *Media) {
		media.AvailableNotifiedAt = &at
	})
}

// RecordVerdict overwrites the availability fields of a media item in a
// single transaction and returns the updated item.
// The stored values always satisfy: available <=> count > 0 <=> detail non-empty.
func (db *Database) RecordVerdict(id uint64, verdict Verdict) (*Media, error) {
	available, count, detail := normalizeVerdict(verdict)
	checkedAt := verdict.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	var updated *Media
	err := db.mutateMediaTx(id, func(media *Media) {
		media.StreamsAvailable = available
		media.StreamCount = count
		media.StreamsDetail = detail
		media.LastStreamCheck = &checkedAt
		media.LastCheckReason = verdict.Reason
	}, func(media *Media) {
		updated = media
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record verdict for media %d: %w", id, err)
	}
	return updated, nil
}

func normalizeVerdict(verdict Verdict) (bool, int, []AddonEvidence) {
	detail := make([]AddonEvidence, 0, len(verdict.Addons))
	for _, addon := range verdict.Addons {
		if addon.StreamCount > 0 && len(addon.Streams) > 0 {
			detail = append(detail, addon)
		}
	}
	if verdict.StreamCount <= 0 || len(detail) == 0 {
		return false, 0, nil
	}
	return true, verdict.StreamCount, detail
}

// DeleteMedia deletes a media item and its episodes
func (db *Database) DeleteMedia(id uint64) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.store.TxDeleteMatching(tx, &Episode{}, bolthold.Where("MediaID").Eq(id)); err != nil {
			return err
		}
		return db.store.TxDelete(tx, id, &Media{})
	})
}

func (db *Database) mutateMedia(id uint64, fn func(*Media)) error {
	return db.mutateMediaTx(id, fn, nil)
}

// mutateMediaTx applies fn to a media item inside one read-modify-write
// transaction. done receives the stored copy once the write succeeded.
func (db *Database) mutateMediaTx(id uint64, fn func(*Media), done func(*Media)) error {
	var media Media
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.store.TxGet(tx, id, &media); err != nil {
			return err
		}
		fn(&media)
		media.UpdatedAt = time.Now()
		return db.store.TxUpdate(tx, id, &media)
	})
	if err != nil {
		return err
	}
	if done != nil {
		done(&media)
	}
	return nil
}

// Episode operations

// CreateEpisode adds an episode to a series
func (db *Database) CreateEpisode(episode *Episode) error {
	episode.CreatedAt = time.Now()
	episode.UpdatedAt = episode.CreatedAt
	return db.store.Insert(bolthold.NextSequence(), episode)
}

// GetEpisodeByID retrieves an episode by ID
func (db *Database) GetEpisodeByID(id uint64) (*Episode, error) {
	var episode Episode
	if err := db.store.Get(id, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

// GetEpisodesByMediaID retrieves all episodes of a series
func (db *Database) GetEpisodesByMediaID(mediaID uint64) ([]*Episode, error) {
	var episodes []*Episode
	err := db.store.Find(&episodes, bolthold.Where("MediaID").Eq(mediaID))
	return episodes, err
}

// MarkEpisodeWatched flags an episode as watched
func (db *Database) MarkEpisodeWatched(id uint64, watchedAt time.Time) (*Episode, error) {
	var episode Episode
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.store.TxGet(tx, id, &episode); err != nil {
			return err
		}
		episode.Watched = true
		episode.WatchedAt = &watchedAt
		episode.UpdatedAt = time.Now()
		return db.store.TxUpdate(tx, id, &episode)
	})
	if err != nil {
		return nil, err
	}
	return &episode, nil
}

// User operations

// CreateUser creates a new user
func (db *Database) CreateUser(user *User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	return db.store.Insert(bolthold.NextSequence(), user)
}

// UpdateUser updates an existing user
func (db *Database) UpdateUser(user *User) error {
	user.UpdatedAt = time.Now()
	return db.store.Update(user.ID, user)
}

// GetUserByID retrieves a user by ID
func (db *Database) GetUserByID(id uint64) (*User, error) {
	var user User
	if err := db.store.Get(id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByName retrieves a user by name
func (db *Database) GetUserByName(name string) (*User, error) {
	var user User
	if err := db.store.FindOne(&user, bolthold.Where("Name").Eq(name)); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetAllUsers retrieves all users
func (db *Database) GetAllUsers() ([]*User, error) {
	var users []*User
	err := db.store.Find(&users, nil)
	return users, err
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, bolthold.ErrNotFound)
}
