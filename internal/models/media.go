package models

import "time"

// Media represents a movie or series requested through the request manager
type Media struct {
	ID     uint64 `boltholdKey:"ID"`
	UserID uint64 `boltholdIndex:"UserID"` // Owning user

	Kind   MediaKind `boltholdIndex:"Kind"`
	TMDBId int       // Metadata provider id
	IMDBId string    `boltholdIndex:"IMDBId"` // Canonical stream lookup id, e.g. "tt0133093"
	TVDBId int       // Secondary catalog id, series only

	Title         string
	OriginalTitle string
	Year          int

	Overview    string
	PosterURL   string
	BackdropURL string
	Genres      []string
	Runtime     int // minutes

	Monitored bool
	Watched   bool
	WatchedAt *time.Time

	// Availability, written only through Database.RecordVerdict
	StreamsAvailable bool `boltholdIndex:"StreamsAvailable"`
	StreamCount      int
	LastStreamCheck  *time.Time
	StreamsDetail    []AddonEvidence
	LastCheckReason  string

	AvailableNotifiedAt *time.Time

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsStale reports whether the last stream check is missing or older than maxAge.
func (m *Media) IsStale(now time.Time, maxAge time.Duration) bool {
	if m.LastStreamCheck == nil {
		return true
	}
	return now.Sub(*m.LastStreamCheck) > maxAge
}

// Episode is a single episode of a series, used to decide when a series is fully watched
type Episode struct {
	ID      uint64 `boltholdKey:"ID"`
	MediaID uint64 `boltholdIndex:"MediaID"`

	SeasonNumber  int
	EpisodeNumber int
	Title         string
	Overview      string
	AirDate       *time.Time

	Watched   bool
	WatchedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StreamEvidence is the user-facing summary of one stream returned by an addon
type StreamEvidence struct {
	Name    string // Best-effort release name
	Title   string // Raw title field from the addon
	Quality string // e.g. "1080p", "4K", "HDR"; empty when unknown
	Size    string // e.g. "2.4 GB"; empty when unknown
}

// AddonEvidence groups the streams one addon returned for an item
type AddonEvidence struct {
	AddonID     string
	AddonName   string
	StreamCount int
	Streams     []StreamEvidence // At most MaxEvidencePerAddon entries
}

// MaxEvidencePerAddon caps how many streams are kept per addon
const MaxEvidencePerAddon = 10

// Verdict is the outcome of one probe cycle for one media item
type Verdict struct {
	Available   bool
	StreamCount int
	Addons      []AddonEvidence
	Reason      string
	CheckedAt   time.Time
}
