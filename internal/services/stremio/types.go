package stremio

import (
	"encoding/json"
	"strings"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/utils"
)

const (
	resourceStream = "stream"
	manifestSuffix = "/manifest.json"
)

// Resource is one entry of a manifest's resources list. The addon protocol
// allows either a bare name ("stream") or an object with a name field.
type Resource struct {
	Name       string   `json:"name"`
	Types      []string `json:"types,omitempty"`
	IDPrefixes []string `json:"idPrefixes,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form
func (r *Resource) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = Resource{Name: name}
		return nil
	}

	type plain Resource
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Resource(obj)
	return nil
}

// Manifest describes an installed addon
type Manifest struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Types       []string   `json:"types"`
	Resources   []Resource `json:"resources"`
	IDPrefixes  []string   `json:"idPrefixes,omitempty"`
}

// Addon is one entry of the user's addon collection
type Addon struct {
	TransportURL  string   `json:"transportUrl"`
	TransportName string   `json:"transportName"`
	Manifest      Manifest `json:"manifest"`
}

// addonCollectionRequest is the body of the addonCollectionGet call
type addonCollectionRequest struct {
	Type    string `json:"type"`
	AuthKey string `json:"authKey"`
	Update  bool   `json:"update"`
}

// addonCollectionResponse is the addonCollectionGet envelope
type addonCollectionResponse struct {
	Result *struct {
		Addons []Addon `json:"addons"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// AddonDescriptor is a stream-capable addon, built fresh for every probe cycle
type AddonDescriptor struct {
	ID           string
	Name         string
	Version      string
	TransportURL string
	Types        []string
	Resources    []Resource
}

func newDescriptor(addon Addon) AddonDescriptor {
	return AddonDescriptor{
		ID:           addon.Manifest.ID,
		Name:         addon.Manifest.Name,
		Version:      addon.Manifest.Version,
		TransportURL: addon.TransportURL,
		Types:        addon.Manifest.Types,
		Resources:    addon.Manifest.Resources,
	}
}

// streamResource returns the stream resource entry, if declared
func (a AddonDescriptor) streamResource() (Resource, bool) {
	for _, r := range a.Resources {
		if r.Name == resourceStream {
			return r, true
		}
	}
	return Resource{}, false
}

// ServesStreams reports whether the manifest declares the stream resource
func (a AddonDescriptor) ServesStreams() bool {
	_, ok := a.streamResource()
	return ok
}

// SupportsKind reports whether the addon serves streams for the given kind.
// Types declared on the stream resource take precedence over manifest types.
func (a AddonDescriptor) SupportsKind(kind models.MediaKind) bool {
	types := a.Types
	if r, ok := a.streamResource(); ok && len(r.Types) > 0 {
		types = r.Types
	}
	for _, t := range types {
		if strings.EqualFold(t, string(kind)) {
			return true
		}
	}
	return false
}

// BaseURL returns the transport URL without its manifest file suffix
func (a AddonDescriptor) BaseURL() string {
	base := strings.TrimSuffix(a.TransportURL, manifestSuffix)
	return strings.TrimRight(base, "/")
}

// StreamBehaviorHints carries optional hints attached to a stream
type StreamBehaviorHints struct {
	Filename   string `json:"filename,omitempty"`
	VideoSize  int64  `json:"videoSize,omitempty"`
	BingeGroup string `json:"bingeGroup,omitempty"`
}

// Stream is a single playable link returned by an addon
type Stream struct {
	Name          string               `json:"name,omitempty"`
	Title         string               `json:"title,omitempty"`
	Description   string               `json:"description,omitempty"`
	URL           string               `json:"url,omitempty"`
	InfoHash      string               `json:"infoHash,omitempty"`
	FileIdx       *int                 `json:"fileIdx,omitempty"`
	BehaviorHints *StreamBehaviorHints `json:"behaviorHints,omitempty"`
}

// Text returns the free-text fields used for classification
func (s Stream) Text() utils.StreamText {
	text := utils.StreamText{
		Name:        s.Name,
		Title:       s.Title,
		Description: s.Description,
	}
	if s.BehaviorHints != nil {
		text.Filename = s.BehaviorHints.Filename
	}
	return text
}

// streamResponse is the body of a stream request
type streamResponse struct {
	Streams []Stream `json:"streams"`
}
