package models

import "time"

// User owns media requests and the Stremio account they are checked against
type User struct {
	ID     uint64 `boltholdKey:"ID"`
	Name   string `boltholdIndex:"Name"`
	APIKey string // Exchanged for a session token

	StremioAuthKey string   // Empty until the user links a Stremio account
	SelectedAddons []string // Addon ids to restrict probing to; empty means all
	Filters        FilterPreferences

	CreatedAt time.Time
	UpdatedAt time.Time
}
