// Package model defines the golden record types for aggregated restaurant data.
package model

import (
	"time"
)

// Entity is the merged golden record for one physical establishment.
type Entity struct {
	ID         int64    `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	Address    string   `json:"address,omitempty" db:"address"`
	Latitude   *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64 `json:"longitude,omitempty" db:"longitude"`
	Phone      string   `json:"phone,omitempty" db:"phone"`
	Categories []string `json:"categories,omitempty" db:"categories"`

	// Per-source data, keyed by provider name. At most one rating and one
	// external id per (entity, source) pair.
	Ratings      map[string]SourceRating `json:"ratings,omitempty"`
	ExternalRefs map[string]string       `json:"external_refs,omitempty"`

	LastEnrichedAt *time.Time `json:"last_enriched_at,omitempty" db:"last_enriched_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// SourceRating is one provider's rating for an entity.
type SourceRating struct {
	Score       float64 `json:"score" db:"score"`
	ReviewCount int     `json:"review_count" db:"review_count"`
}

// HasGPS reports whether both coordinates are present.
func (e *Entity) HasGPS() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Candidate is a read-only projection of a stored Entity considered as a
// possible match for an incoming provider record. Never mutated by matching.
type Candidate struct {
	EntityID  int64    `json:"entity_id" db:"id"`
	Name      string   `json:"name" db:"name"`
	Address   string   `json:"address" db:"address"`
	Latitude  *float64 `json:"latitude" db:"latitude"`
	Longitude *float64 `json:"longitude" db:"longitude"`
	Phone     string   `json:"phone" db:"phone"`
}
