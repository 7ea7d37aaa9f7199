package model

// Record is the common shape every provider adapter normalizes its API
// responses into before reconciliation.
type Record struct {
	ExternalID  string   `json:"external_id"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Photos      []string `json:"photos,omitempty"`
}

// HasGPS reports whether both coordinates are present.
func (r *Record) HasGPS() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Shallow reports whether the record is missing fields a detail lookup could
// fill in (GPS or category data).
func (r *Record) Shallow() bool {
	return !r.HasGPS() || len(r.Categories) == 0
}
