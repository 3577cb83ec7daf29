// Package model defines the pharmacy records that flow through a harvest run:
// per-provider candidates, deduplicated entities, and persisted rows.
package model

import (
	"fmt"
	"time"
)

// Source identifies the provider family a candidate came from.
type Source string

const (
	// SourceGoogle is the commercial map API (nearby, text, details).
	SourceGoogle Source = "GOOGLE"
	// SourceOSM is the crowd-sourced map database reached through Overpass.
	SourceOSM Source = "OSM"
	// SourceFoursquare is the Foursquare Places API.
	SourceFoursquare Source = "FSQ"
	// SourceHERE is the HERE Discover API.
	SourceHERE Source = "HERE"
	// SourceTomTom is the TomTom Search API.
	SourceTomTom Source = "TOMTOM"
	// SourceRegistry is the national health-fund registry document.
	SourceRegistry Source = "FZO"
	// SourceChain is a retail-chain store locator page.
	SourceChain Source = "CHAIN"
)

// Default field values applied when a provider omits them.
const (
	UnknownName    = "Unknown Pharmacy"
	UnknownAddress = "Address not available"
	HoursUnknown   = "N/A"
	HoursAllDay    = "24/7"
	HoursClosed    = "Zatvoreno"
	HoursFallback  = "08:00-20:00"
)

// Hours is the classified opening-hours structure.
type Hours struct {
	Is24h      bool   `json:"is_24h"`
	OpenSunday bool   `json:"open_sunday"`
	MonFri     string `json:"hours_monfri"`
	Sat        string `json:"hours_sat"`
	Sun        string `json:"hours_sun"`
}

// Candidate is one normalized observation of a pharmacy from one provider call.
type Candidate struct {
	NameLocal     string   `json:"name_me"`
	NameSecondary string   `json:"name_en"`
	Address       string   `json:"address"`
	CityHint      string   `json:"city_name,omitempty"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Phone         string   `json:"phone,omitempty"`
	Email         string   `json:"email,omitempty"`
	Website       string   `json:"website,omitempty"`
	OpeningHours  string   `json:"opening_hours,omitempty"`
	Hours         Hours    `json:"hours"`
	Source        Source   `json:"source_type"`
	PlaceID       string   `json:"google_place_id,omitempty"`
	NativeType    string   `json:"osm_type,omitempty"`
	NativeID      string   `json:"osm_id,omitempty"`
	CoordSource   Source   `json:"coord_source,omitempty"`
	Rating        *float64 `json:"google_rating,omitempty"`
	ReviewCount   int      `json:"google_reviews_count,omitempty"`
	Reliability   int      `json:"reliability_score"`
}

// HasCoords reports whether both coordinates are present.
func (c Candidate) HasCoords() bool {
	return c.Lat != nil && c.Lng != nil
}

// NativeKey returns the (native-source-type, native-source-id) pair as one key,
// or "" when the candidate has no native id.
func (c Candidate) NativeKey() string {
	if c.NativeType == "" || c.NativeID == "" {
		return ""
	}
	return c.NativeType + ":" + c.NativeID
}

// Entity is the deduplicated representative of one real-world pharmacy for a run.
type Entity struct {
	Candidate
	Provenance string `json:"provenance"`
}

// RegistryRow is a parsed line from a registry or chain document. It carries no
// coordinates and must be geocoded before it can become a candidate.
type RegistryRow struct {
	Raw     string   `json:"raw"`
	Source  Source   `json:"source"`
	Origin  string   `json:"origin"`
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address,omitempty"`
	City    string   `json:"city,omitempty"`
	Emails  []string `json:"emails,omitempty"`
	Phones  []string `json:"phones,omitempty"`
}

// Pharmacy is the persisted record.
type Pharmacy struct {
	ID             int64      `json:"id" db:"id"`
	CityID         int64      `json:"city_id" db:"city_id"`
	NameLocal      string     `json:"name_me" db:"name_me"`
	NameSecondary  string     `json:"name_en" db:"name_en"`
	NameKey        string     `json:"-" db:"name_key"`
	Address        string     `json:"address" db:"address"`
	Lat            float64    `json:"lat" db:"lat"`
	Lng            float64    `json:"lng" db:"lng"`
	Phone          *string    `json:"phone" db:"phone"`
	Email          *string    `json:"email" db:"email"`
	Website        *string    `json:"website" db:"website"`
	Is24h          bool       `json:"is_24h" db:"is_24h"`
	OpenSunday     bool       `json:"open_sunday" db:"open_sunday"`
	HoursMonFri    string     `json:"hours_monfri" db:"hours_monfri"`
	HoursSat       string     `json:"hours_sat" db:"hours_sat"`
	HoursSun       string     `json:"hours_sun" db:"hours_sun"`
	OpeningHours   *string    `json:"opening_hours" db:"opening_hours"`
	ExternalID     *string    `json:"google_place_id" db:"google_place_id"`
	Rating         *float64   `json:"google_rating" db:"google_rating"`
	ReviewCount    int        `json:"google_reviews_count" db:"google_reviews_count"`
	SourceType     string     `json:"source_type" db:"source_type"`
	Reliability    int        `json:"reliability_score" db:"reliability_score"`
	Active         bool       `json:"active" db:"active"`
	LastOnlineSync *time.Time `json:"last_online_sync" db:"last_online_sync"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// FieldChange is one old/new pair in an update diff.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// mapped lists the fields a reconcile update replaces, in a stable order.
func (p *Pharmacy) mapped() []FieldChange {
	return []FieldChange{
		{Field: "name_me", New: p.NameLocal},
		{Field: "name_en", New: p.NameSecondary},
		{Field: "address", New: p.Address},
		{Field: "lat", New: p.Lat},
		{Field: "lng", New: p.Lng},
		{Field: "phone", New: deref(p.Phone)},
		{Field: "email", New: deref(p.Email)},
		{Field: "website", New: deref(p.Website)},
		{Field: "is_24h", New: p.Is24h},
		{Field: "open_sunday", New: p.OpenSunday},
		{Field: "hours_monfri", New: p.HoursMonFri},
		{Field: "hours_sat", New: p.HoursSat},
		{Field: "hours_sun", New: p.HoursSun},
		{Field: "opening_hours", New: deref(p.OpeningHours)},
		{Field: "google_place_id", New: deref(p.ExternalID)},
		{Field: "google_rating", New: derefFloat(p.Rating)},
		{Field: "google_reviews_count", New: p.ReviewCount},
		{Field: "source_type", New: p.SourceType},
		{Field: "reliability_score", New: p.Reliability},
		{Field: "city_id", New: p.CityID},
		{Field: "active", New: p.Active},
	}
}

// Diff returns the mapped fields whose value differs between old and next.
func Diff(old, next *Pharmacy) []FieldChange {
	before := old.mapped()
	after := next.mapped()
	var changes []FieldChange
	for i := range after {
		if fmt.Sprint(before[i].New) == fmt.Sprint(after[i].New) {
			continue
		}
		changes = append(changes, FieldChange{
			Field: after[i].Field,
			Old:   before[i].New,
			New:   after[i].New,
		})
	}
	return changes
}

// ApplyTo overwrites every mapped field on dst with the values from p while
// keeping dst's identity and creation time.
func (p *Pharmacy) ApplyTo(dst *Pharmacy) {
	id, created := dst.ID, dst.CreatedAt
	*dst = *p
	dst.ID = id
	dst.CreatedAt = created
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// City is a municipality row in the store.
type City struct {
	ID     int64  `json:"id" db:"id"`
	Slug   string `json:"slug" db:"slug"`
	NameME string `json:"name_me" db:"name_me"`
	NameEN string `json:"name_en" db:"name_en"`
}

// CityStatus summarizes persisted coverage for one city.
type CityStatus struct {
	Slug          string     `json:"citySlug"`
	Name          string     `json:"cityName"`
	PharmacyCount int        `json:"pharmacyCount"`
	LastSync      *time.Time `json:"lastSync"`
}
