package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrCountryUnknown is returned by a GeoResolver when the address is
// private, malformed, or absent from the geo database.
var ErrCountryUnknown = errors.New("country unknown for address")

// Country is the result of a geo lookup.
type Country struct {
	Name string
	Code string
}

// GeoResolver is the opaque geo-IP collaborator: given an address, return a
// country or ErrCountryUnknown. Implementations live outside this package.
type GeoResolver interface {
	Country(ctx context.Context, ip string) (Country, error)
}

// ClickRepository is the write side of the pipeline. Increments happen
// in-place at the storage layer; upserts must tolerate concurrent
// duplicate-creation attempts (unique constraint plus conflict handling).
type ClickRepository interface {
	IncrementTotalClicks(ctx context.Context, key string) error
	AddUniqueIP(ctx context.Context, key, address string) error
	UpsertReferer(ctx context.Context, key, source string, at time.Time) error
	UpsertRegion(ctx context.Context, key string, country *Country, at time.Time) error
}

// RefererStat is one (link, source) aggregation row.
type RefererStat struct {
	Source      string    `json:"source"`
	TotalClicks int64     `json:"totalClicks"`
	LastVisited time.Time `json:"lastVisited"`
}

// RegionStat is one (link, country) aggregation row. Country fields are
// empty for visits whose origin could not be resolved.
type RegionStat struct {
	CountryName string    `json:"countryName,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	TotalClicks int64     `json:"totalClicks"`
	LastVisited time.Time `json:"lastVisited"`
}

// Summary aggregates everything the stats endpoint exposes for one link.
type Summary struct {
	UniqueVisitors int64         `json:"uniqueVisitors"`
	Referers       []RefererStat `json:"referers"`
	Regions        []RegionStat  `json:"regions"`
}

// StatsRepository is the read side used by the stats endpoint.
type StatsRepository interface {
	Summary(ctx context.Context, key string) (Summary, error)
}
