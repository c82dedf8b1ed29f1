package postgres

import (
	"encoding/json"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
)

// disasterRow is the read-only projection of the gateway-owned disasters
// view. Location is GeoJSON as rendered by the view.
type disasterRow struct {
	ID       string          `gorm:"column:id;primaryKey"`
	Location json.RawMessage `gorm:"column:location;type:jsonb"`
	Status   string          `gorm:"column:status"`
}

func (disasterRow) TableName() string {
	return "disasters_geojson"
}

// resourceRow is the persisted form of a domain.Resource. Lat/lon are stored
// alongside the geometry so proximity queries stay in plain SQL.
type resourceRow struct {
	ID           string    `gorm:"column:id;primaryKey;size:36"`
	DisasterID   string    `gorm:"column:disaster_id;size:36;not null;index:idx_resources_disaster"`
	Name         string    `gorm:"column:name;size:500;not null"`
	Type         string    `gorm:"column:type;size:50;not null;index:idx_resources_type"`
	Location     string    `gorm:"column:location;type:geometry(Point,4326)"`
	LocationName string    `gorm:"column:location_name;size:500"`
	Lat          float64   `gorm:"column:lat;type:double precision;not null"`
	Lon          float64   `gorm:"column:lon;type:double precision;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (resourceRow) TableName() string {
	return "resources"
}

// cacheRow backs the Postgres ResourceCache. Expired rows are ignored on
// read and cleaned up lazily by overwrites and invalidations.
type cacheRow struct {
	Key       string          `gorm:"column:key;primaryKey;size:512"`
	Value     json.RawMessage `gorm:"column:value;type:jsonb;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index"`
}

func (cacheRow) TableName() string {
	return "resource_cache"
}

func toResourceRow(r domain.Resource) resourceRow {
	return resourceRow{
		ID:           r.ID,
		DisasterID:   r.DisasterID,
		Name:         r.Name,
		Type:         string(r.Type),
		Location:     r.Location,
		LocationName: r.LocationName,
		Lat:          r.Lat,
		Lon:          r.Lon,
	}
}

func toDomainResource(row resourceRow) domain.Resource {
	return domain.Resource{
		ID:           row.ID,
		DisasterID:   row.DisasterID,
		Name:         row.Name,
		Type:         domain.ResourceType(row.Type),
		Location:     row.Location,
		LocationName: row.LocationName,
		Lat:          row.Lat,
		Lon:          row.Lon,
		CreatedAt:    row.CreatedAt,
	}
}
