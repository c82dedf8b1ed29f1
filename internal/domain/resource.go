package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDisasterNotFound reports a request that references a disaster the
// gateway does not know.
var ErrDisasterNotFound = errors.New("disaster not found")

// ErrResourceNotFound reports an operation on a resource id with no
// persisted row.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceType is the closed category set for aid resources. Amenity values
// outside the set collapse to TypeUnknown at the normalization boundary.
type ResourceType string

const (
	TypeHospital    ResourceType = "hospital"
	TypeShelter     ResourceType = "shelter"
	TypePharmacy    ResourceType = "pharmacy"
	TypePolice      ResourceType = "police"
	TypeFireStation ResourceType = "fire_station"
	TypeUnknown     ResourceType = "unknown"
)

// AmenityTypes lists the categories requested from the upstream service,
// in query order.
var AmenityTypes = []ResourceType{
	TypeHospital, TypeShelter, TypePharmacy, TypePolice, TypeFireStation,
}

// MaxPerType caps how many resources of a single type one population run
// may keep.
const MaxPerType = 20

// ParseResourceType maps an amenity tag value onto the closed category set.
func ParseResourceType(s string) ResourceType {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeHospital:
		return TypeHospital
	case TypeShelter:
		return TypeShelter
	case TypePharmacy:
		return TypePharmacy
	case TypePolice:
		return TypePolice
	case TypeFireStation:
		return TypeFireStation
	default:
		return TypeUnknown
	}
}

// Resource is an aid facility persisted for a disaster.
type Resource struct {
	ID           string       `json:"id"`
	DisasterID   string       `json:"disaster_id"`
	Name         string       `json:"name"`
	Type         ResourceType `json:"type"`
	Location     string       `json:"location"` // SRID=4326;POINT(lon lat)
	LocationName string       `json:"location_name"`
	Lat          float64      `json:"lat"`
	Lon          float64      `json:"lon"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
}

// Element is one entry of the Overpass "elements" array. Nodes carry lat/lon
// directly; ways and relations carry a computed center.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat,omitempty"`
	Lon    float64           `json:"lon,omitempty"`
	Center *Geo              `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Point resolves an element's coordinates, preferring direct lat/lon and
// falling back to the center. A zero coordinate cannot be told apart from an
// absent one in the upstream payload, so both coordinates must be non-zero
// for a point to count.
func (e Element) Point() (Geo, bool) {
	if e.Lat != 0 && e.Lon != 0 {
		return Geo{Lat: e.Lat, Lon: e.Lon}, true
	}
	if e.Center != nil && e.Center.Lat != 0 && e.Center.Lon != 0 {
		return *e.Center, true
	}
	return Geo{}, false
}

// CandidatesFromElements maps raw upstream elements to resource candidates
// for a disaster. Elements without resolvable coordinates are dropped.
// IDs are assigned here so a run's output is self-contained.
func CandidatesFromElements(disasterID string, elements []Element) []Resource {
	out := make([]Resource, 0, len(elements))
	for _, el := range elements {
		point, ok := el.Point()
		if !ok {
			continue
		}
		name := el.Tags["name"]
		if name == "" {
			name = el.Tags["amenity"]
		}
		if name == "" {
			name = "Unknown"
		}
		out = append(out, Resource{
			ID:           uuid.NewString(),
			DisasterID:   disasterID,
			Name:         name,
			Type:         ParseResourceType(el.Tags["amenity"]),
			Location:     EWKTPoint(point),
			LocationName: name,
			Lat:          point.Lat,
			Lon:          point.Lon,
		})
	}
	return out
}

// vagueNames are bare category labels considered too generic to keep.
var vagueNames = map[string]struct{}{
	"shelter":      {},
	"pharmacy":     {},
	"hospital":     {},
	"police":       {},
	"fire_station": {},
}

// DedupKey normalizes a resource name for duplicate detection.
func DedupKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FilterCandidates applies the population filter in order: stable first-wins
// dedup on normalized name, removal of bare category labels, then a per-type
// cap of MaxPerType. Input order is preserved and the function is a fixed
// point: filtering its own output changes nothing.
func FilterCandidates(candidates []Resource) []Resource {
	seen := make(map[string]struct{}, len(candidates))
	counts := make(map[ResourceType]int)
	out := make([]Resource, 0, len(candidates))

	for _, r := range candidates {
		key := DedupKey(r.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, vague := vagueNames[key]; vague {
			continue
		}
		if counts[r.Type] >= MaxPerType {
			continue
		}
		counts[r.Type]++
		out = append(out, r)
	}
	return out
}
