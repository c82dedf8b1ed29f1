package domain

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoJSONPoint is the structured point shape stored alongside disasters.
// Coordinates are [lon, lat] per the GeoJSON specification.
type GeoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

const (
	wkbPointType = 1
	ewkbSRIDFlag = 0x20000000
)

// NormalizePoint converts a raw location value into a coordinate pair.
// It accepts a GeoJSON Point (as GeoJSONPoint, map[string]any, or raw JSON
// bytes) or a hex-encoded WKB/EWKB 2D point string, little-endian only.
// Unrecognized or malformed input reports ok == false; it never panics.
func NormalizePoint(raw any) (Geo, bool) {
	switch v := raw.(type) {
	case nil:
		return Geo{}, false
	case Geo:
		return v, true
	case GeoJSONPoint:
		return fromCoordinates(v.Type, v.Coordinates)
	case *GeoJSONPoint:
		if v == nil {
			return Geo{}, false
		}
		return fromCoordinates(v.Type, v.Coordinates)
	case map[string]any:
		return fromGeoJSONMap(v)
	case json.RawMessage:
		return fromRawJSON(v)
	case []byte:
		return fromRawJSON(v)
	case string:
		return parseWKBPoint(v)
	default:
		return Geo{}, false
	}
}

// EWKTPoint renders a coordinate pair in the SRID-prefixed well-known-text
// form used for the resources location column.
func EWKTPoint(g Geo) string {
	return fmt.Sprintf("SRID=4326;POINT(%s %s)",
		strconv.FormatFloat(g.Lon, 'f', -1, 64),
		strconv.FormatFloat(g.Lat, 'f', -1, 64))
}

func fromRawJSON(data []byte) (Geo, bool) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Geo{}, false
	}
	// A JSON string holds a hex WKB point; an object holds GeoJSON.
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Geo{}, false
		}
		return parseWKBPoint(s)
	}
	var p GeoJSONPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return Geo{}, false
	}
	return fromCoordinates(p.Type, p.Coordinates)
}

func fromGeoJSONMap(m map[string]any) (Geo, bool) {
	typ, _ := m["type"].(string)
	coords, ok := m["coordinates"].([]any)
	if !ok {
		return Geo{}, false
	}
	pair := make([]float64, 0, len(coords))
	for _, c := range coords {
		f, ok := c.(float64)
		if !ok {
			return Geo{}, false
		}
		pair = append(pair, f)
	}
	return fromCoordinates(typ, pair)
}

func fromCoordinates(typ string, coords []float64) (Geo, bool) {
	if typ != "" && !strings.EqualFold(typ, "Point") {
		return Geo{}, false
	}
	if len(coords) < 2 {
		return Geo{}, false
	}
	return Geo{Lat: coords[1], Lon: coords[0]}, true
}

// parseWKBPoint decodes a hex-encoded 2D point in WKB or EWKB form.
// Layout: 1 byte order marker, uint32 geometry type (EWKB sets the SRID flag),
// optional uint32 SRID, then two little-endian float64s for lon and lat.
func parseWKBPoint(s string) (Geo, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	if len(s) < 42 {
		return Geo{}, false
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return Geo{}, false
	}
	// Little-endian only; big-endian (0x00) points are not decoded.
	if buf[0] != 0x01 {
		return Geo{}, false
	}
	geomType := binary.LittleEndian.Uint32(buf[1:5])
	offset := 5
	if geomType&ewkbSRIDFlag != 0 {
		offset += 4 // skip SRID
	}
	if geomType&^uint32(ewkbSRIDFlag) != wkbPointType {
		return Geo{}, false
	}
	if len(buf) < offset+16 {
		return Geo{}, false
	}
	lon := math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
	lat := math.Float64frombits(binary.LittleEndian.Uint64(buf[offset+8 : offset+16]))
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return Geo{}, false
	}
	return Geo{Lat: lat, Lon: lon}, true
}
