// Package domain models aid resources discovered around a disaster site.
//
// # Data Source
//
// Resources originate from OpenStreetMap, queried through an Overpass API
// endpoint. The query asks for nodes, ways, and relations tagged with one of
// the amenity values {hospital, shelter, pharmacy, police, fire_station}
// within a radius of the disaster's coordinates. Overpass returns a JSON
// object with an "elements" array; nodes carry lat/lon directly while ways
// and relations carry a computed "center" (the query uses "out center").
//
// # Naming Conventions
//
// An element's display name is its "name" tag when present, falling back to
// the "amenity" tag, and finally to the literal "Unknown". Names that are
// nothing more than a bare amenity label ("hospital", "shelter", ...) carry
// no information a map marker doesn't already show, so they are discarded
// during filtering.
//
// # Deduplication
//
// OSM frequently maps the same facility as both a node and a way (building
// outline plus entrance node), producing near-duplicate elements. The filter
// keys on the lower-cased, trimmed name and keeps the first occurrence in
// input order. A per-type cap of 20 bounds the result in dense urban areas.
//
// # Geometry Encodings
//
// Resource locations arrive in two shapes depending on which storage path
// produced them: a GeoJSON Point object with [lon, lat] coordinates, or a
// hex-encoded WKB/EWKB 2D point as PostGIS emits it. NormalizePoint accepts
// both, little-endian byte order only; anything else reports absence rather
// than an error so display code can simply skip unplottable rows.
package domain
