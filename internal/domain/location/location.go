package location

import "math"

const earthRadiusMeters = 6371000.0

// Coordinates is a WGS84 position.
type Coordinates struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid reports whether the coordinates are inside the WGS84 range.
func (c Coordinates) Valid() bool {
	return c.Longitude >= -180 && c.Longitude <= 180 &&
		c.Latitude >= -90 && c.Latitude <= 90
}

// GeoPoint is a GeoJSON point. Coordinates are stored as [longitude, latitude]
// so the shape can be indexed by 2dsphere/GIST indexes as is.
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from coordinates.
func NewGeoPoint(c Coordinates) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{c.Longitude, c.Latitude}}
}

// Coords returns the point as Coordinates. A malformed point yields the zero value.
func (p GeoPoint) Coords() Coordinates {
	if len(p.Coordinates) != 2 {
		return Coordinates{}
	}
	return Coordinates{Longitude: p.Coordinates[0], Latitude: p.Coordinates[1]}
}

// Place is an address together with its geographic point.
type Place struct {
	Address  string   `json:"address" bson:"address"`
	Location GeoPoint `json:"location" bson:"location"`
}

// DistanceMeters calculates haversine distance between two points
func DistanceMeters(a, b Coordinates) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
