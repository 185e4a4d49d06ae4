package operator

import (
	"fmt"
	"math"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// earthRadiusKm is the WGS-84 mean earth radius.
const earthRadiusKm = 6371.0088

func registerGeo(r *Registry) {
	register(r, "within_radius", applyWithinRadius, validateWithinRadius)
	register(r, "in_polygon", applyInPolygon, validateInPolygon)
}

type point struct {
	lat, lon float64
}

// asPoint accepts {lat,lon} or [lat,lon].
func asPoint(v any) (point, bool) {
	if m, ok := toMap(v); ok {
		lat, lok := toFloat(m["lat"])
		lon, nok := toFloat(m["lon"])
		if lok && nok {
			return point{lat, lon}, true
		}
		return point{}, false
	}
	if pair, ok := toFloatList(v); ok && len(pair) == 2 {
		return point{pair[0], pair[1]}, true
	}
	return point{}, false
}

// haversineKm is the great-circle distance between two points in km.
func haversineKm(a, b point) float64 {
	lat1 := a.lat * math.Pi / 180
	lat2 := b.lat * math.Pi / 180
	dLat := (b.lat - a.lat) * math.Pi / 180
	dLon := (b.lon - a.lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineKm exposes the great-circle distance for callers and tests.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineKm(point{lat1, lon1}, point{lat2, lon2})
}

func radiusArgs(value any) (point, float64, bool) {
	m, ok := toMap(value)
	if !ok {
		return point{}, 0, false
	}
	radius, ok := toFloat(m["radius_km"])
	if !ok {
		if radius, ok = toFloat(m["radius"]); !ok {
			return point{}, 0, false
		}
	}
	if center, ok := asPoint(m["center"]); ok {
		return center, radius, true
	}
	if center, ok := asPoint(m); ok {
		return center, radius, true
	}
	return point{}, 0, false
}

func applyWithinRadius(field, value any, _ *contracts.Context) bool {
	p, ok := asPoint(field)
	if !ok {
		return false
	}
	center, radius, ok := radiusArgs(value)
	if !ok || radius < 0 {
		return false
	}
	return haversineKm(p, center) <= radius
}

func validateWithinRadius(value any) error {
	if _, _, ok := radiusArgs(value); !ok {
		return fmt.Errorf("value must carry a center ({lat,lon} or [lat,lon]) and radius_km")
	}
	return nil
}

func polygonArgs(value any) ([]point, bool) {
	raw := value
	if m, ok := toMap(value); ok {
		raw = m["polygon"]
	}
	list, ok := toList(raw)
	if !ok || len(list) < 3 {
		return nil, false
	}
	poly := make([]point, len(list))
	for i, e := range list {
		p, ok := asPoint(e)
		if !ok {
			return nil, false
		}
		poly[i] = p
	}
	return poly, true
}

// applyInPolygon ray-casts against the polygon edges; boundary points are
// included.
func applyInPolygon(field, value any, _ *contracts.Context) bool {
	p, ok := asPoint(field)
	if !ok {
		return false
	}
	poly, ok := polygonArgs(value)
	if !ok {
		return false
	}
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[j], poly[i]
		if onSegment(p, a, b) {
			return true
		}
		if (a.lat > p.lat) != (b.lat > p.lat) {
			x := (b.lon-a.lon)*(p.lat-a.lat)/(b.lat-a.lat) + a.lon
			if p.lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b point) bool {
	cross := (b.lat-a.lat)*(p.lon-a.lon) - (b.lon-a.lon)*(p.lat-a.lat)
	if math.Abs(cross) > 1e-12 {
		return false
	}
	return p.lat >= math.Min(a.lat, b.lat)-1e-12 && p.lat <= math.Max(a.lat, b.lat)+1e-12 &&
		p.lon >= math.Min(a.lon, b.lon)-1e-12 && p.lon <= math.Max(a.lon, b.lon)+1e-12
}

func validateInPolygon(value any) error {
	if _, ok := polygonArgs(value); !ok {
		return fmt.Errorf("value must be a polygon of at least 3 {lat,lon} points")
	}
	return nil
}
