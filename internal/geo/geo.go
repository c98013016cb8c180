package geo

import (
	"math"

	"github.com/BearBump/WashTrack/internal/models"
)

const (
	EarthRadiusMeters = 6371000.0

	DefaultAverageSpeedKmh = 30.0
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance in meters (Haversine).
func Distance(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// EffectiveSpeed picks the reported speed when positive, otherwise the average (km/h) in m/s.
func EffectiveSpeed(pos models.Position, averageSpeedKmh float64) float64 {
	if pos.Speed != nil && *pos.Speed > 0 {
		return *pos.Speed
	}
	return averageSpeedKmh * 1000 / 3600
}

// CalculateETA returns whole minutes from pos to dest. Never negative.
func CalculateETA(pos models.Position, dest Point, averageSpeedKmh float64) int {
	speed := EffectiveSpeed(pos, averageSpeedKmh)
	if speed <= 0 || math.IsNaN(speed) {
		return 0
	}
	d := Distance(PointOf(pos), dest)
	eta := math.Round(d / speed / 60)
	if eta < 0 || math.IsNaN(eta) || math.IsInf(eta, 0) {
		return 0
	}
	return int(eta)
}

func PointOf(pos models.Position) Point {
	return Point{Lat: pos.Latitude, Lng: pos.Longitude}
}

// EaseOutCubic maps linear progress to 1-(1-p)^3, p clamped to [0,1].
func EaseOutCubic(p float64) float64 {
	p = Clamp01(p)
	return 1 - math.Pow(1-p, 3)
}

func Clamp01(p float64) float64 {
	switch {
	case p < 0 || math.IsNaN(p):
		return 0
	case p > 1:
		return 1
	}
	return p
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Interpolate returns a new position between from and to at eased fraction t.
// Heading, speed and timestamp come from the target sample.
func Interpolate(from, to models.Position, t float64) models.Position {
	switch {
	case t <= 0:
		t = 0
	case t >= 1:
		return to
	}
	return models.Position{
		Latitude:  Lerp(from.Latitude, to.Latitude, t),
		Longitude: Lerp(from.Longitude, to.Longitude, t),
		Heading:   to.Heading,
		Speed:     to.Speed,
		Timestamp: to.Timestamp,
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
