// Package geo maps geographic coordinates onto the board's square grid
// using a spherical Web Mercator projection.
package geo

import "math"

const (
	// EarthRadius is the spherical Mercator radius in meters.
	EarthRadius = 6378137.0

	// MaxLatitude is the Mercator-valid latitude bound. Project clamps
	// to it so every finite input maps to a finite plane point.
	MaxLatitude = 85.05112878
)

// CellKey identifies one grid cell. I grows eastward, J northward.
type CellKey struct {
	I int64 `json:"i"`
	J int64 `json:"j"`
}

func clampLat(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// Project converts degrees to planar meters.
func Project(lon, lat float64) (x, y float64) {
	lat = clampLat(lat)
	x = EarthRadius * lon * math.Pi / 180
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// Unproject is the exact inverse of Project.
func Unproject(x, y float64) (lon, lat float64) {
	lon = x / EarthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// NormalizeIndex snaps a wire index to the grid: floor toward negative
// infinity, same rule as CellOf. v must be finite.
func NormalizeIndex(v float64) int64 {
	return int64(math.Floor(v))
}

// CellOf returns the cell containing the point. gridMeters > 0.
func CellOf(lon, lat, gridMeters float64) CellKey {
	x, y := Project(lon, lat)
	return CellKey{
		I: int64(math.Floor(x / gridMeters)),
		J: int64(math.Floor(y / gridMeters)),
	}
}

// CellOrigin returns the south-west corner of a cell in degrees.
func CellOrigin(k CellKey, gridMeters float64) (lon, lat float64) {
	return Unproject(float64(k.I)*gridMeters, float64(k.J)*gridMeters)
}
