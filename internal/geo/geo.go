// Package geo provides great-circle distance helpers for latitude/longitude pairs.
package geo

import "math"

// EarthRadiusM is the mean Earth radius used for all distance calculations.
const EarthRadiusM = 6371000.0

// HaversineM returns the great-circle distance in metres between two points
// given in decimal degrees.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// HaversineKm is HaversineM expressed in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineM(lat1, lon1, lat2, lon2) / 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
