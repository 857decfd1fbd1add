package georef

import "math"

// WGS-84 ellipsoid parameters.
const (
	WGS84SemiMajorAxis  = 6378137.0                                           // a, meters
	WGS84Flattening     = 1.0 / 298.257223563                                 // f
	WGS84EccentricitySq = 2*WGS84Flattening - WGS84Flattening*WGS84Flattening // e² = 2f - f²
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// GeodeticPoint is a WGS-84 position. Latitude and longitude are in degrees,
// height in meters above the ellipsoid. Values are used as given; callers
// keep latitude in [-90, 90] and longitude in [-180, 180].
type GeodeticPoint struct {
	LatDeg  float64 `json:"lat"`
	LonDeg  float64 `json:"lon"`
	HeightM float64 `json:"height"`
}

// ECEFPoint is an Earth-Centered, Earth-Fixed position in meters.
type ECEFPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec returns p as a Vec3.
func (p ECEFPoint) Vec() Vec3 {
	return Vec3{p.X, p.Y, p.Z}
}

// ECEFFromVec converts a Vec3 into an ECEFPoint.
func ECEFFromVec(v Vec3) ECEFPoint {
	return ECEFPoint{X: v[0], Y: v[1], Z: v[2]}
}

// primeVerticalRadius returns N, the radius of curvature in the prime
// vertical at the given latitude sine.
func primeVerticalRadius(sinLat float64) float64 {
	return WGS84SemiMajorAxis / math.Sqrt(1-WGS84EccentricitySq*sinLat*sinLat)
}

// GeodeticToECEF converts a geodetic position to ECEF coordinates.
func GeodeticToECEF(p GeodeticPoint) ECEFPoint {
	lat := p.LatDeg * degToRad
	lon := p.LonDeg * degToRad

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	n := primeVerticalRadius(sinLat)

	return ECEFPoint{
		X: (n + p.HeightM) * cosLat * cosLon,
		Y: (n + p.HeightM) * cosLat * sinLon,
		Z: (n*(1-WGS84EccentricitySq) + p.HeightM) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF coordinates back to geodetic using Bowring's
// iteration. Five passes reach sub-millimeter agreement for terrestrial
// heights.
func ECEFToGeodetic(p ECEFPoint) GeodeticPoint {
	lon := math.Atan2(p.Y, p.X)
	r := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, r*(1-WGS84EccentricitySq))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := primeVerticalRadius(sinLat)
		lat = math.Atan2(p.Z+WGS84EccentricitySq*n*sinLat, r)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := primeVerticalRadius(sinLat)

	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = r/cosLat - n
	} else {
		// On the polar axis r/cosLat is undefined; use the z form instead.
		h = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-WGS84EccentricitySq)
	}

	return GeodeticPoint{
		LatDeg:  lat * radToDeg,
		LonDeg:  lon * radToDeg,
		HeightM: h,
	}
}
