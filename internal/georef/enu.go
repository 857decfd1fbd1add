package georef

import "math"

// ENUToECEFRotation returns the rotation taking East-North-Up components at
// (latDeg, lonDeg) to ECEF components. Its columns are the east, north and up
// unit vectors expressed in ECEF.
//
// At the geodetic poles the east bearing is not defined: the matrix is still
// computed from lonDeg but has no geographic meaning there. Reference points
// should stay away from the poles.
func ENUToECEFRotation(latDeg, lonDeg float64) Mat3 {
	lat := latDeg * degToRad
	lon := lonDeg * degToRad

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// columns: east, north, up
	return Mat3{
		{-sinLon, -sinLat * cosLon, cosLat * cosLon},
		{cosLon, -sinLat * sinLon, cosLat * sinLon},
		{0, cosLat, sinLat},
	}
}

// ENUFrame is a local tangent-plane frame anchored at Origin.
type ENUFrame struct {
	Origin   GeodeticPoint
	rotation Mat3
	origin   Vec3
}

// NewENUFrame builds the ENU frame at origin.
func NewENUFrame(origin GeodeticPoint) ENUFrame {
	return ENUFrame{
		Origin:   origin,
		rotation: ENUToECEFRotation(origin.LatDeg, origin.LonDeg),
		origin:   GeodeticToECEF(origin).Vec(),
	}
}

// Rotation returns the ENU-to-ECEF rotation of the frame.
func (f ENUFrame) Rotation() Mat3 {
	return f.rotation
}

// ToECEF converts local ENU meters to ECEF.
func (f ENUFrame) ToECEF(enu Vec3) ECEFPoint {
	return ECEFFromVec(f.rotation.MulVec(enu).Add(f.origin))
}

// FromECEF converts an ECEF position to local ENU meters.
func (f ENUFrame) FromECEF(p ECEFPoint) Vec3 {
	return f.rotation.Transpose().MulVec(p.Vec().Sub(f.origin))
}

// FromGeodetic converts a geodetic position to local ENU meters.
func (f ENUFrame) FromGeodetic(p GeodeticPoint) Vec3 {
	return f.FromECEF(GeodeticToECEF(p))
}

// Transform returns the ENU-to-ECEF similarity (unit scale) of the frame.
func (f ENUFrame) Transform() SimilarityTransform {
	return SimilarityTransform{
		Scale:       1,
		Rotation:    f.rotation,
		Translation: f.origin,
	}
}
