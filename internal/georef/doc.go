// Package georef is the georeferencing engine: WGS-84 geodetic to ECEF
// conversion, local East-North-Up frames, similarity transforms (uniform scale,
// rotation, translation) estimated from point correspondences or loaded
// explicitly, and the 4x4 placement matrices embedded in 3D Tiles.
//
// Everything here is a pure value computation. Matrices are row-major
// internally (Mat3, Matrix4) and only become column-major at the
// PlacementMatrix serialisation boundary.
package georef
