package georef

// Example inputs used to exercise a tiles pipeline before real control points
// exist.

// IdentityDescriptor returns the descriptor of the identity transform, for
// models already in a local metric frame.
func IdentityDescriptor() TransformDescriptor {
	return DescriptorFromTransform(IdentityTransform())
}

// ENUDescriptor returns a transform that scales a model assumed to be centred
// at the origin and in meters, and lifts it by heightM. The rotation into ECEF
// is left to the tileset placement matrix.
func ENUDescriptor(latDeg, lonDeg, heightM, scale float64) TransformDescriptor {
	t := IdentityTransform()
	t.Scale = scale
	t.Translation = Vec3{0, 0, heightM}

	d := DescriptorFromTransform(t)
	ecef := GeodeticToECEF(GeodeticPoint{LatDeg: latDeg, LonDeg: lonDeg, HeightM: heightM})
	d.ReferencePoint = &ReferencePoint{
		Lat:    latDeg,
		Lon:    lonDeg,
		Height: heightM,
		ECEF:   []float64{ecef.X, ecef.Y, ecef.Z},
		Note:   "ENU origin for the transformed model",
	}
	return d
}

// ExampleCorrespondences returns four points forming a square with a vertical
// post in model space, and the same points lifted by heightM in ENU.
func ExampleCorrespondences(latDeg, lonDeg, heightM float64) CorrespondenceDescriptor {
	return CorrespondenceDescriptor{
		Nerf: [][]float64{
			{0, 0, 0},
			{10, 0, 0},
			{0, 10, 0},
			{0, 0, 5},
		},
		World: [][]float64{
			{0, 0, heightM},
			{10, 0, heightM},
			{0, 10, heightM},
			{0, 0, heightM + 5},
		},
		ReferencePoint: &ReferencePoint{
			Lat:    latDeg,
			Lon:    lonDeg,
			Height: heightM,
			Note:   "world points are ENU meters relative to this reference",
		},
	}
}
