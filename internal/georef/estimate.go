package georef

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinCorrespondences is the smallest correspondence set EstimateSimilarity
// accepts.
const MinCorrespondences = 3

const (
	// spreadEpsilon bounds the mean squared spread of the centred local set,
	// relative to max(1, |centroid|²), below which the set is treated as a
	// single point.
	spreadEpsilon = 1e-20
	// collinearRatio bounds σ₂/σ₁ of the cross-covariance below which the
	// rotation about the common line is undetermined.
	collinearRatio = 1e-10
)

// Fit is the result of a correspondence-based similarity estimate.
type Fit struct {
	Transform SimilarityTransform
	// Residuals holds target_i - T(local_i) for every pair, in input order.
	Residuals []Vec3
	RMSE      float64
	Quality   FitQuality
	// Reflected is true when the raw SVD solution was a reflection and the
	// last right-singular vector was negated to obtain a proper rotation.
	Reflected      bool
	SingularValues Vec3
}

// MaxResidual returns the length of the largest residual.
func (f Fit) MaxResidual() float64 {
	worst := 0.0
	for _, r := range f.Residuals {
		if n := r.Norm(); n > worst {
			worst = n
		}
	}
	return worst
}

// EstimateSimilarity fits the similarity transform T minimising
// Σ|T(local_i) - target_i|² with the closed-form SVD method of Umeyama.
// The result depends only on the set of pairs, not their order.
func EstimateSimilarity(local, target []Vec3) (Fit, error) {
	if len(local) != len(target) {
		return Fit{}, fmt.Errorf("%w: correspondence sets differ in length: %d local, %d target", ErrValidation, len(local), len(target))
	}
	n := len(local)
	if n < MinCorrespondences {
		return Fit{}, fmt.Errorf("%w: need at least %d point correspondences, got %d", ErrInsufficientData, MinCorrespondences, n)
	}
	for i := 0; i < n; i++ {
		if !local[i].IsFinite() || !target[i].IsFinite() {
			return Fit{}, fmt.Errorf("%w: correspondence %d has non-finite coordinates", ErrValidation, i)
		}
	}

	pBar := centroid(local)
	qBar := centroid(target)

	pc := mat.NewDense(n, 3, nil)
	qc := mat.NewDense(n, 3, nil)
	varP := 0.0
	for i := 0; i < n; i++ {
		dp := local[i].Sub(pBar)
		dq := target[i].Sub(qBar)
		pc.SetRow(i, dp[:])
		qc.SetRow(i, dq[:])
		varP += dp.Dot(dp)
	}

	if varP/float64(n) <= spreadEpsilon*math.Max(1, pBar.Dot(pBar)) {
		return Fit{}, fmt.Errorf("%w: local points have no spread (all coincide)", ErrDegenerateGeometry)
	}

	// Cross-covariance H = Pcᵀ·Qc.
	var h mat.Dense
	h.Mul(pc.T(), qc)

	var svd mat.SVD
	if ok := svd.Factorize(&h, mat.SVDFull); !ok {
		return Fit{}, fmt.Errorf("%w: SVD of cross-covariance did not converge", ErrDegenerateGeometry)
	}
	sigma := svd.Values(nil)
	if sigma[0] <= 0 {
		return Fit{}, fmt.Errorf("%w: target points have no spread", ErrDegenerateGeometry)
	}
	if sigma[1] <= collinearRatio*sigma[0] {
		return Fit{}, fmt.Errorf("%w: correspondences are collinear, rotation is undetermined", ErrDegenerateGeometry)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rot, reflected := properRotation(&u, &v)

	scale := (sigma[0] + sigma[1] + sigma[2]) / varP
	if !isFinite(scale) || scale <= 0 {
		return Fit{}, fmt.Errorf("%w: estimated scale %v is not usable", ErrDegenerateGeometry, scale)
	}

	st := SimilarityTransform{
		Scale:       scale,
		Rotation:    rot,
		Translation: qBar.Sub(rot.MulVec(pBar).Scale(scale)),
	}

	residuals := make([]Vec3, n)
	sumSq := 0.0
	for i := 0; i < n; i++ {
		r := target[i].Sub(st.Apply(local[i]))
		residuals[i] = r
		sumSq += r.Dot(r)
	}
	rmse := math.Sqrt(sumSq / float64(n))

	return Fit{
		Transform:      st,
		Residuals:      residuals,
		RMSE:           rmse,
		Quality:        GradeRMSE(rmse),
		Reflected:      reflected,
		SingularValues: Vec3{sigma[0], sigma[1], sigma[2]},
	}, nil
}

// properRotation forms R = V·Uᵀ. When det(R) < 0 the solution is a
// reflection; negating the last column of V (the right-singular vector of the
// smallest singular value) and recomputing yields the nearest proper
// rotation. v is modified in that case.
func properRotation(u, v *mat.Dense) (Mat3, bool) {
	var r mat.Dense
	r.Mul(v, u.T())

	reflected := false
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(v, u.T())
		reflected = true
	}

	return MatFromR3(&r), reflected
}

func centroid(pts []Vec3) Vec3 {
	var sum Vec3
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(pts)))
}
