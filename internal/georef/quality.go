package georef

import "fmt"

// FitQuality represents the assessed quality of a correspondence fit.
type FitQuality string

const (
	// FitQualityExcellent indicates RMSE < 0.05 target units
	FitQualityExcellent FitQuality = "excellent"
	// FitQualityGood indicates RMSE 0.05-0.15
	FitQualityGood FitQuality = "good"
	// FitQualityFair indicates RMSE 0.15-0.30; usable but worth more control points
	FitQualityFair FitQuality = "fair"
	// FitQualityPoor indicates RMSE > 0.30
	FitQualityPoor FitQuality = "poor"
	// FitQualityUnknown indicates RMSE not computed
	FitQualityUnknown FitQuality = "unknown"
)

// Fit RMSE thresholds, in the units of the target points (meters for ENU or
// ECEF targets).
const (
	RMSEThresholdExcellent = 0.05
	RMSEThresholdGood      = 0.15
	RMSEThresholdFair      = 0.30
)

// GradeRMSE maps a residual RMSE to a FitQuality. Negative or NaN values are
// treated as not computed.
func GradeRMSE(rmse float64) FitQuality {
	switch {
	case rmse < 0 || rmse != rmse:
		return FitQualityUnknown
	case rmse < RMSEThresholdExcellent:
		return FitQualityExcellent
	case rmse < RMSEThresholdGood:
		return FitQualityGood
	case rmse < RMSEThresholdFair:
		return FitQualityFair
	default:
		return FitQualityPoor
	}
}

// Usable reports whether a fit of this quality should be used to place a
// model. Poor fits are rejected; unknown is allowed with caution.
func (q FitQuality) Usable() bool {
	return q != FitQualityPoor
}

// String returns a human-readable description of the fit quality.
func (q FitQuality) String() string {
	switch q {
	case FitQualityExcellent:
		return "excellent (RMSE < 0.05)"
	case FitQualityGood:
		return "good (RMSE 0.05-0.15)"
	case FitQualityFair:
		return "fair (RMSE 0.15-0.30)"
	case FitQualityPoor:
		return "poor (RMSE > 0.30)"
	case FitQualityUnknown:
		return "unknown (RMSE not computed)"
	default:
		return string(q)
	}
}

// fitQualityRank orders the grades; unknown ranks below poor.
var fitQualityRank = map[FitQuality]int{
	FitQualityUnknown:   0,
	FitQualityPoor:      1,
	FitQualityFair:      2,
	FitQualityGood:      3,
	FitQualityExcellent: 4,
}

// ParseFitQuality parses a grade name such as "good".
func ParseFitQuality(s string) (FitQuality, error) {
	q := FitQuality(s)
	if _, ok := fitQualityRank[q]; !ok {
		return "", fmt.Errorf("%w: unknown fit quality %q (want excellent, good, fair, poor or unknown)", ErrValidation, s)
	}
	return q, nil
}

// AtLeast reports whether q is graded min or better.
func (q FitQuality) AtLeast(min FitQuality) bool {
	return fitQualityRank[q] >= fitQualityRank[min]
}
