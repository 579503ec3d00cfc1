// Package features derives per-feature scaling factors and normalizes
// cohort and candidate vectors into [0,1].
//
// The factor for a feature is the maximum over the cohort and the candidate.
// Including the candidate keeps the candidate vector bounded by 1, at the cost
// of cohort values shifting whenever a candidate carries an unusually high input.
package features

import (
	"github.com/okian/admitcast/internal/domain/model"
)

// Factors holds one positive scaling factor per feature.
type Factors model.Features

// ComputeFactors returns max(candidate, max over cohort) for every feature.
func ComputeFactors(candidate model.Features, cohort []model.Features) Factors {
	f := Factors(candidate)
	for _, v := range cohort {
		for i := range f {
			if v[i] > f[i] {
				f[i] = v[i]
			}
		}
	}
	return f
}

// Normalize divides v by f feature-wise. A zero factor yields a
// *model.DegenerateNormalizationError naming the feature.
func Normalize(v model.Features, f Factors) (model.Features, error) {
	var out model.Features
	for i := range v {
		if f[i] == 0 {
			return model.Features{}, &model.DegenerateNormalizationError{Feature: model.FeatureNames[i]}
		}
		out[i] = v[i] / f[i]
	}
	return out, nil
}

// NormalizeAll normalizes every vector of the cohort, preserving order.
func NormalizeAll(cohort []model.Features, f Factors) ([]model.Features, error) {
	out := make([]model.Features, len(cohort))
	for i, v := range cohort {
		n, err := Normalize(v, f)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
