// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import "math"

const (
	// DefaultBetaOffset is the stabilizing constant added to total
	// intensity in the beta denominator, keeping near-zero-signal
	// probes from exploding to 0/0.
	DefaultBetaOffset = 100

	// logitEpsilon bounds beta away from 0 and 1 before the logit
	// transform, so M-values stay finite.
	logitEpsilon = 1e-6
)

// BetaValues computes the methylation fraction
// meth/(meth+unmeth+offset) for every cell. Beta is bounded in [0,1)
// for non-negative signal and offset > 0.
func BetaValues(im *IntensityMatrix, offset float64) *FloatMatrix {
	beta := NewFloatMatrix(im.ProbeIDs, im.SampleIDs)
	for i, m := range im.Meth {
		beta.Values[i] = m / (m + im.Unmeth[i] + offset)
	}
	return beta
}

// MValues maps beta values onto the unbounded logit scale:
// log2(beta/(1-beta)), with both numerator and denominator clamped to
// at least logitEpsilon. Homoscedastic M-values suit linear modeling;
// beta stays the interpretable scale.
func MValues(beta *FloatMatrix) *FloatMatrix {
	m := NewFloatMatrix(beta.ProbeIDs, beta.SampleIDs)
	for i, b := range beta.Values {
		num := b
		if num < logitEpsilon {
			num = logitEpsilon
		}
		den := 1 - b
		if den < logitEpsilon {
			den = logitEpsilon
		}
		m.Values[i] = math.Log2(num / den)
	}
	return m
}
