// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"fmt"
	"math"

	"gopkg.in/check.v1"
)

type deriveSuite struct{}

var _ = check.Suite(&deriveSuite{})

func (s *deriveSuite) TestBetaValues(c *check.C) {
	im := makeIntensities(
		[]string{"cg01", "cg02", "cg03"},
		[]string{"s1"},
		[]float64{9000, 0, 100},
		[]float64{1000, 0, 100})
	beta := BetaValues(im, 100)
	c.Check(beta.ProbeIDs, check.DeepEquals, im.ProbeIDs)
	c.Check(fmt.Sprintf("%.7f", beta.At(0, 0)), check.Equals, "0.8910891")
	// zero signal stays pinned at zero instead of 0/0
	c.Check(beta.At(1, 0), check.Equals, 0.0)
	c.Check(fmt.Sprintf("%.7f", beta.At(2, 0)), check.Equals, fmt.Sprintf("%.7f", 100.0/300.0))

	for _, v := range beta.Values {
		c.Check(v >= 0 && v < 1, check.Equals, true)
	}
}

func (s *deriveSuite) TestMValues(c *check.C) {
	beta := &FloatMatrix{
		ProbeIDs:  []string{"cg01", "cg02", "cg03", "cg04"},
		SampleIDs: []string{"s1"},
		Values:    []float64{0.5, 0.8, 0, 1},
	}
	m := MValues(beta)
	c.Check(m.At(0, 0), check.Equals, 0.0)
	c.Check(fmt.Sprintf("%.10f", m.At(1, 0)), check.Equals, "2.0000000000")
	// extremes are clamped to the epsilon bound, not +-Inf
	c.Check(fmt.Sprintf("%.4f", m.At(2, 0)), check.Equals, "-19.9316")
	c.Check(fmt.Sprintf("%.4f", m.At(3, 0)), check.Equals, "19.9316")
	for _, v := range m.Values {
		c.Check(math.IsInf(v, 0), check.Equals, false)
		c.Check(math.IsNaN(v), check.Equals, false)
	}
}

func (s *deriveSuite) TestBetaMRoundTrip(c *check.C) {
	beta := &FloatMatrix{
		ProbeIDs:  []string{"cg01", "cg02", "cg03"},
		SampleIDs: []string{"s1"},
		Values:    []float64{0.2, 0.5, 0.9},
	}
	m := MValues(beta)
	for i, want := range beta.Values {
		back := math.Exp2(m.Values[i]) / (1 + math.Exp2(m.Values[i]))
		c.Check(fmt.Sprintf("%.10f", back), check.Equals, fmt.Sprintf("%.10f", want))
	}
}
