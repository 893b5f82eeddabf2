// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"gopkg.in/check.v1"
)

type matrixSuite struct{}

var _ = check.Suite(&matrixSuite{})

func (s *matrixSuite) TestKeepSamples(c *check.C) {
	im := makeIntensities(
		[]string{"cg01", "cg02", "cg03"},
		[]string{"s1", "s2", "s3", "s4"},
		[]float64{
			10, 11, 12, 13,
			20, 21, 22, 23,
			30, 31, 32, 33,
		},
		[]float64{
			110, 111, 112, 113,
			120, 121, 122, 123,
			130, 131, 132, 133,
		})
	c.Assert(im.Check(), check.IsNil)

	out := im.KeepSamples([]bool{true, false, true, false})
	c.Check(out.ProbeIDs, check.DeepEquals, []string{"cg01", "cg02", "cg03"})
	c.Check(out.SampleIDs, check.DeepEquals, []string{"s1", "s3"})
	c.Check(out.Meth, check.DeepEquals, []float64{10, 12, 20, 22, 30, 32})
	c.Check(out.Unmeth, check.DeepEquals, []float64{110, 112, 120, 122, 130, 132})
	c.Assert(out.Check(), check.IsNil)

	// source is untouched
	c.Check(im.Meth[1], check.Equals, 11.0)
	c.Check(len(im.SampleIDs), check.Equals, 4)
}

func (s *matrixSuite) TestKeepProbes(c *check.C) {
	im := makeIntensities(
		[]string{"cg01", "cg02", "cg03"},
		[]string{"s1", "s2"},
		[]float64{10, 11, 20, 21, 30, 31},
		[]float64{50, 51, 60, 61, 70, 71})
	out := im.KeepProbes([]bool{false, true, true})
	c.Check(out.ProbeIDs, check.DeepEquals, []string{"cg02", "cg03"})
	c.Check(out.SampleIDs, check.DeepEquals, []string{"s1", "s2"})
	c.Check(out.Meth, check.DeepEquals, []float64{20, 21, 30, 31})
	c.Check(out.Unmeth, check.DeepEquals, []float64{60, 61, 70, 71})
	c.Assert(out.Check(), check.IsNil)
}

func (s *matrixSuite) TestCheck(c *check.C) {
	im := makeIntensities([]string{"cg01"}, []string{"s1", "s2"}, []float64{1, 2}, []float64{3})
	c.Check(im.Check(), check.ErrorMatches, `intensity matrix 1 probes x 2 samples: .*`)
}

func (s *matrixSuite) TestFloatMatrix(c *check.C) {
	m := NewFloatMatrix([]string{"cg01", "cg02"}, []string{"s1", "s2", "s3"})
	m.Set(1, 2, 0.25)
	c.Check(m.At(1, 2), check.Equals, 0.25)
	c.Check(m.Values[5], check.Equals, 0.25)

	col := m.Col(nil, 2)
	c.Check(col, check.DeepEquals, []float64{0, 0.25})

	kept := m.KeepSamples([]bool{false, false, true})
	c.Check(kept.SampleIDs, check.DeepEquals, []string{"s3"})
	c.Check(kept.Values, check.DeepEquals, []float64{0, 0.25})

	kept = kept.KeepProbes([]bool{false, true})
	c.Check(kept.ProbeIDs, check.DeepEquals, []string{"cg02"})
	c.Check(kept.Values, check.DeepEquals, []float64{0.25})
}

func (s *matrixSuite) TestSameIDs(c *check.C) {
	c.Check(sameIDs("x", []string{"a", "b"}, []string{"a", "b"}), check.IsNil)

	err := sameIDs("sheet vs. matrix", []string{"a", "b"}, []string{"a", "b", "c"})
	c.Assert(err, check.NotNil)
	c.Check(err, check.FitsTypeOf, &IndexMismatchError{})
	c.Check(err, check.ErrorMatches, `index mismatch \(sheet vs. matrix\): 2 vs 3 entries`)

	err = sameIDs("sheet vs. matrix", []string{"a", "b"}, []string{"a", "c"})
	c.Check(err, check.ErrorMatches, `index mismatch \(sheet vs. matrix\): entry 1: "b" vs "c"`)
}
