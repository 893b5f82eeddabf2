// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"io/ioutil"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type exportSuite struct{}

var _ = check.Suite(&exportSuite{})

func (s *exportSuite) TestSampleTableRoundTrip(c *check.C) {
	dir := c.MkDir()
	samples := []sampleInfo{
		{name: "s1", group: "case", plate: "p1", meanDetP: 0.0125, qcPass: true, pcaComponents: []float64{0.125, -0.5}},
		{name: "s2", group: "control", plate: "p1", meanDetP: 0.5, qcPass: false, pcaComponents: []float64{0, 0}},
		{name: "s3", group: "case", plate: "p2", meanDetP: 0.03, qcPass: true, pcaComponents: []float64{-2.25, 1.75}},
	}
	c.Assert(writeSampleTable(samples, dir), check.IsNil)

	loaded, err := loadSampleTable(dir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(loaded, check.DeepEquals, samples)

	c.Check(retainedSamples(loaded), check.HasLen, 2)
	c.Check(retainedSamples(loaded)[1].name, check.Equals, "s3")
}

func (s *exportSuite) TestSampleTableNoPCA(c *check.C) {
	dir := c.MkDir()
	samples := []sampleInfo{
		{name: "s1", group: "g", plate: "p", meanDetP: 0.01, qcPass: true},
	}
	c.Assert(writeSampleTable(samples, dir), check.IsNil)
	buf, err := ioutil.ReadFile(dir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "Index,SampleID,Group,Plate,MeanDetP,QCPass\n0,s1,g,p,0.01,1\n")

	loaded, err := loadSampleTable(dir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(loaded, check.DeepEquals, samples)
}

func (s *exportSuite) TestLoadSampleTableErrors(c *check.C) {
	dir := c.MkDir()

	fnm := dir + "/bad-header.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("a,b,c,d,e,f\n"), 0644), check.IsNil)
	_, err := loadSampleTable(fnm)
	c.Check(err, check.ErrorMatches, `header does not look right: .*`)

	fnm = dir + "/out-of-order.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Index,SampleID,Group,Plate,MeanDetP,QCPass\n1,s1,g,p,0.5,1\n"), 0644), check.IsNil)
	_, err = loadSampleTable(fnm)
	c.Check(err, check.ErrorMatches, `.*index 1 out of order`)

	fnm = dir + "/short.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Index,SampleID,Group\n"), 0644), check.IsNil)
	_, err = loadSampleTable(fnm)
	c.Check(err, check.ErrorMatches, `3 fields < 6 in .*`)
}

func (s *exportSuite) TestNumpyRoundTrip(c *check.C) {
	fnm := c.MkDir() + "/m.npy"
	m := &FloatMatrix{
		ProbeIDs:  []string{"cg01", "cg02"},
		SampleIDs: []string{"s1", "s2", "s3"},
		Values:    []float64{1, 2, 3, 4, 5, 6},
	}
	c.Assert(writeMatrixNumpy(fnm, m), check.IsNil)

	npr, err := gonpy.NewFileReader(fnm)
	c.Assert(err, check.IsNil)
	c.Check(npr.Shape, check.DeepEquals, []int{2, 3})
	data, err := npr.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(data, check.DeepEquals, m.Values)
}

func (s *exportSuite) TestProbeListRoundTrip(c *check.C) {
	fnm := c.MkDir() + "/probes.txt"
	ids := []string{"cg01", "cg02", "cg03"}
	c.Assert(writeProbeList(fnm, ids), check.IsNil)

	loaded, err := loadProbeList(fnm)
	c.Assert(err, check.IsNil)
	c.Check(loaded, check.DeepEquals, ids)

	c.Assert(ioutil.WriteFile(fnm, []byte("\n"), 0644), check.IsNil)
	_, err = loadProbeList(fnm)
	c.Check(err, check.ErrorMatches, `.*no probe IDs`)
}
