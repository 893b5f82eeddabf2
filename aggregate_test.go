// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bytes"
	"io/ioutil"

	"gopkg.in/check.v1"
)

type aggregateSuite struct{}

var _ = check.Suite(&aggregateSuite{})

func (s *aggregateSuite) TestLoadCovariates(c *check.C) {
	fnm := c.MkDir() + "/covariates.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte(`age,Sample_Name,smoker
34,s1,no
41,s2,yes
`), 0644), check.IsNil)
	ct, err := LoadCovariates(fnm, "Sample_Name")
	c.Assert(err, check.IsNil)
	c.Check(ct.Columns, check.DeepEquals, []string{"age", "smoker"})
	c.Check(ct.Len(), check.Equals, 2)
	row, ok := ct.Lookup("s1")
	c.Check(ok, check.Equals, true)
	c.Check(row, check.DeepEquals, []string{"34", "no"})
	row, ok = ct.Lookup("s2")
	c.Check(ok, check.Equals, true)
	c.Check(row, check.DeepEquals, []string{"41", "yes"})
	_, ok = ct.Lookup("sZ")
	c.Check(ok, check.Equals, false)
}

func (s *aggregateSuite) TestLoadCovariatesTabs(c *check.C) {
	fnm := c.MkDir() + "/covariates.tsv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Sample_Name\tage\ns1\t34\ns2\t41\n"), 0644), check.IsNil)
	ct, err := LoadCovariates(fnm, "")
	c.Assert(err, check.IsNil)
	c.Check(ct.Columns, check.DeepEquals, []string{"age"})
	row, ok := ct.Lookup("s2")
	c.Check(ok, check.Equals, true)
	c.Check(row, check.DeepEquals, []string{"41"})
}

func (s *aggregateSuite) TestLoadCovariatesErrors(c *check.C) {
	dir := c.MkDir()

	fnm := dir + "/dup.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Sample_Name,age\ns1,34\ns1,41\n"), 0644), check.IsNil)
	_, err := LoadCovariates(fnm, "")
	c.Check(err, check.ErrorMatches, `.*line 3: duplicate sample ID "s1"`)

	fnm = dir + "/empty-id.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Sample_Name,age\n,34\n"), 0644), check.IsNil)
	_, err = LoadCovariates(fnm, "")
	c.Check(err, check.ErrorMatches, `.*line 2: empty sample ID`)

	fnm = dir + "/no-column.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Sample_Name,age\ns1,34\n"), 0644), check.IsNil)
	_, err = LoadCovariates(fnm, "Banana")
	c.Check(err, check.ErrorMatches, `.*no column named "Banana" in header .*`)
}

func (s *aggregateSuite) TestJoin(c *check.C) {
	ct := &CovariateTable{
		Columns: []string{"age"},
		rows: map[string][]string{
			"s1": {"34"},
			"s3": {"58"},
			"sX": {"99"},
		},
	}
	values, report := ct.Join([]string{"s1", "s2", "s3"})
	c.Check(values, check.DeepEquals, [][]string{{"34"}, nil, {"58"}})
	c.Check(report.MissingMetadata, check.DeepEquals, []string{"s2"})
	c.Check(report.UnmatchedRows, check.DeepEquals, []string{"sX"})
	err := report.Mismatch()
	c.Assert(err, check.NotNil)
	c.Check(err, check.FitsTypeOf, &MetadataJoinMismatchError{})
	c.Check(err, check.ErrorMatches, `covariate join mismatch: 1 samples have no covariate row: s2; 1 covariate rows match no sample: sX`)

	values, report = ct.Join([]string{"s1", "s3", "sX"})
	c.Check(values, check.HasLen, 3)
	c.Check(report.Mismatch(), check.IsNil)
}

func (s *aggregateSuite) TestMeanBeta(c *check.C) {
	beta := &FloatMatrix{
		ProbeIDs:  []string{"cg01", "cg02"},
		SampleIDs: []string{"s1", "s2"},
		Values:    []float64{0.25, 0.5, 0.75, 1.0},
	}
	c.Check(MeanBeta(beta), check.DeepEquals, []float64{0.5, 0.75})
}

func (s *aggregateSuite) TestWriteCohortTable(c *check.C) {
	samples := []sampleInfo{
		{name: "s1", group: "case", plate: "p1", qcPass: true},
		{name: "s2", group: "control", plate: "p1", qcPass: true},
	}
	var buf bytes.Buffer
	err := writeCohortTable(&buf, samples, []float64{0.5, 0.75}, [][]string{{"34", "no"}, nil}, []string{"age", "smoker"})
	c.Assert(err, check.IsNil)
	c.Check(buf.String(), check.Equals, `SampleID,Group,Plate,MeanBeta,age,smoker
s1,case,p1,0.5,34,no
s2,control,p1,0.75,,
`)
}

func (s *aggregateSuite) TestToRowMajor(c *check.C) {
	data := []float64{1, 4, 2, 5, 3, 6}
	c.Check(toRowMajor(data, 2, 3), check.DeepEquals, []float64{1, 2, 3, 4, 5, 6})
}

func (s *aggregateSuite) TestAggregateFlagErrors(c *check.C) {
	var stdout, stderr bytes.Buffer
	exited := (&aggregator{}).RunCommand("metharray aggregate", nil, &bytes.Buffer{}, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?ms).*cannot continue without -covariates.*`)

	stderr.Reset()
	exited = (&aggregator{}).RunCommand("metharray aggregate", []string{"-covariates", "x.csv", "positional"}, &bytes.Buffer{}, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?ms).*errant command line arguments.*`)
}
