// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"io/ioutil"

	"gopkg.in/check.v1"
)

type annotationSuite struct{}

var _ = check.Suite(&annotationSuite{})

func (s *annotationSuite) TestLoadManifest(c *check.C) {
	fnm := c.MkDir() + "/manifest.csv"
	err := ioutil.WriteFile(fnm, []byte(`IlmnID,Name,CHR,MAPINFO,CpG_rs,SBE_rs,UCSC_RefGene_Name
cg01_A,cg01,1,10468,,,TP53
cg02_B,cg02,chrX,57529,,,AR
cg03_C,cg03,x,11253,,,
cg04_D,cg04,7,94762,rs123,,BRAF
cg05_E,cg05,3,18848,,rs456,PIK3CA
`), 0644)
	c.Assert(err, check.IsNil)

	m, err := LoadManifest(fnm, "EPIC-8v2")
	c.Assert(err, check.IsNil)
	c.Check(m.Release, check.Equals, "EPIC-8v2")
	c.Check(m.Len(), check.Equals, 5)
	c.Check(len(m.Digest), check.Equals, 24)

	ann, ok := m.Lookup("cg01")
	c.Assert(ok, check.Equals, true)
	c.Check(ann, check.DeepEquals, ProbeAnnotation{Chromosome: "1"})

	// "chrX" and bare "x" both normalize to X
	for _, id := range []string{"cg02", "cg03"} {
		ann, ok = m.Lookup(id)
		c.Assert(ok, check.Equals, true)
		c.Check(ann.Chromosome, check.Equals, "X")
	}

	ann, _ = m.Lookup("cg04")
	c.Check(ann.SNPAtCpG, check.Equals, true)
	c.Check(ann.SNPAtFlank, check.Equals, false)
	ann, _ = m.Lookup("cg05")
	c.Check(ann.SNPAtCpG, check.Equals, false)
	c.Check(ann.SNPAtFlank, check.Equals, true)

	_, ok = m.Lookup("cg99")
	c.Check(ok, check.Equals, false)
}

func (s *annotationSuite) TestLoadManifestErrors(c *check.C) {
	dir := c.MkDir()

	fnm := dir + "/dup.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Name,CHR,MAPINFO,CpG_rs,SBE_rs\ncg01,1,1,,\ncg01,2,2,,\n"), 0644), check.IsNil)
	_, err := LoadManifest(fnm, "")
	c.Check(err, check.ErrorMatches, `.*duplicate probe "cg01"`)

	fnm = dir + "/noname.csv"
	c.Assert(ioutil.WriteFile(fnm, []byte("Name,CHR,MAPINFO,CpG_rs,SBE_rs\n,1,1,,\n"), 0644), check.IsNil)
	_, err = LoadManifest(fnm, "")
	c.Check(err, check.ErrorMatches, `.*empty Name`)
}

func (s *annotationSuite) TestLoadCrossReactive(c *check.C) {
	fnm := c.MkDir() + "/xreact.txt"
	err := ioutil.WriteFile(fnm, []byte(`IlmnID
cg10000,chr1,4000
"cg20000"
cg30000

cg40000	extra	columns
`), 0644)
	c.Assert(err, check.IsNil)

	x, err := LoadCrossReactive(fnm)
	c.Assert(err, check.IsNil)
	// 4 probe IDs plus the header token, which matches no real probe
	c.Check(x.Len(), check.Equals, 5)
	for _, id := range []string{"cg10000", "cg20000", "cg30000", "cg40000"} {
		c.Check(x.Contains(id), check.Equals, true, check.Commentf("%s", id))
	}
	c.Check(x.Contains("cg99999"), check.Equals, false)
	c.Check(len(x.Digest), check.Equals, 24)

	var nilList *CrossReactiveList
	c.Check(nilList.Contains("cg10000"), check.Equals, false)
}

func (s *annotationSuite) TestLoadCrossReactiveEmpty(c *check.C) {
	fnm := c.MkDir() + "/empty.txt"
	c.Assert(ioutil.WriteFile(fnm, []byte("\n\n"), 0644), check.IsNil)
	_, err := LoadCrossReactive(fnm)
	c.Check(err, check.ErrorMatches, `.*no probe IDs`)
}

func (s *annotationSuite) TestContentDigest(c *check.C) {
	a := contentDigest([]byte("one content"))
	b := contentDigest([]byte("one content"))
	d := contentDigest([]byte("another content"))
	c.Check(a, check.Equals, b)
	c.Check(a == d, check.Equals, false)
	c.Check(len(a), check.Equals, 24)
}

func (s *annotationSuite) TestNormChromosome(c *check.C) {
	for in, want := range map[string]string{
		"chrX": "X", "X": "X", "x": "X", "chrY": "Y",
		"1": "1", "chr21": "21", " 7 ": "7", "": "",
	} {
		c.Check(normChromosome(in), check.Equals, want, check.Commentf("%q", in))
	}
}
