// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"encoding/json"
	"io"
	"os"
)

// A SampleQC summarizes one sample's detection QC.
type SampleQC struct {
	Name     string
	Group    string `json:",omitempty"`
	Plate    string `json:",omitempty"`
	MeanDetP float64
	Pass     bool
}

// A QCReport is the audit record written next to the processed
// matrices: the thresholds used, per-sample detection QC, per-stage
// probe exclusion tallies, and content digests of the annotation
// inputs that shaped the result.
type QCReport struct {
	SampleDetPMax float64
	ProbeDetPMax  float64
	BetaOffset    float64

	Samples       []SampleQC
	FailedSamples []string `json:",omitempty"`

	ProbesTotal            int
	ProbesRetained         int            `json:",omitempty"`
	ProbesFailingDetection int            `json:",omitempty"`
	ProbeStages            []FilterResult `json:",omitempty"`

	ManifestRelease     string `json:",omitempty"`
	ManifestDigest      string `json:",omitempty"`
	CrossReactiveDigest string `json:",omitempty"`

	CovariateJoin *JoinReport `json:",omitempty"`
}

func (r *QCReport) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(r)
}

func (r *QCReport) WriteFile(fnm string) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	err = r.Write(f)
	if err != nil {
		return err
	}
	return f.Close()
}
