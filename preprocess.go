// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultSampleDetPMax is the highest mean detection p-value a
	// sample may have and still enter the cohort.
	DefaultSampleDetPMax = 0.05

	// DefaultProbeDetPMax is the per-cell detection p-value a probe
	// must stay strictly below, in every retained sample, to be
	// kept.
	DefaultProbeDetPMax = 0.01
)

// Thresholds collects the tunable QC cutoffs. The zero value means
// "use defaults".
type Thresholds struct {
	SampleDetPMax float64
	ProbeDetPMax  float64
	BetaOffset    float64
}

func (t *Thresholds) Flags(flags *flag.FlagSet) {
	flags.Float64Var(&t.SampleDetPMax, "sample-detp-max", DefaultSampleDetPMax, "drop samples whose mean detection p-value exceeds `P`")
	flags.Float64Var(&t.ProbeDetPMax, "probe-detp-max", DefaultProbeDetPMax, "drop probes whose detection p-value reaches `P` in any retained sample")
	flags.Float64Var(&t.BetaOffset, "beta-offset", DefaultBetaOffset, "stabilizing `offset` added to total intensity in the beta denominator")
}

func (t *Thresholds) setDefaults() {
	if t.SampleDetPMax == 0 {
		t.SampleDetPMax = DefaultSampleDetPMax
	}
	if t.ProbeDetPMax == 0 {
		t.ProbeDetPMax = DefaultProbeDetPMax
	}
	if t.BetaOffset == 0 {
		t.BetaOffset = DefaultBetaOffset
	}
}

// A Pipeline turns a raw intensity library into analysis-ready beta
// and M-value matrices: detection QC, sample exclusion, quantile
// normalization, probe exclusion, derivation.
type Pipeline struct {
	Thresholds    Thresholds
	Manifest      *Manifest
	CrossReactive *CrossReactiveList
}

// A PipelineResult carries the matrices for the retained cohort. All
// matrices share identical probe and sample ordering with Samples,
// except DetP and RawBeta, which keep the full pre-exclusion probe
// set for auditing.
type PipelineResult struct {
	Samples       []Sample // retained samples, sheet order
	MeanDetP      []float64
	FailedSamples []string

	Beta    *FloatMatrix
	M       *FloatMatrix
	RawBeta *FloatMatrix // pre-normalization beta, all probes
	DetP    *FloatMatrix // detection p-values, all probes

	Report *QCReport
}

// Run executes the whole preprocessing pipeline on an intensity
// matrix whose columns follow samples (as loaded by LoadIntensities).
// Sample exclusion happens in lockstep everywhere before probe-level
// work, so probe QC never sees columns from failed samples.
func (pl *Pipeline) Run(im, controls *IntensityMatrix, samples []Sample) (*PipelineResult, error) {
	t := pl.Thresholds
	t.setDefaults()
	if pl.Manifest == nil {
		return nil, errors.New("pipeline: no annotation manifest")
	}
	ids := make([]string, len(samples))
	for i, s := range samples {
		ids[i] = s.Name
	}
	err := sameIDs("sample sheet vs. intensity matrix", ids, im.SampleIDs)
	if err != nil {
		return nil, err
	}

	log.Info("computing detection p-values")
	detP, err := DetectionPValues(im, controls)
	if err != nil {
		return nil, err
	}

	fail, mean := SampleFailures(detP, t.SampleDetPMax)
	keepSample := make([]bool, len(fail))
	sampleQC := make([]SampleQC, len(samples))
	var failed []string
	retained := 0
	for s, f := range fail {
		keepSample[s] = !f
		if f {
			failed = append(failed, samples[s].Name)
		} else {
			retained++
		}
		sampleQC[s] = SampleQC{
			Name:     samples[s].Name,
			Group:    samples[s].Group,
			Plate:    samples[s].Plate,
			MeanDetP: mean[s],
			Pass:     !f,
		}
	}
	if retained == 0 {
		return nil, &AllSamplesFailedError{Threshold: t.SampleDetPMax}
	}
	if len(failed) > 0 {
		log.WithFields(log.Fields{
			"failed":   len(failed),
			"retained": retained,
		}).Warnf("dropping samples failing detection QC: %s", idList(failed))
	}

	// drop failed sample columns in lockstep
	im = im.KeepSamples(keepSample)
	detP = detP.KeepSamples(keepSample)
	keptSamples := make([]Sample, 0, retained)
	keptMeans := make([]float64, 0, retained)
	for s, ok := range keepSample {
		if ok {
			keptSamples = append(keptSamples, samples[s])
			keptMeans = append(keptMeans, mean[s])
		}
	}

	log.Info("quantile normalizing intensities")
	ns, err := Normalize(im)
	if err != nil {
		return nil, err
	}

	// probe detection mask, computed from retained columns only
	keepProbe := ProbeFailures(detP, t.ProbeDetPMax)
	detKeep := make(map[string]bool, len(keepProbe))
	failingDetection := 0
	for p, ok := range keepProbe {
		if ok {
			detKeep[detP.ProbeIDs[p]] = true
		} else {
			failingDetection++
		}
	}

	exclusion := &ProbeExclusion{
		DetectionKeep: detKeep,
		Manifest:      pl.Manifest,
		CrossReactive: pl.CrossReactive,
	}
	filtered, stages, err := exclusion.Apply(ns.Adjusted)
	if err != nil {
		return nil, err
	}

	log.Info("deriving beta and M-value matrices")
	beta := BetaValues(filtered, t.BetaOffset)
	m := MValues(beta)
	for _, check := range []error{
		sameIDs("filtered intensities vs. beta probes", filtered.ProbeIDs, beta.ProbeIDs),
		sameIDs("filtered intensities vs. beta samples", filtered.SampleIDs, beta.SampleIDs),
		sameIDs("beta vs. M-value probes", beta.ProbeIDs, m.ProbeIDs),
		sameIDs("beta vs. M-value samples", beta.SampleIDs, m.SampleIDs),
	} {
		if check != nil {
			return nil, check
		}
	}

	report := &QCReport{
		SampleDetPMax:          t.SampleDetPMax,
		ProbeDetPMax:           t.ProbeDetPMax,
		BetaOffset:             t.BetaOffset,
		Samples:                sampleQC,
		FailedSamples:          failed,
		ProbesTotal:            len(im.ProbeIDs),
		ProbesRetained:         len(beta.ProbeIDs),
		ProbesFailingDetection: failingDetection,
		ProbeStages:            stages,
		ManifestRelease:        pl.Manifest.Release,
		ManifestDigest:         pl.Manifest.Digest,
	}
	if pl.CrossReactive != nil {
		report.CrossReactiveDigest = pl.CrossReactive.Digest
	}
	return &PipelineResult{
		Samples:       keptSamples,
		MeanDetP:      keptMeans,
		FailedSamples: failed,
		Beta:          beta,
		M:             m,
		RawBeta:       ns.Raw,
		DetP:          detP,
		Report:        report,
	}, nil
}

// loadPipelineInputs reads the sample sheet and the intensity library
// named by the qc and preprocess subcommands.
func loadPipelineInputs(libraryFile, sheetFile string) ([]Sample, *IntensityMatrix, *IntensityMatrix, error) {
	samples, err := LoadSampleSheet(sheetFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log.WithFields(log.Fields{
		"sheet":   sheetFile,
		"samples": len(samples),
	}).Info("loaded sample sheet")
	im, controls, err := LoadIntensities(libraryFile, samples)
	if err != nil {
		return nil, nil, nil, err
	}
	nP, nS := im.Dims()
	fields := log.Fields{"library": libraryFile, "probes": nP, "samples": nS}
	if controls != nil {
		fields["controls"] = len(controls.ProbeIDs)
	}
	log.WithFields(fields).Info("loaded intensity library")
	return samples, im, controls, nil
}

type preprocesscmd struct {
	thresholds Thresholds
}

func (cmd *preprocesscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "", "intensity library `file` (from import)")
	sheetFilename := flags.String("sample-sheet", "", "sample sheet csv `file`")
	manifestFilename := flags.String("manifest", "", "array annotation manifest csv `file`")
	manifestRelease := flags.String("manifest-release", "", "manifest release `label` recorded in the QC report")
	xreactFilename := flags.String("cross-reactive", "", "cross-reactive probe list `file` (one probe ID per line)")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	rawBeta := flags.Bool("raw-beta", false, "also write pre-normalization beta values (rawbeta.npy)")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	cmd.thresholds.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" {
		err = errors.New("cannot preprocess without -i argument")
		return 2
	} else if *sheetFilename == "" {
		err = errors.New("cannot preprocess without -sample-sheet argument")
		return 2
	} else if *manifestFilename == "" {
		err = errors.New("cannot preprocess without -manifest argument")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	pipeline := Pipeline{Thresholds: cmd.thresholds}
	pipeline.Manifest, err = LoadManifest(*manifestFilename, *manifestRelease)
	if err != nil {
		return 1
	}
	if *xreactFilename != "" {
		pipeline.CrossReactive, err = LoadCrossReactive(*xreactFilename)
		if err != nil {
			return 1
		}
	}

	samples, im, controls, err := loadPipelineInputs(*inputFilename, *sheetFilename)
	if err != nil {
		return 1
	}

	result, err := pipeline.Run(im, controls, samples)
	if err != nil {
		return 1
	}

	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return 1
	}
	err = writeMatrixNumpy(*outputDir+"/beta.npy", result.Beta)
	if err != nil {
		return 1
	}
	err = writeMatrixNumpy(*outputDir+"/mvalues.npy", result.M)
	if err != nil {
		return 1
	}
	err = writeMatrixNumpy(*outputDir+"/detp.npy", result.DetP)
	if err != nil {
		return 1
	}
	if *rawBeta {
		err = writeMatrixNumpy(*outputDir+"/rawbeta.npy", result.RawBeta)
		if err != nil {
			return 1
		}
	}
	err = writeProbeList(*outputDir+"/probes.txt", result.Beta.ProbeIDs)
	if err != nil {
		return 1
	}
	err = writeSampleTable(sampleTableFromQC(result.Report.Samples), *outputDir)
	if err != nil {
		return 1
	}
	err = result.Report.WriteFile(*outputDir + "/qc_report.json")
	if err != nil {
		return 1
	}
	log.WithFields(log.Fields{
		"probes":  len(result.Beta.ProbeIDs),
		"samples": len(result.Samples),
	}).Info("preprocess done")
	return 0
}

// sampleTableFromQC converts QC rows (all sheet samples, failed ones
// included) into samples.csv rows.
func sampleTableFromQC(qc []SampleQC) []sampleInfo {
	si := make([]sampleInfo, len(qc))
	for i, q := range qc {
		si[i] = sampleInfo{
			name:     q.Name,
			group:    q.Group,
			plate:    q.Plate,
			meanDetP: q.MeanDetP,
			qcPass:   q.Pass,
		}
	}
	return si
}
