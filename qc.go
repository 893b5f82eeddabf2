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

// qccmd runs detection QC only: no normalization, no probe
// exclusion, no matrix derivation. Useful for a quick look at a fresh
// batch before committing to thresholds. Unlike preprocess, the
// detp.npy written here spans every sheet sample, failed ones
// included.
type qccmd struct {
	thresholds Thresholds
}

func (cmd *qccmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputDir := flags.String("output-dir", ".", "output `directory`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	cmd.thresholds.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" {
		err = errors.New("cannot run qc without -i argument")
		return 2
	} else if *sheetFilename == "" {
		err = errors.New("cannot run qc without -sample-sheet argument")
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

	t := cmd.thresholds
	t.setDefaults()

	samples, im, controls, err := loadPipelineInputs(*inputFilename, *sheetFilename)
	if err != nil {
		return 1
	}

	detP, err := DetectionPValues(im, controls)
	if err != nil {
		return 1
	}
	fail, mean := SampleFailures(detP, t.SampleDetPMax)

	// probe detection stats over passing samples only, matching what
	// preprocess will do
	keepSample := make([]bool, len(fail))
	retained := 0
	for s, f := range fail {
		keepSample[s] = !f
		if !f {
			retained++
		}
	}
	var keep []bool
	if retained > 0 {
		keep = ProbeFailures(detP.KeepSamples(keepSample), t.ProbeDetPMax)
	} else {
		log.Warn("every sample failed detection QC, skipping probe detection stats")
	}

	report := &QCReport{
		SampleDetPMax: t.SampleDetPMax,
		ProbeDetPMax:  t.ProbeDetPMax,
		BetaOffset:    t.BetaOffset,
		ProbesTotal:   len(im.ProbeIDs),
	}
	for s, f := range fail {
		report.Samples = append(report.Samples, SampleQC{
			Name:     samples[s].Name,
			Group:    samples[s].Group,
			Plate:    samples[s].Plate,
			MeanDetP: mean[s],
			Pass:     !f,
		})
		if f {
			report.FailedSamples = append(report.FailedSamples, samples[s].Name)
		}
	}
	for _, ok := range keep {
		if !ok {
			report.ProbesFailingDetection++
		}
	}
	log.WithFields(log.Fields{
		"samplesFailing": len(report.FailedSamples),
		"probesFailing":  report.ProbesFailingDetection,
	}).Info("detection QC done")

	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return 1
	}
	err = writeMatrixNumpy(*outputDir+"/detp.npy", detP)
	if err != nil {
		return 1
	}
	err = writeSampleTable(sampleTableFromQC(report.Samples), *outputDir)
	if err != nil {
		return 1
	}
	err = report.WriteFile(*outputDir + "/qc_report.json")
	if err != nil {
		return 1
	}
	return 0
}
