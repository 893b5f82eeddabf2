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

	"github.com/james-bowman/nlp"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// pcacmd computes principal components of the processed beta matrix
// across retained samples. The leading components track batch and
// cell-composition structure and are meant to be carried into
// downstream models as covariates.
type pcacmd struct{}

func (cmd *pcacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputDir := flags.String("input-dir", ".", "`directory` holding beta.npy and samples.csv from preprocess")
	outputDir := flags.String("output-dir", "", "output `directory` (default: input dir)")
	components := flags.Int("components", 10, "number of principal components")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *outputDir == "" {
		*outputDir = *inputDir
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

	betaFile := *inputDir + "/beta.npy"
	rdr, err := gonpy.NewFileReader(betaFile)
	if err != nil {
		return 1
	}
	if len(rdr.Shape) != 2 {
		err = fmt.Errorf("%s: want a 2-dimensional array, got shape %v", betaFile, rdr.Shape)
		return 1
	}
	rows, cols := rdr.Shape[0], rdr.Shape[1]
	data, err := rdr.GetFloat64()
	if err != nil {
		return 1
	}
	if rdr.ColumnMajor {
		data = toRowMajor(data, rows, cols)
	}

	samples, err := loadSampleTable(*inputDir + "/samples.csv")
	if err != nil {
		return 1
	}
	retained := retainedSamples(samples)
	if len(retained) != cols {
		err = &IndexMismatchError{
			What:   "samples.csv vs. beta.npy",
			Detail: fmt.Sprintf("%d QC-passing rows vs %d matrix columns", len(retained), cols),
		}
		return 1
	}

	k := *components
	if k < 1 {
		err = errors.New("-components must be at least 1")
		return 2
	}
	if k > cols {
		log.Warnf("reducing -components from %d to %d (number of retained samples)", k, cols)
		k = cols
	}
	if k > rows {
		log.Warnf("reducing -components from %d to %d (number of probes)", k, rows)
		k = rows
	}

	log.Printf("creating matrix backed by array: %d rows, %d cols", rows, cols)
	var mtx mat.Matrix = mat.NewDense(rows, cols, data)

	log.Print("fitting")
	transformer := nlp.NewPCA(k)
	transformer.Fit(mtx)
	log.Printf("transforming")
	mtx, err = transformer.Transform(mtx)
	if err != nil {
		return 1
	}
	mtx = mtx.T()

	rows, cols = mtx.Dims()
	log.Printf("copying result to numpy output array: %d rows, %d cols", rows, cols)
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = mtx.At(i, j)
		}
	}

	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return 1
	}
	err = writeNumpyFloat64(*outputDir+"/pca.npy", out, rows, cols)
	if err != nil {
		return 1
	}

	log.Print("copying pca components to sample table")
	ri := 0
	for i := range samples {
		samples[i].pcaComponents = make([]float64, cols)
		if samples[i].qcPass {
			copy(samples[i].pcaComponents, out[ri*cols:(ri+1)*cols])
			ri++
		}
	}
	err = writeSampleTable(samples, *outputDir)
	if err != nil {
		return 1
	}
	log.Print("done")
	return 0
}
