// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// A CovariateTable holds per-sample study metadata (age, sex, batch,
// exposure measurements, ...) loaded from a delimited text file. The
// column set is whatever the file provides; rows are keyed by sample
// ID.
type CovariateTable struct {
	// Columns lists the covariate column names in file order, not
	// including the ID column.
	Columns []string
	rows    map[string][]string
}

// LoadCovariates reads a covariate table from a comma- or
// tab-delimited file. Sample IDs are taken from idColumn, or from the
// first column if idColumn is empty.
func LoadCovariates(fnm, idColumn string) (*CovariateTable, error) {
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	rdr := csv.NewReader(bytes.NewReader(buf))
	rdr.Comma = csvDelimiter(buf)
	rdr.LazyQuotes = true
	header, err := rdr.Read()
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", fnm, err))
	}
	idIdx := 0
	if idColumn != "" {
		idIdx = -1
		for i, col := range header {
			if col == idColumn {
				idIdx = i
				break
			}
		}
		if idIdx < 0 {
			return nil, fmt.Errorf("%s: no column named %q in header %q", fnm, idColumn, header)
		}
	}
	ct := &CovariateTable{rows: map[string][]string{}}
	for i, col := range header {
		if i != idIdx {
			ct.Columns = append(ct.Columns, col)
		}
	}
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", fnm, err))
		}
		id := rec[idIdx]
		if id == "" {
			return nil, fmt.Errorf("%s line %d: empty sample ID", fnm, line)
		}
		if _, ok := ct.rows[id]; ok {
			return nil, fmt.Errorf("%s line %d: duplicate sample ID %q", fnm, line, id)
		}
		row := make([]string, 0, len(rec)-1)
		for i, v := range rec {
			if i != idIdx {
				row = append(row, v)
			}
		}
		ct.rows[id] = row
	}
	log.WithFields(log.Fields{
		"filename":   fnm,
		"samples":    len(ct.rows),
		"covariates": len(ct.Columns),
	}).Info("loaded covariate table")
	return ct, nil
}

// Len returns the number of covariate rows.
func (ct *CovariateTable) Len() int {
	return len(ct.rows)
}

// Lookup returns the covariate values for the given sample ID, in
// Columns order.
func (ct *CovariateTable) Lookup(sampleID string) ([]string, bool) {
	row, ok := ct.rows[sampleID]
	return row, ok
}

// A JoinReport records the sample IDs that did not line up when a
// covariate table was joined onto a cohort.
type JoinReport struct {
	// MissingMetadata lists cohort samples with no covariate row, in
	// cohort order.
	MissingMetadata []string
	// UnmatchedRows lists covariate rows whose ID matches no cohort
	// sample, sorted.
	UnmatchedRows []string
}

// Mismatch returns a MetadataJoinMismatchError describing the report,
// or nil if the join was exact.
func (jr *JoinReport) Mismatch() error {
	if len(jr.MissingMetadata) == 0 && len(jr.UnmatchedRows) == 0 {
		return nil
	}
	return &MetadataJoinMismatchError{
		MissingMetadata: jr.MissingMetadata,
		UnmatchedRows:   jr.UnmatchedRows,
	}
}

// Join matches covariate rows to the given cohort sample IDs. The
// returned slice has one entry per cohort sample, nil where no
// covariate row exists. The report lists mismatches in both
// directions; the join itself never fails.
func (ct *CovariateTable) Join(sampleIDs []string) ([][]string, JoinReport) {
	values := make([][]string, len(sampleIDs))
	var report JoinReport
	matched := map[string]bool{}
	for i, id := range sampleIDs {
		if row, ok := ct.rows[id]; ok {
			values[i] = row
			matched[id] = true
		} else {
			report.MissingMetadata = append(report.MissingMetadata, id)
		}
	}
	for id := range ct.rows {
		if !matched[id] {
			report.UnmatchedRows = append(report.UnmatchedRows, id)
		}
	}
	sort.Strings(report.UnmatchedRows)
	return values, report
}

// updateReportJoin records the join outcome in the QC report next to
// the input matrices, if there is one.
func updateReportJoin(fnm string, join JoinReport) error {
	buf, err := readAll(fnm)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	var report QCReport
	err = json.Unmarshal(buf, &report)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	report.CovariateJoin = &join
	return report.WriteFile(fnm)
}

// MeanBeta returns the mean beta value of each sample across all
// probes, a coarse global methylation summary.
func MeanBeta(beta *FloatMatrix) []float64 {
	nProbes, nSamples := beta.Dims()
	means := make([]float64, nSamples)
	col := make([]float64, nProbes)
	for s := range means {
		col = beta.Col(col, s)
		means[s] = stat.Mean(col, nil)
	}
	return means
}

// writeCohortTable writes one row per cohort sample: ID, group,
// plate, mean beta, then covariate columns. Samples without covariate
// rows get empty cells.
func writeCohortTable(w io.Writer, samples []sampleInfo, meanBeta []float64, covariates [][]string, columns []string) error {
	cw := csv.NewWriter(w)
	header := []string{"SampleID", "Group", "Plate", "MeanBeta"}
	header = append(header, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, si := range samples {
		rec := []string{si.name, si.group, si.plate, strconv.FormatFloat(meanBeta[i], 'g', -1, 64)}
		if covariates[i] != nil {
			rec = append(rec, covariates[i]...)
		} else {
			rec = append(rec, make([]string, len(columns))...)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type aggregator struct{}

func (cmd *aggregator) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at `[addr]:port`")
	inputDir := flags.String("input-dir", ".", "input `directory` with beta.npy, probes.txt, and samples.csv")
	outputFile := flags.String("o", "-", "write cohort table to `file` instead of stdout")
	covariatesFile := flags.String("covariates", "", "covariate table `file` (required)")
	idColumn := flags.String("id-column", "", "covariate `column` holding sample IDs (default: first column)")
	strict := flags.Bool("strict", false, "fail if cohort samples and covariate rows do not match exactly")
	loglevel := flags.String("loglevel", "info", "logging threshold (debug, info, ...)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
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

	if *covariatesFile == "" {
		err = errors.New("cannot continue without -covariates")
		return 2
	}

	allSamples, err := loadSampleTable(*inputDir + "/samples.csv")
	if err != nil {
		return 1
	}
	samples := retainedSamples(allSamples)
	probeIDs, err := loadProbeList(*inputDir + "/probes.txt")
	if err != nil {
		return 1
	}
	npr, err := gonpy.NewFileReader(*inputDir + "/beta.npy")
	if err != nil {
		return 1
	}
	if len(npr.Shape) != 2 {
		err = fmt.Errorf("beta.npy: expected a 2-dimensional array, got shape %v", npr.Shape)
		return 1
	}
	rows, cols := npr.Shape[0], npr.Shape[1]
	if rows != len(probeIDs) {
		err = &IndexMismatchError{What: "beta matrix rows vs. probes.txt", Detail: fmt.Sprintf("%d rows, %d probe IDs", rows, len(probeIDs))}
		return 1
	}
	if cols != len(samples) {
		err = &IndexMismatchError{What: "beta matrix columns vs. samples.csv", Detail: fmt.Sprintf("%d columns, %d retained samples", cols, len(samples))}
		return 1
	}
	data, err := npr.GetFloat64()
	if err != nil {
		return 1
	}
	if npr.ColumnMajor {
		data = toRowMajor(data, rows, cols)
	}
	beta := &FloatMatrix{ProbeIDs: probeIDs, Values: data}
	for _, si := range samples {
		beta.SampleIDs = append(beta.SampleIDs, si.name)
	}

	covariates, err := LoadCovariates(*covariatesFile, *idColumn)
	if err != nil {
		return 1
	}
	values, report := covariates.Join(beta.SampleIDs)
	if mismatch := report.Mismatch(); mismatch != nil {
		if *strict {
			err = mismatch
			return 1
		}
		log.Warn(mismatch)
	}
	log.WithFields(log.Fields{
		"cohort":          len(samples),
		"covariateRows":   covariates.Len(),
		"missingMetadata": len(report.MissingMetadata),
		"unmatchedRows":   len(report.UnmatchedRows),
	}).Info("joined covariates")
	if uerr := updateReportJoin(*inputDir+"/qc_report.json", report); uerr != nil {
		log.Warnf("updating QC report: %s", uerr)
	}

	means := MeanBeta(beta)

	var output io.WriteCloser
	if *outputFile == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	err = writeCohortTable(output, samples, means, values, covariates.Columns)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

// toRowMajor rearranges a column-major flat array.
func toRowMajor(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*cols+c] = data[c*rows+r]
		}
	}
	return out
}
