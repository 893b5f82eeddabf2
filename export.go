// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func writeNumpyFloat64(fnm string, out []float64, rows, cols int) error {
	output, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriterSize(output, 1<<26)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     rows,
		"cols":     cols,
		"bytes":    rows * cols * 8,
	}).Infof("writing numpy: %s", fnm)
	npw.Shape = []int{rows, cols}
	npw.WriteFloat64(out)
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

// writeMatrixNumpy saves a FloatMatrix's values as a probes x samples
// npy file.
func writeMatrixNumpy(fnm string, m *FloatMatrix) error {
	rows, cols := m.Dims()
	return writeNumpyFloat64(fnm, m.Values, rows, cols)
}

// writeProbeList writes probe IDs one per line, in matrix row order,
// as the row index companion to the npy matrices.
func writeProbeList(fnm string, probeIDs []string) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	for _, id := range probeIDs {
		_, err = fmt.Fprintln(bufw, id)
		if err != nil {
			return err
		}
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

// loadProbeList reads a probes.txt artifact back into row IDs.
func loadProbeList(fnm string) ([]string, error) {
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		ids = append(ids, string(line))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: no probe IDs", fnm)
	}
	return ids, nil
}

// A sampleInfo is one row of the samples.csv artifact: the column
// index companion to the npy matrices, plus per-sample QC results.
// Matrix columns correspond, in order, to the rows with qcPass set.
type sampleInfo struct {
	name          string
	group         string
	plate         string
	meanDetP      float64
	qcPass        bool
	pcaComponents []float64
}

func loadSampleTable(fnm string) ([]sampleInfo, error) {
	var si []sampleInfo
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	lineNum := 0
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		lineNum++
		if len(line) == 0 {
			continue
		}
		split := strings.Split(strings.TrimSuffix(string(line), "\r"), ",")
		if len(split) < 6 {
			return nil, fmt.Errorf("%d fields < 6 in %s line %d: %q", len(split), fnm, lineNum, line)
		}
		if split[0] == "Index" && split[1] == "SampleID" && split[2] == "Group" && split[3] == "Plate" && split[4] == "MeanDetP" && split[5] == "QCPass" {
			continue
		}
		idx, err := strconv.Atoi(split[0])
		if err != nil {
			if lineNum == 1 {
				return nil, fmt.Errorf("header does not look right: %q", line)
			}
			return nil, fmt.Errorf("%s line %d: index: %s", fnm, lineNum, err)
		}
		if idx != len(si) {
			return nil, fmt.Errorf("%s line %d: index %d out of order", fnm, lineNum, idx)
		}
		meanDetP, err := strconv.ParseFloat(split[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: cannot parse MeanDetP %q: %s", fnm, lineNum, split[4], err)
		}
		var pcaComponents []float64
		for _, s := range split[6:] {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: cannot parse float %q: %s", fnm, lineNum, s, err)
			}
			pcaComponents = append(pcaComponents, f)
		}
		si = append(si, sampleInfo{
			name:          split[1],
			group:         split[2],
			plate:         split[3],
			meanDetP:      meanDetP,
			qcPass:        split[5] == "1",
			pcaComponents: pcaComponents,
		})
	}
	return si, nil
}

func writeSampleTable(samples []sampleInfo, outputDir string) error {
	fnm := outputDir + "/samples.csv"
	log.Infof("writing sample table to %s", fnm)
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	pcaLabels := ""
	if len(samples) > 0 {
		for i := range samples[0].pcaComponents {
			pcaLabels += fmt.Sprintf(",PCA%d", i)
		}
	}
	_, err = fmt.Fprintf(f, "Index,SampleID,Group,Plate,MeanDetP,QCPass%s\n", pcaLabels)
	if err != nil {
		return err
	}
	for i, si := range samples {
		pass := "0"
		if si.qcPass {
			pass = "1"
		}
		var pcavals string
		for _, pcaval := range si.pcaComponents {
			pcavals += fmt.Sprintf(",%f", pcaval)
		}
		_, err = fmt.Fprintf(f, "%d,%s,%s,%s,%g,%s%s\n", i, si.name, si.group, si.plate, si.meanDetP, pass, pcavals)
		if err != nil {
			return fmt.Errorf("write %s: %w", fnm, err)
		}
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", fnm, err)
	}
	return nil
}

// retainedSamples filters a sample table down to the rows that passed
// QC, i.e. the rows that correspond to matrix columns.
func retainedSamples(si []sampleInfo) []sampleInfo {
	var out []sampleInfo
	for _, s := range si {
		if s.qcPass {
			out = append(out, s)
		}
	}
	return out
}
