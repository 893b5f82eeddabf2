// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"
)

// A Sample is one row of the cohort sample sheet.
type Sample struct {
	Name     string `csv:"Sample_Name"`
	Group    string `csv:"Sample_Group"`
	Plate    string `csv:"Sample_Plate"`
	Sentrix  string `csv:"Sentrix_ID"`
	Position string `csv:"Sentrix_Position"`
}

// Barcode returns the chip barcode ("<Sentrix_ID>_<Sentrix_Position>")
// that array-scanner exports use to label this sample's signal
// columns, or "" when the sheet doesn't carry Sentrix columns.
func (s Sample) Barcode() string {
	if s.Sentrix == "" || s.Position == "" {
		return ""
	}
	return s.Sentrix + "_" + s.Position
}

// LoadSampleSheet reads an Illumina-style sample sheet. A "[Data]"
// section marker and everything above it are skipped, so both plain
// CSV exports and full scanner sheets work. The delimiter (comma or
// tab) is auto-detected. Sample_Name must be present and unique;
// other columns may be empty.
func LoadSampleSheet(fnm string) ([]Sample, error) {
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	buf = sheetDataSection(buf)
	setCSVDelimiter(csvDelimiter(buf))
	var samples []Sample
	err = gocsv.UnmarshalBytes(buf, &samples)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", fnm, err))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: no sample rows", fnm)
	}
	seen := map[string]bool{}
	for i, s := range samples {
		if s.Name == "" {
			return nil, fmt.Errorf("%s: data row %d has empty Sample_Name", fnm, i+1)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%s: duplicate Sample_Name %q", fnm, s.Name)
		}
		seen[s.Name] = true
	}
	return samples, nil
}

// sheetDataSection returns the part of buf following a "[Data]" line,
// or all of buf if there is no such line.
func sheetDataSection(buf []byte) []byte {
	for searched := 0; ; {
		nl := bytes.IndexByte(buf[searched:], '\n')
		if nl < 0 {
			return buf
		}
		line := bytes.Trim(buf[searched:searched+nl], " \t\r\"")
		if bytes.HasPrefix(line, []byte("[Data]")) {
			return buf[searched+nl+1:]
		}
		searched += nl + 1
	}
}

// csvDelimiter returns the most likely delimiter rune for a CSV-like
// byte buffer, defaulting to comma.
func csvDelimiter(buf []byte) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(buf), '"')
	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}
	return ','
}

// setCSVDelimiter tells gocsv which delimiter to use for subsequent
// Unmarshal calls.
func setCSVDelimiter(delim rune) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delim
		r.LazyQuotes = true
		return r
	})
}
