// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// A ProbeAnnotation holds the manifest fields the exclusion passes
// care about.
type ProbeAnnotation struct {
	Chromosome string
	SNPAtCpG   bool
	SNPAtFlank bool
}

// A Manifest maps probe IDs to their array annotation. Release and
// Digest identify which manifest build produced a given QC report.
type Manifest struct {
	Release string
	Digest  string
	probes  map[string]ProbeAnnotation
}

func (m *Manifest) Len() int {
	return len(m.probes)
}

func (m *Manifest) Lookup(probeID string) (ProbeAnnotation, bool) {
	ann, ok := m.probes[probeID]
	return ann, ok
}

type manifestRow struct {
	Name    string `csv:"Name"`
	Chr     string `csv:"CHR"`
	Mapinfo string `csv:"MAPINFO"`
	CpGrs   string `csv:"CpG_rs"`
	SBErs   string `csv:"SBE_rs"`
}

// LoadManifest reads an array annotation manifest (CSV, optionally
// gzip-compressed) keyed on the Name column. A probe is flagged as
// SNP-affected when the manifest names a dbSNP entry at the CpG site
// (CpG_rs) or at the single-base-extension position (SBE_rs).
// Chromosome names are normalized by stripping any "chr" prefix and
// upcasing, so "chrX", "x", and "X" all count as X.
func LoadManifest(fnm, release string) (*Manifest, error) {
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	setCSVDelimiter(csvDelimiter(buf))
	var rows []manifestRow
	err = gocsv.UnmarshalBytes(buf, &rows)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", fnm, err))
	}
	m := &Manifest{
		Release: release,
		Digest:  contentDigest(buf),
		probes:  make(map[string]ProbeAnnotation, len(rows)),
	}
	for i, row := range rows {
		if row.Name == "" {
			return nil, fmt.Errorf("%s: data row %d has empty Name", fnm, i+1)
		}
		if _, dup := m.probes[row.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate probe %q", fnm, row.Name)
		}
		m.probes[row.Name] = ProbeAnnotation{
			Chromosome: normChromosome(row.Chr),
			SNPAtCpG:   row.CpGrs != "",
			SNPAtFlank: row.SBErs != "",
		}
	}
	log.WithFields(log.Fields{
		"manifest": fnm,
		"release":  release,
		"probes":   len(m.probes),
		"digest":   m.Digest,
	}).Info("loaded annotation manifest")
	return m, nil
}

func normChromosome(chr string) string {
	chr = strings.TrimSpace(chr)
	chr = strings.TrimPrefix(chr, "chr")
	chr = strings.TrimPrefix(chr, "CHR")
	return strings.ToUpper(chr)
}

// A CrossReactiveList is a published set of probe IDs known to
// co-hybridize to multiple genomic targets.
type CrossReactiveList struct {
	Digest string
	ids    map[string]bool
}

func (x *CrossReactiveList) Len() int {
	return len(x.ids)
}

func (x *CrossReactiveList) Contains(probeID string) bool {
	return x != nil && x.ids[probeID]
}

// LoadCrossReactive reads a cross-reactive probe list: one probe ID
// per line, first column if the line has several, header lines
// ignored if their first column never matches a probe. Absence from
// the list means "keep", so unlike the manifest it cannot have
// missing entries.
func LoadCrossReactive(fnm string) (*CrossReactiveList, error) {
	buf, err := readAll(fnm)
	if err != nil {
		return nil, err
	}
	x := &CrossReactiveList{
		Digest: contentDigest(buf),
		ids:    map[string]bool{},
	}
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	for scanner.Scan() {
		line := strings.Trim(scanner.Text(), " \t\r\"")
		if line == "" {
			continue
		}
		if i := strings.IndexAny(line, ",\t ;"); i >= 0 {
			line = strings.Trim(line[:i], "\"")
		}
		x.ids[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(x.ids) == 0 {
		return nil, fmt.Errorf("%s: no probe IDs", fnm)
	}
	log.WithFields(log.Fields{
		"file":   fnm,
		"probes": len(x.ids),
		"digest": x.Digest,
	}).Info("loaded cross-reactive probe list")
	return x, nil
}

// contentDigest returns a short blake2b digest of the (decompressed)
// annotation content, for recording input provenance in QC reports.
func contentDigest(buf []byte) string {
	sum := blake2b.Sum256(buf)
	return fmt.Sprintf("%x", sum[:12])
}
