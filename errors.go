// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"fmt"
	"strings"
)

// An IndexMismatchError means two structures that must share probe or
// sample ordering have diverged. It is always fatal: silently
// realigning columns would attribute one sample's data to another.
type IndexMismatchError struct {
	What   string
	Detail string
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("index mismatch (%s): %s", e.What, e.Detail)
}

// A MissingAnnotationError lists probes that an exclusion pass could
// not find in the annotation manifest. The affected probes are
// excluded; the pipeline reports the error but keeps going.
type MissingAnnotationError struct {
	Stage  string
	Probes []string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("%s: %d probes not in annotation manifest: %s", e.Stage, len(e.Probes), idList(e.Probes))
}

type AllSamplesFailedError struct {
	Threshold float64
}

func (e *AllSamplesFailedError) Error() string {
	return fmt.Sprintf("every sample failed detection QC (mean detection p-value > %g)", e.Threshold)
}

type AllProbesFailedError struct {
	Stage string
}

func (e *AllProbesFailedError) Error() string {
	return fmt.Sprintf("no probes left after %s exclusion", e.Stage)
}

// A MetadataJoinMismatchError lists sample IDs that do not line up
// between the processed cohort and the covariate table.
type MetadataJoinMismatchError struct {
	MissingMetadata []string // cohort samples with no covariate row
	UnmatchedRows   []string // covariate rows naming no cohort sample
}

func (e *MetadataJoinMismatchError) Error() string {
	var parts []string
	if len(e.MissingMetadata) > 0 {
		parts = append(parts, fmt.Sprintf("%d samples have no covariate row: %s", len(e.MissingMetadata), idList(e.MissingMetadata)))
	}
	if len(e.UnmatchedRows) > 0 {
		parts = append(parts, fmt.Sprintf("%d covariate rows match no sample: %s", len(e.UnmatchedRows), idList(e.UnmatchedRows)))
	}
	return "covariate join mismatch: " + strings.Join(parts, "; ")
}

// idList formats ids for an error message, eliding all but the first
// few so a genome-scale mismatch doesn't produce a megabyte of log.
func idList(ids []string) string {
	const max = 10
	if len(ids) <= max {
		return strings.Join(ids, ",")
	}
	return fmt.Sprintf("%s,... (%d more)", strings.Join(ids[:max], ","), len(ids)-max)
}
