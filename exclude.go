// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// A FilterResult records one probe exclusion pass for the QC report.
type FilterResult struct {
	Stage             string
	Entering          int
	Remaining         int
	Excluded          int
	MissingAnnotation []string `json:",omitempty"`
}

// A probePass decides, per probe ID, whether to keep a probe. Passes
// that consult the manifest also return the IDs they could not find;
// those probes are excluded fail-safe.
type probePass struct {
	stage string
	keep  func(probeIDs []string) (keep []bool, missing []string)
}

// A ProbeExclusion applies the post-normalization probe filters:
// detection QC, sex chromosomes, SNP-affected probes, and (when a
// list is supplied) cross-reactive probes. Every pass decides on
// probe ID alone, so pass order changes per-stage bookkeeping but
// never the surviving probe set.
type ProbeExclusion struct {
	// DetectionKeep lists the probes that passed per-cell
	// detection QC. Probes absent from the map are excluded.
	DetectionKeep map[string]bool
	Manifest      *Manifest
	CrossReactive *CrossReactiveList
}

// Apply runs all exclusion passes in order, subsetting im after each
// one. It returns the filtered matrix and one FilterResult per pass.
// The error is non-nil only when a pass leaves zero probes.
func (pe *ProbeExclusion) Apply(im *IntensityMatrix) (*IntensityMatrix, []FilterResult, error) {
	if pe.DetectionKeep == nil {
		return nil, nil, errors.New("probe exclusion: no detection QC mask")
	}
	if pe.Manifest == nil {
		return nil, nil, errors.New("probe exclusion: no annotation manifest")
	}
	if pe.CrossReactive == nil {
		log.Warn("no cross-reactive probe list given, skipping that exclusion pass")
	}
	return applyPasses(im, pe.passes())
}

func (pe *ProbeExclusion) passes() []probePass {
	passes := []probePass{
		{stage: "detection", keep: pe.keepDetected},
		{stage: "sex-chromosome", keep: pe.keepAutosomal},
		{stage: "snp", keep: pe.keepSNPFree},
	}
	if pe.CrossReactive != nil {
		passes = append(passes, probePass{stage: "cross-reactive", keep: pe.keepUnique})
	}
	return passes
}

func applyPasses(im *IntensityMatrix, passes []probePass) (*IntensityMatrix, []FilterResult, error) {
	cur := im
	var results []FilterResult
	for _, pass := range passes {
		keep, missing := pass.keep(cur.ProbeIDs)
		result := FilterResult{
			Stage:             pass.stage,
			Entering:          len(cur.ProbeIDs),
			MissingAnnotation: missing,
		}
		cur = cur.KeepProbes(keep)
		result.Remaining = len(cur.ProbeIDs)
		result.Excluded = result.Entering - result.Remaining
		results = append(results, result)
		log.WithFields(log.Fields{
			"stage":     pass.stage,
			"entering":  result.Entering,
			"remaining": result.Remaining,
			"excluded":  result.Excluded,
		}).Info("probe exclusion pass")
		if len(missing) > 0 {
			log.Warn(&MissingAnnotationError{Stage: pass.stage, Probes: missing})
		}
		if result.Remaining == 0 {
			return nil, results, &AllProbesFailedError{Stage: pass.stage}
		}
	}
	return cur, results, nil
}

func (pe *ProbeExclusion) keepDetected(probeIDs []string) (keep []bool, missing []string) {
	keep = make([]bool, len(probeIDs))
	for i, id := range probeIDs {
		keep[i] = pe.DetectionKeep[id]
	}
	return
}

func (pe *ProbeExclusion) keepAutosomal(probeIDs []string) ([]bool, []string) {
	return pe.manifestPass(probeIDs, func(ann ProbeAnnotation) bool {
		return ann.Chromosome != "X" && ann.Chromosome != "Y"
	})
}

func (pe *ProbeExclusion) keepSNPFree(probeIDs []string) ([]bool, []string) {
	return pe.manifestPass(probeIDs, func(ann ProbeAnnotation) bool {
		return !ann.SNPAtCpG && !ann.SNPAtFlank
	})
}

func (pe *ProbeExclusion) manifestPass(probeIDs []string, ok func(ProbeAnnotation) bool) (keep []bool, missing []string) {
	keep = make([]bool, len(probeIDs))
	for i, id := range probeIDs {
		ann, found := pe.Manifest.Lookup(id)
		if !found {
			missing = append(missing, id)
			continue
		}
		keep[i] = ok(ann)
	}
	return
}

func (pe *ProbeExclusion) keepUnique(probeIDs []string) (keep []bool, missing []string) {
	keep = make([]bool, len(probeIDs))
	for i, id := range probeIDs {
		keep[i] = !pe.CrossReactive.Contains(id)
	}
	return
}
