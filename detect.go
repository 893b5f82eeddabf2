// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// madScale makes the median absolute deviation a consistent
	// estimator of a normal standard deviation.
	madScale = 1.4826

	// pseudoControlPct is the share of dimmest probes used as a
	// stand-in background when a library has no negative controls.
	pseudoControlPct = 5

	// minBackgroundSD keeps the survival test from degenerating
	// into a step function when the control spread is zero.
	minBackgroundSD = 1.0
)

type background struct {
	mu, sigma float64
}

// DetectionPValues computes, for every (probe, sample) cell, the
// probability that the observed total signal (meth+unmeth) arose from
// the sample's background distribution. Lower means brighter than
// background, i.e. more trustworthy. Background is estimated per
// sample from negative control probes, or from the sample's dimmest
// probes when controls is nil.
func DetectionPValues(im, controls *IntensityMatrix) (*FloatMatrix, error) {
	if err := im.Check(); err != nil {
		return nil, err
	}
	if controls != nil {
		if err := controls.Check(); err != nil {
			return nil, err
		}
		if err := sameIDs("intensities vs. negative controls", im.SampleIDs, controls.SampleIDs); err != nil {
			return nil, err
		}
	} else {
		log.Warnf("library carries no negative control signal, estimating background from the dimmest %d%% of probes per sample", pseudoControlPct)
	}
	nP, nS := im.Dims()
	detP := NewFloatMatrix(im.ProbeIDs, im.SampleIDs)
	throttle := throttle{Max: runtime.GOMAXPROCS(0)}
	for s := 0; s < nS; s++ {
		s := s
		throttle.Go(func() error {
			bg, err := sampleBackground(im, controls, s)
			if err != nil {
				return fmt.Errorf("sample %s: background estimate: %w", im.SampleIDs[s], err)
			}
			dist := distuv.Normal{Mu: bg.mu, Sigma: bg.sigma}
			for p := 0; p < nP; p++ {
				detP.Values[p*nS+s] = dist.Survival(im.Meth[p*nS+s] + im.Unmeth[p*nS+s])
			}
			return nil
		})
	}
	err := throttle.Wait()
	if err != nil {
		return nil, err
	}
	return detP, nil
}

// sampleBackground estimates sample s's background signal: per
// channel, the median control intensity plus a MAD-based spread, with
// location and spread summed across channels to match the
// meth+unmeth test statistic.
func sampleBackground(im, controls *IntensityMatrix, s int) (background, error) {
	var methCtl, unmethCtl []float64
	if controls != nil {
		nS := len(controls.SampleIDs)
		methCtl = make([]float64, len(controls.ProbeIDs))
		unmethCtl = make([]float64, len(controls.ProbeIDs))
		for p := range controls.ProbeIDs {
			methCtl[p] = controls.Meth[p*nS+s]
			unmethCtl[p] = controls.Unmeth[p*nS+s]
		}
	} else {
		methCtl, unmethCtl = pseudoControls(im, s)
	}
	muM, err := stats.Median(methCtl)
	if err != nil {
		return background{}, err
	}
	muU, err := stats.Median(unmethCtl)
	if err != nil {
		return background{}, err
	}
	madM, err := stats.MedianAbsoluteDeviation(methCtl)
	if err != nil {
		return background{}, err
	}
	madU, err := stats.MedianAbsoluteDeviation(unmethCtl)
	if err != nil {
		return background{}, err
	}
	bg := background{
		mu:    muM + muU,
		sigma: madScale * (madM + madU),
	}
	if bg.sigma < minBackgroundSD {
		bg.sigma = minBackgroundSD
	}
	return bg, nil
}

// pseudoControls returns the two channels of the dimmest
// pseudoControlPct% of probes (by total signal) in sample s.
func pseudoControls(im *IntensityMatrix, s int) (meth, unmeth []float64) {
	nP, nS := im.Dims()
	idx := make([]int, nP)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return im.Meth[idx[a]*nS+s]+im.Unmeth[idx[a]*nS+s] < im.Meth[idx[b]*nS+s]+im.Unmeth[idx[b]*nS+s]
	})
	k := nP * pseudoControlPct / 100
	if k < 1 {
		k = 1
	}
	meth = make([]float64, k)
	unmeth = make([]float64, k)
	for i, p := range idx[:k] {
		meth[i] = im.Meth[p*nS+s]
		unmeth[i] = im.Unmeth[p*nS+s]
	}
	return
}

// SampleFailures flags samples whose mean detection p-value exceeds
// maxMean. A sample sitting exactly at the threshold passes; a NaN
// mean fails.
func SampleFailures(detP *FloatMatrix, maxMean float64) (fail []bool, mean []float64) {
	nP, nS := detP.Dims()
	fail = make([]bool, nS)
	mean = make([]float64, nS)
	col := make([]float64, nP)
	for s := 0; s < nS; s++ {
		col = detP.Col(col, s)
		mean[s] = stat.Mean(col, nil)
		fail[s] = !(mean[s] <= maxMean)
	}
	return
}

// ProbeFailures reports which probes survive per-cell detection QC:
// keep[p] is true only if probe p's detection p-value stays strictly
// below max in every sample. A NaN cell excludes the probe.
func ProbeFailures(detP *FloatMatrix, max float64) (keep []bool) {
	nP, nS := detP.Dims()
	keep = make([]bool, nP)
	for p := 0; p < nP; p++ {
		ok := true
		for s := 0; s < nS; s++ {
			if !(detP.Values[p*nS+s] < max) {
				ok = false
				break
			}
		}
		keep[p] = ok
	}
	return
}
