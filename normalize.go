// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"fmt"
	"runtime"
	"sort"
)

// A NormalizedSet pairs quantile-normalized intensities with beta
// values computed from the raw, unadjusted intensities. Raw is kept
// so downstream analyses can audit what normalization did to the
// signal.
type NormalizedSet struct {
	Raw      *FloatMatrix
	Adjusted *IntensityMatrix
}

// Normalize quantile-normalizes each intensity channel across
// samples: the k-th smallest value in every column is replaced by the
// mean of the k-th smallest values over all columns, so all columns
// end up with identical distributions. Tied values share the mean
// rank of their run. Probe and sample order are unchanged. Forcing
// identical distributions is only sound when all columns measure
// comparable tissue; callers own that assumption.
func Normalize(im *IntensityMatrix) (*NormalizedSet, error) {
	err := im.Check()
	if err != nil {
		return nil, err
	}
	nP, nS := im.Dims()
	if nP == 0 || nS == 0 {
		return nil, fmt.Errorf("cannot normalize an empty matrix (%d probes x %d samples)", nP, nS)
	}
	adjusted := &IntensityMatrix{
		ProbeIDs:  im.ProbeIDs,
		SampleIDs: im.SampleIDs,
	}
	adjusted.Meth, err = quantileNormalize(im.Meth, nP, nS)
	if err != nil {
		return nil, err
	}
	adjusted.Unmeth, err = quantileNormalize(im.Unmeth, nP, nS)
	if err != nil {
		return nil, err
	}
	return &NormalizedSet{
		Raw:      BetaValues(im, DefaultBetaOffset),
		Adjusted: adjusted,
	}, nil
}

func quantileNormalize(values []float64, nP, nS int) ([]float64, error) {
	cols := make([][]float64, nS)
	sortedCols := make([][]float64, nS)
	throttle := throttle{Max: runtime.GOMAXPROCS(0)}
	for s := 0; s < nS; s++ {
		s := s
		throttle.Go(func() error {
			col := make([]float64, nP)
			for p := 0; p < nP; p++ {
				col[p] = values[p*nS+s]
			}
			sorted := make([]float64, nP)
			copy(sorted, col)
			sort.Float64s(sorted)
			cols[s] = col
			sortedCols[s] = sorted
			return nil
		})
	}
	err := throttle.Wait()
	if err != nil {
		return nil, err
	}

	// target distribution: per-rank mean of the sorted columns
	target := make([]float64, nP)
	for _, sorted := range sortedCols {
		for p, v := range sorted {
			target[p] += v
		}
	}
	for p := range target {
		target[p] /= float64(nS)
	}

	out := make([]float64, len(values))
	for s := 0; s < nS; s++ {
		s := s
		throttle.Go(func() error {
			var r ranker
			for p, rk := range r.rank(cols[s]) {
				out[p*nS+s] = interpTarget(target, rk)
			}
			return nil
		})
	}
	err = throttle.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// interpTarget evaluates the target quantile vector at a possibly
// fractional rank, interpolating between adjacent order statistics.
func interpTarget(target []float64, rank float64) float64 {
	i := int(rank)
	frac := rank - float64(i)
	if frac == 0 || i+1 >= len(target) {
		return target[i]
	}
	return target[i]*(1-frac) + target[i+1]*frac
}

// ranker assigns fractional ranks to a vector without mutating it.
type ranker struct {
	f []float64 // data to be ranked
	r []int     // indexes into f, in rank order after sorting
}

func (r ranker) Len() int           { return len(r.f) }
func (r ranker) Less(i, j int) bool { return r.f[r.r[i]] < r.f[r.r[j]] }
func (r ranker) Swap(i, j int)      { r.r[i], r.r[j] = r.r[j], r.r[i] }

// rank returns the 0-based sample ranks of the values in f. Each run
// of tied values gets the mean rank of the run.
func (r *ranker) rank(f []float64) []float64 {
	if len(f) == 0 {
		return nil
	}
	r.f = f
	if cap(r.r) < len(f) {
		r.r = make([]int, len(f))
	}
	r.r = r.r[:len(f)]
	for i := range r.r {
		r.r[i] = i
	}
	sort.Sort(r)
	rl := make([]float64, len(f))
	for lo := 0; lo < len(r.r); {
		hi := lo + 1
		for hi < len(r.r) && r.f[r.r[hi]] == r.f[r.r[lo]] {
			hi++
		}
		mean := float64(lo+hi-1) / 2
		for k := lo; k < hi; k++ {
			rl[r.r[k]] = mean
		}
		lo = hi
	}
	return rl
}
