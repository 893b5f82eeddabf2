// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import "fmt"

// An IntensityMatrix holds methylated and unmethylated signal for a
// set of probes (rows) and samples (columns). Both channels are
// probe-major: the value for probe p, sample s is at index
// p*len(SampleIDs)+s.
type IntensityMatrix struct {
	ProbeIDs  []string
	SampleIDs []string
	Meth      []float64
	Unmeth    []float64
}

func NewIntensityMatrix(probeIDs, sampleIDs []string) *IntensityMatrix {
	n := len(probeIDs) * len(sampleIDs)
	return &IntensityMatrix{
		ProbeIDs:  probeIDs,
		SampleIDs: sampleIDs,
		Meth:      make([]float64, n),
		Unmeth:    make([]float64, n),
	}
}

func (im *IntensityMatrix) Dims() (probes, samples int) {
	return len(im.ProbeIDs), len(im.SampleIDs)
}

func (im *IntensityMatrix) Check() error {
	want := len(im.ProbeIDs) * len(im.SampleIDs)
	if len(im.Meth) != want || len(im.Unmeth) != want {
		return fmt.Errorf("intensity matrix %d probes x %d samples: have %d meth / %d unmeth values, want %d", len(im.ProbeIDs), len(im.SampleIDs), len(im.Meth), len(im.Unmeth), want)
	}
	return nil
}

// KeepSamples returns a new matrix containing only the columns where
// keep is true, preserving column order. Row data is copied.
func (im *IntensityMatrix) KeepSamples(keep []bool) *IntensityMatrix {
	out := NewIntensityMatrix(im.ProbeIDs, keepStrings(im.SampleIDs, keep))
	nIn, nOut := len(im.SampleIDs), len(out.SampleIDs)
	for p := range im.ProbeIDs {
		o := p * nOut
		for s := 0; s < nIn; s++ {
			if keep[s] {
				out.Meth[o] = im.Meth[p*nIn+s]
				out.Unmeth[o] = im.Unmeth[p*nIn+s]
				o++
			}
		}
	}
	return out
}

// KeepProbes returns a new matrix containing only the rows where keep
// is true, preserving row order.
func (im *IntensityMatrix) KeepProbes(keep []bool) *IntensityMatrix {
	out := NewIntensityMatrix(keepStrings(im.ProbeIDs, keep), im.SampleIDs)
	nS := len(im.SampleIDs)
	o := 0
	for p := range im.ProbeIDs {
		if keep[p] {
			copy(out.Meth[o*nS:(o+1)*nS], im.Meth[p*nS:(p+1)*nS])
			copy(out.Unmeth[o*nS:(o+1)*nS], im.Unmeth[p*nS:(p+1)*nS])
			o++
		}
	}
	return out
}

// A FloatMatrix is a single-channel probes x samples matrix
// (detection p-values, beta values, M-values), probe-major like
// IntensityMatrix.
type FloatMatrix struct {
	ProbeIDs  []string
	SampleIDs []string
	Values    []float64
}

func NewFloatMatrix(probeIDs, sampleIDs []string) *FloatMatrix {
	return &FloatMatrix{
		ProbeIDs:  probeIDs,
		SampleIDs: sampleIDs,
		Values:    make([]float64, len(probeIDs)*len(sampleIDs)),
	}
}

func (m *FloatMatrix) Dims() (probes, samples int) {
	return len(m.ProbeIDs), len(m.SampleIDs)
}

func (m *FloatMatrix) At(p, s int) float64 {
	return m.Values[p*len(m.SampleIDs)+s]
}

func (m *FloatMatrix) Set(p, s int, v float64) {
	m.Values[p*len(m.SampleIDs)+s] = v
}

// Col copies column s into dst, growing it if needed.
func (m *FloatMatrix) Col(dst []float64, s int) []float64 {
	nS := len(m.SampleIDs)
	if cap(dst) < len(m.ProbeIDs) {
		dst = make([]float64, len(m.ProbeIDs))
	}
	dst = dst[:len(m.ProbeIDs)]
	for p := range m.ProbeIDs {
		dst[p] = m.Values[p*nS+s]
	}
	return dst
}

func (m *FloatMatrix) KeepSamples(keep []bool) *FloatMatrix {
	out := NewFloatMatrix(m.ProbeIDs, keepStrings(m.SampleIDs, keep))
	nIn, nOut := len(m.SampleIDs), len(out.SampleIDs)
	for p := range m.ProbeIDs {
		o := p * nOut
		for s := 0; s < nIn; s++ {
			if keep[s] {
				out.Values[o] = m.Values[p*nIn+s]
				o++
			}
		}
	}
	return out
}

func (m *FloatMatrix) KeepProbes(keep []bool) *FloatMatrix {
	out := NewFloatMatrix(keepStrings(m.ProbeIDs, keep), m.SampleIDs)
	nS := len(m.SampleIDs)
	o := 0
	for p := range m.ProbeIDs {
		if keep[p] {
			copy(out.Values[o*nS:(o+1)*nS], m.Values[p*nS:(p+1)*nS])
			o++
		}
	}
	return out
}

func keepStrings(src []string, keep []bool) []string {
	out := make([]string, 0, len(src))
	for i, s := range src {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

// sameIDs returns an IndexMismatchError unless a and b are identical
// in content and order.
func sameIDs(what string, a, b []string) error {
	if len(a) != len(b) {
		return &IndexMismatchError{What: what, Detail: fmt.Sprintf("%d vs %d entries", len(a), len(b))}
	}
	for i := range a {
		if a[i] != b[i] {
			return &IndexMismatchError{What: what, Detail: fmt.Sprintf("entry %d: %q vs %q", i, a[i], b[i])}
		}
	}
	return nil
}
