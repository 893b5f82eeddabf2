// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
)

// A SampleIntensity holds one sample's raw two-channel signal, in the
// probe order given by the enclosing library's ProbeIDs. CtrlMeth and
// CtrlUnmeth (negative control probes, used for background
// estimation) follow ControlIDs and may be empty.
type SampleIntensity struct {
	Name       string
	Meth       []float64
	Unmeth     []float64
	CtrlMeth   []float64
	CtrlUnmeth []float64
}

// A LibraryEntry is one gob-encoded chunk of an intensity library
// stream. The first entry carries ProbeIDs (and ControlIDs, if the
// platform's negative controls were exported); later entries may
// repeat them verbatim or leave them empty.
type LibraryEntry struct {
	ProbeIDs   []string
	ControlIDs []string
	Samples    []SampleIntensity
}

// DecodeLibrary reads a stream of gob-encoded LibraryEntry chunks,
// calling cb for each entry.
func DecodeLibrary(rdr io.Reader, gz bool, cb func(*LibraryEntry) error) error {
	var r io.Reader = bufio.NewReaderSize(rdr, 1<<22)
	if gz {
		gzr, err := pgzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gzr.Close()
		r = gzr
	}
	dec := gob.NewDecoder(r)
	for {
		var ent LibraryEntry
		err := dec.Decode(&ent)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("gob decode: %w", err)
		}
		err = cb(&ent)
		if err != nil {
			return err
		}
	}
}

// LoadIntensities reads an intensity library file and arranges its
// samples into matrix columns following the order of samples (i.e.,
// the sample sheet). The sheet and the library must name exactly the
// same samples. The returned controls matrix is nil when the library
// carries no negative control signal.
func LoadIntensities(fnm string, samples []Sample) (im, controls *IntensityMatrix, err error) {
	f, err := os.Open(fnm)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return loadIntensities(f, strings.HasSuffix(fnm, ".gz"), samples)
}

func loadIntensities(rdr io.Reader, gz bool, samples []Sample) (*IntensityMatrix, *IntensityMatrix, error) {
	var probeIDs, controlIDs []string
	bySample := map[string]SampleIntensity{}
	err := DecodeLibrary(rdr, gz, func(ent *LibraryEntry) error {
		if len(ent.ProbeIDs) > 0 {
			if probeIDs == nil {
				probeIDs = ent.ProbeIDs
			} else if err := sameIDs("library probe lists", probeIDs, ent.ProbeIDs); err != nil {
				return err
			}
		}
		if len(ent.ControlIDs) > 0 {
			if controlIDs == nil {
				controlIDs = ent.ControlIDs
			} else if err := sameIDs("library control lists", controlIDs, ent.ControlIDs); err != nil {
				return err
			}
		}
		for _, si := range ent.Samples {
			if _, dup := bySample[si.Name]; dup {
				return fmt.Errorf("library contains sample %q twice", si.Name)
			}
			bySample[si.Name] = si
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if probeIDs == nil {
		return nil, nil, errors.New("library carries no probe list")
	}

	sampleIDs := make([]string, len(samples))
	inSheet := map[string]bool{}
	var missing []string
	for i, s := range samples {
		sampleIDs[i] = s.Name
		inSheet[s.Name] = true
		if _, ok := bySample[s.Name]; !ok {
			missing = append(missing, s.Name)
		}
	}
	var extra []string
	for name := range bySample {
		if !inSheet[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	if len(missing) > 0 || len(extra) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, fmt.Sprintf("%d sheet samples not in library: %s", len(missing), idList(missing)))
		}
		if len(extra) > 0 {
			parts = append(parts, fmt.Sprintf("%d library samples not in sheet: %s", len(extra), idList(extra)))
		}
		return nil, nil, &IndexMismatchError{What: "sample sheet vs. intensity library", Detail: strings.Join(parts, "; ")}
	}

	im := NewIntensityMatrix(probeIDs, sampleIDs)
	var controls *IntensityMatrix
	if len(controlIDs) > 0 {
		controls = NewIntensityMatrix(controlIDs, sampleIDs)
	}
	nS := len(sampleIDs)
	for s, name := range sampleIDs {
		si := bySample[name]
		if len(si.Meth) != len(probeIDs) || len(si.Unmeth) != len(probeIDs) {
			return nil, nil, fmt.Errorf("sample %q has %d meth / %d unmeth values, want %d", name, len(si.Meth), len(si.Unmeth), len(probeIDs))
		}
		for p, v := range si.Meth {
			im.Meth[p*nS+s] = v
		}
		for p, v := range si.Unmeth {
			im.Unmeth[p*nS+s] = v
		}
		if controls == nil {
			continue
		}
		if len(si.CtrlMeth) != len(controlIDs) || len(si.CtrlUnmeth) != len(controlIDs) {
			return nil, nil, fmt.Errorf("sample %q has %d meth / %d unmeth control values, want %d", name, len(si.CtrlMeth), len(si.CtrlUnmeth), len(controlIDs))
		}
		for p, v := range si.CtrlMeth {
			controls.Meth[p*nS+s] = v
		}
		for p, v := range si.CtrlUnmeth {
			controls.Unmeth[p*nS+s] = v
		}
	}
	return im, controls, nil
}
