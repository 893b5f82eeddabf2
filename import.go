// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"bufio"
	"encoding/csv"
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// importer converts scanner signal exports (one row per probe, a
// .Methylated/.Unmethylated column pair per sample) into the gob
// intensity library the rest of the pipeline consumes.
type importer struct {
	outputFile   string
	sheetFile    string
	controlsFile string
}

func (cmd *importer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.outputFile, "o", "-", "output `file` (library gob, .gz adds compression)")
	flags.StringVar(&cmd.sheetFile, "sample-sheet", "", "sample sheet csv `file`")
	flags.StringVar(&cmd.controlsFile, "controls", "", "negative control signal `file` (same layout as signal files)")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if cmd.sheetFile == "" {
		err = errors.New("cannot import without -sample-sheet argument")
		return 2
	} else if flags.NArg() == 0 {
		flags.Usage()
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

	samples, err := LoadSampleSheet(cmd.sheetFile)
	if err != nil {
		return 1
	}
	columnOf, err := sampleColumnIndex(samples)
	if err != nil {
		return 1
	}

	signals := newSignalTable(len(samples))
	for _, infile := range flags.Args() {
		err = signals.readFile(infile, columnOf)
		if err != nil {
			return 1
		}
	}
	err = signals.complete(samples, "signal")
	if err != nil {
		return 1
	}

	var controls *signalTable
	if cmd.controlsFile != "" {
		controls = newSignalTable(len(samples))
		err = controls.readFile(cmd.controlsFile, columnOf)
		if err != nil {
			return 1
		}
		err = controls.complete(samples, "control")
		if err != nil {
			return 1
		}
	}

	var output io.WriteCloser
	if cmd.outputFile == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(cmd.outputFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriterSize(output, 1<<24)
	var w io.Writer = bufw
	var gzw *pgzip.Writer
	if strings.HasSuffix(cmd.outputFile, ".gz") {
		gzw = pgzip.NewWriter(bufw)
		w = gzw
	}
	enc := gob.NewEncoder(w)

	first := LibraryEntry{ProbeIDs: signals.probeIDs}
	if controls != nil {
		first.ControlIDs = controls.probeIDs
	}
	err = enc.Encode(first)
	if err != nil {
		return 1
	}
	for i, s := range samples {
		si := SampleIntensity{
			Name:   s.Name,
			Meth:   signals.meth[i],
			Unmeth: signals.unmeth[i],
		}
		if controls != nil {
			si.CtrlMeth = controls.meth[i]
			si.CtrlUnmeth = controls.unmeth[i]
		}
		err = enc.Encode(LibraryEntry{Samples: []SampleIntensity{si}})
		if err != nil {
			return 1
		}
	}
	if gzw != nil {
		err = gzw.Close()
		if err != nil {
			return 1
		}
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.WithFields(log.Fields{
		"probes":  len(signals.probeIDs),
		"samples": len(samples),
		"output":  cmd.outputFile,
	}).Info("import done")
	return 0
}

// sampleColumnIndex maps every name a signal column may carry
// (Sample_Name or chip barcode) to the sample's sheet position.
func sampleColumnIndex(samples []Sample) (map[string]int, error) {
	idx := map[string]int{}
	for i, s := range samples {
		for _, key := range []string{s.Name, s.Barcode()} {
			if key == "" {
				continue
			}
			if j, dup := idx[key]; dup && j != i {
				return nil, fmt.Errorf("sample sheet: %q identifies both %q and %q", key, samples[j].Name, s.Name)
			}
			idx[key] = i
		}
	}
	return idx, nil
}

// A signalTable accumulates per-sample signal columns from one or
// more scanner export files. All files must agree on the probe
// column; each sample's channel columns may be spread across files
// but no channel may appear twice.
type signalTable struct {
	probeIDs []string
	meth     [][]float64
	unmeth   [][]float64
}

func newSignalTable(nSamples int) *signalTable {
	return &signalTable{
		meth:   make([][]float64, nSamples),
		unmeth: make([][]float64, nSamples),
	}
}

// readFile streams one export file into the table. The first column
// is the probe ID; other columns are matched to sheet samples by
// their "<sample>.<channel>" header. Unrecognized columns (averages,
// detection scores, columns for samples outside the sheet) are
// skipped with a warning.
func (st *signalTable) readFile(fnm string, columnOf map[string]int) error {
	f, err := open(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Printf("%s: reading", fnm)

	br := bufio.NewReaderSize(f, 1<<22)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	rdr := csv.NewReader(br)
	rdr.Comma = csvDelimiter(head)
	rdr.LazyQuotes = true
	rdr.ReuseRecord = true

	hdr, err := rdr.Read()
	if err != nil {
		return fmt.Errorf("%s: header: %w", fnm, err)
	}
	type target struct {
		sample int
		meth   bool
	}
	targets := map[int]target{} // csv column -> destination
	seen := map[target]bool{}
	for c := 1; c < len(hdr); c++ {
		name, meth, ok := splitSignalColumn(hdr[c])
		if !ok {
			log.Debugf("%s: skipping column %q", fnm, hdr[c])
			continue
		}
		s, known := columnOf[name]
		if !known {
			log.Warnf("%s: column %q matches no sheet sample, skipping", fnm, hdr[c])
			continue
		}
		tgt := target{sample: s, meth: meth}
		if seen[tgt] || meth && st.meth[s] != nil || !meth && st.unmeth[s] != nil {
			return fmt.Errorf("%s: duplicate column %q", fnm, hdr[c])
		}
		seen[tgt] = true
		targets[c] = tgt
	}
	if len(targets) == 0 {
		return fmt.Errorf("%s: no signal columns match the sample sheet", fnm)
	}
	firstFile := st.probeIDs == nil
	grow := len(st.probeIDs)
	if grow == 0 {
		grow = 1 << 16
	}
	for _, tgt := range targets {
		if tgt.meth {
			st.meth[tgt.sample] = make([]float64, 0, grow)
		} else {
			st.unmeth[tgt.sample] = make([]float64, 0, grow)
		}
	}

	row := 0
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("%s: %w", fnm, err)
		}
		if firstFile {
			// copy: the csv reader reuses record storage
			st.probeIDs = append(st.probeIDs, string([]byte(rec[0])))
		} else {
			if row >= len(st.probeIDs) {
				return &IndexMismatchError{What: "signal files", Detail: fmt.Sprintf("%s has more than %d probe rows", fnm, len(st.probeIDs))}
			}
			if rec[0] != st.probeIDs[row] {
				return &IndexMismatchError{What: "signal files", Detail: fmt.Sprintf("%s row %d: probe %q, earlier file has %q", fnm, row+2, rec[0], st.probeIDs[row])}
			}
		}
		for c, tgt := range targets {
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return fmt.Errorf("%s row %d column %q: %w", fnm, row+2, hdr[c], err)
			}
			if tgt.meth {
				st.meth[tgt.sample] = append(st.meth[tgt.sample], v)
			} else {
				st.unmeth[tgt.sample] = append(st.unmeth[tgt.sample], v)
			}
		}
		row++
	}
	if !firstFile && row < len(st.probeIDs) {
		return &IndexMismatchError{What: "signal files", Detail: fmt.Sprintf("%s has %d probe rows, earlier file has %d", fnm, row, len(st.probeIDs))}
	}
	log.Printf("%s: done, %d probes, %d columns", fnm, row, len(targets))
	return nil
}

// complete verifies that every sheet sample got both channels.
func (st *signalTable) complete(samples []Sample, what string) error {
	if len(st.probeIDs) == 0 {
		return fmt.Errorf("no probe rows in %s files", what)
	}
	var missing []string
	for i, s := range samples {
		if st.meth[i] == nil && st.unmeth[i] == nil {
			missing = append(missing, s.Name)
			continue
		}
		if len(st.meth[i]) != len(st.probeIDs) || len(st.unmeth[i]) != len(st.probeIDs) {
			return fmt.Errorf("sample %q: %d meth / %d unmeth %s values, want %d", s.Name, len(st.meth[i]), len(st.unmeth[i]), what, len(st.probeIDs))
		}
	}
	if len(missing) > 0 {
		return &IndexMismatchError{
			What:   fmt.Sprintf("sample sheet vs. %s files", what),
			Detail: fmt.Sprintf("%d sheet samples have no %s columns: %s", len(missing), what, idList(missing)),
		}
	}
	return nil
}

// splitSignalColumn decodes a signal column header into its sample
// name and channel. Both "<sample>.Methylated"/"<sample>.Unmethylated"
// and the legacy "<sample>.Signal_B"/"<sample>.Signal_A" (B=meth)
// spellings are accepted.
func splitSignalColumn(hdr string) (name string, meth, ok bool) {
	for _, suffix := range []struct {
		text string
		meth bool
	}{
		{".Methylated", true},
		{".Unmethylated", false},
		{".Signal_B", true},
		{".Signal_A", false},
	} {
		if strings.HasSuffix(hdr, suffix.text) {
			return strings.TrimSuffix(hdr, suffix.text), suffix.meth, true
		}
	}
	return "", false, false
}
