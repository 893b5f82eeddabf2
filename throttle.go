// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import "sync"

// A throttle runs callers' funcs in goroutines, at most Max at a
// time, and remembers the first error any of them returns.
type throttle struct {
	Max int

	setupOnce sync.Once
	ch        chan bool
	wg        sync.WaitGroup

	mtx sync.Mutex
	err error
}

// Go calls f in a new goroutine, first blocking until fewer than Max
// are running.
func (t *throttle) Go(f func() error) {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	t.ch <- true
	t.wg.Add(1)
	go func() {
		defer func() {
			<-t.ch
			t.wg.Done()
		}()
		t.Report(f())
	}()
}

// Report saves err as the throttle's error, unless err is nil or an
// earlier error is already saved.
func (t *throttle) Report(err error) {
	if err == nil {
		return
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *throttle) Err() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.err
}

// Wait blocks until all funcs started by Go have returned, then
// returns the first reported error.
func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}
