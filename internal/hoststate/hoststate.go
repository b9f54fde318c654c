//
// Copyright 2024-2026 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package hoststate implements the persistent+volatile record of a host's
// authentication and recovery history (spec.md section 3, "HostState").
//
// Thread-safety follows the teacher's own lock-around-a-map convention
// (nestybox-sysbox-libs/pidmonitor, fileMonitor): a single sync.RWMutex
// guards all fields, readers take RLock, the one mutator path takes Lock.
// On top of that, every mutation of a persistent flag is journaled before
// the lock is released, per spec.md section 4.2.
package hoststate

import (
	"sync"

	"github.com/nestybox/rotcore/internal/journal"
	"github.com/nestybox/rotcore/internal/roterr"
	"github.com/sirupsen/logrus"
)

// Flags is the set of persistent boolean fields plus the recovery attempt
// counter, exactly as laid out in spec.md section 3 and serialised by
// internal/journal.
type Flags struct {
	Authenticated    bool
	PfmDirty         bool
	UnsupportedFlash bool
	Bypass           bool
	RecoveryAttempts uint32
}

// HostState is the single per-host record. Created at init with all flags
// false; mutated only by hostproc and irqhandler on boot events.
type HostState struct {
	mu   sync.RWMutex
	log  *logrus.Entry
	jnl  journal.Writer
	flag Flags
}

// New constructs a HostState backed by jnl for persistence. If jnl already
// holds a committed record (e.g. after a power-loss restart), that record's
// flags become the initial in-memory state; otherwise the zero value is
// used and immediately committed.
func New(jnl journal.Writer, log *logrus.Entry) (*HostState, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	hs := &HostState{jnl: jnl, log: log.WithField("component", "hoststate")}

	existing, ok, err := jnl.Load()
	if err != nil {
		return nil, roterr.Wrap(roterr.ModuleHostState, roterr.KindPersistFailed, err)
	}
	if ok {
		hs.flag = Flags{
			Authenticated:    existing.Authenticated,
			PfmDirty:         existing.PfmDirty,
			UnsupportedFlash: existing.UnsupportedFlash,
			Bypass:           existing.Bypass,
			RecoveryAttempts: uint32(existing.Attempts),
		}
		return hs, nil
	}

	if err := hs.commitLocked(); err != nil {
		return nil, err
	}
	return hs, nil
}

// Snapshot returns a copy of the current flags under a shared lock.
func (hs *HostState) Snapshot() Flags {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.flag
}

func (hs *HostState) Authenticated() bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.flag.Authenticated
}

func (hs *HostState) UnsupportedFlash() bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.flag.UnsupportedFlash
}

func (hs *HostState) Bypass() bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.flag.Bypass
}

func (hs *HostState) RecoveryAttempts() uint32 {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.flag.RecoveryAttempts
}

// Mutate applies fn to a copy of the current flags and commits the result
// unconditionally: it swaps it into the in-memory record and journals it
// before releasing the lock. If the journal write fails the in-memory value
// is rolled back to its previous value and PersistFailed is returned.
func (hs *HostState) Mutate(fn func(*Flags)) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	next := hs.flag
	fn(&next)

	prev := hs.flag
	hs.flag = next
	if err := hs.commitLocked(); err != nil {
		// roll back: the journal write failed, so the in-memory value must
		// not have advanced past what was actually persisted.
		hs.flag = prev
		return err
	}
	return nil
}

// RecordAuthSuccess clears RecoveryAttempts and sets Authenticated, as
// required by spec.md section 4.4 step 4.
func (hs *HostState) RecordAuthSuccess() error {
	return hs.Mutate(func(f *Flags) {
		f.Authenticated = true
		f.RecoveryAttempts = 0
	})
}

// RecordAuthFailure increments RecoveryAttempts and clears Authenticated,
// as required by spec.md section 4.4 step 5.
func (hs *HostState) RecordAuthFailure() error {
	return hs.Mutate(func(f *Flags) {
		f.Authenticated = false
		f.RecoveryAttempts++
	})
}

// ClearPfmDirty implements the "set pfm_dirty=false" action of spec.md
// section 4.4 step 2 (manifest verification failure).
func (hs *HostState) ClearPfmDirty() error {
	return hs.Mutate(func(f *Flags) {
		f.PfmDirty = false
	})
}

// SetUnsupportedFlash records that the flash geometry/vendor was rejected
// by policy.
func (hs *HostState) SetUnsupportedFlash(v bool) error {
	return hs.Mutate(func(f *Flags) {
		f.UnsupportedFlash = v
	})
}

// SetBypass toggles provisioning-mode bypass.
func (hs *HostState) SetBypass(v bool) error {
	return hs.Mutate(func(f *Flags) {
		f.Bypass = v
	})
}

// commitLocked journals the current in-memory flags. Caller must hold hs.mu.
func (hs *HostState) commitLocked() error {
	rec := journal.Record{
		Authenticated:    hs.flag.Authenticated,
		PfmDirty:         hs.flag.PfmDirty,
		UnsupportedFlash: hs.flag.UnsupportedFlash,
		Bypass:           hs.flag.Bypass,
		Attempts:         uint16(hs.flag.RecoveryAttempts),
	}
	if err := hs.jnl.Commit(rec); err != nil {
		hs.log.WithError(err).Warn("host state journal commit failed")
		return roterr.Wrap(roterr.ModuleHostState, roterr.KindPersistFailed, err)
	}
	return nil
}
