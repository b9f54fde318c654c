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

// Package journal implements the persisted HostState record layout from
// spec.md section 6: a fixed 16-byte little-endian record written
// atomically (journal entry, then commit marker). The write path is
// grounded on calvinalkan-agent-task's internal/fs.Real.WriteFileAtomic,
// which wraps github.com/natefinch/atomic to get exactly the
// write-temp-then-rename semantics this record's "journal then commit"
// requirement needs: a reader either sees the old 16 bytes or the new 16
// bytes, never a torn mix of both.
package journal

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

const (
	magic      uint32 = 0x484F5354
	version    uint8  = 1
	recordSize        = 16

	flagAuthenticated    = 1 << 0
	flagPfmDirty         = 1 << 1
	flagUnsupportedFlash = 1 << 2
	flagBypass           = 1 << 3
)

// Record is the decoded form of the 16-byte persisted layout:
//
//	[magic:u32=0x484F5354][version:u8=1][flags:u8][attempts:u16][reserved:8]
type Record struct {
	Authenticated    bool
	PfmDirty         bool
	UnsupportedFlash bool
	Bypass           bool
	Attempts         uint16
}

func (r Record) encode() [recordSize]byte {
	var buf [recordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	buf[4] = version

	var flags byte
	if r.Authenticated {
		flags |= flagAuthenticated
	}
	if r.PfmDirty {
		flags |= flagPfmDirty
	}
	if r.UnsupportedFlash {
		flags |= flagUnsupportedFlash
	}
	if r.Bypass {
		flags |= flagBypass
	}
	buf[5] = flags

	binary.LittleEndian.PutUint16(buf[6:8], r.Attempts)
	// buf[8:16] reserved, left zero.
	return buf
}

func decode(buf [recordSize]byte) (Record, error) {
	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return Record{}, errors.New("journal: bad magic")
	}
	if buf[4] != version {
		return Record{}, errors.Errorf("journal: unsupported version %d", buf[4])
	}
	flags := buf[5]
	return Record{
		Authenticated:    flags&flagAuthenticated != 0,
		PfmDirty:         flags&flagPfmDirty != 0,
		UnsupportedFlash: flags&flagUnsupportedFlash != 0,
		Bypass:           flags&flagBypass != 0,
		Attempts:         binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// Writer is the capability HostState persists through: Commit durably
// writes a record; Load reads the last committed record, if any.
type Writer interface {
	Commit(rec Record) error
	Load() (rec Record, ok bool, err error)
}

// FileJournal persists the record to a single path using an atomic
// rename-based write, so a crash between writes never leaves a torn file.
type FileJournal struct {
	path string
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

func (j *FileJournal) Commit(rec Record) error {
	buf := rec.encode()
	if err := atomic.WriteFile(j.path, bytes.NewReader(buf[:])); err != nil {
		return errors.Wrap(err, "journal: atomic write failed")
	}
	return nil
}

func (j *FileJournal) Load() (Record, bool, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "journal: read failed")
	}
	if len(data) != recordSize {
		return Record{}, false, errors.Errorf("journal: corrupt record length %d", len(data))
	}
	var buf [recordSize]byte
	copy(buf[:], data)
	rec, err := decode(buf)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// MemJournal is an in-memory Writer used by tests and rotctl's dry run;
// it never touches disk.
type MemJournal struct {
	rec Record
	has bool
}

func NewMemJournal() *MemJournal {
	return &MemJournal{}
}

func (j *MemJournal) Commit(rec Record) error {
	j.rec = rec
	j.has = true
	return nil
}

func (j *MemJournal) Load() (Record, bool, error) {
	return j.rec, j.has, nil
}

// FailingJournal always fails Commit; used to exercise HostState's
// roll-back-on-PersistFailed path in tests.
type FailingJournal struct {
	Err error
}

func (j *FailingJournal) Commit(Record) error {
	if j.Err != nil {
		return j.Err
	}
	return errors.New("journal: simulated commit failure")
}

func (j *FailingJournal) Load() (Record, bool, error) {
	return Record{}, false, nil
}
