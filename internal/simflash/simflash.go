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

// Package simflash provides in-memory/file-backed stand-ins for the Flash
// and Manifest capabilities (spec.md section 4.1), used by this module's
// own tests and by rotctl's dry-run mode where no real SPI hardware is
// attached.
//
// The backing store is an afero.Fs (the same abstraction
// nestybox-sysbox-libs/linuxUtils, idMap and shiftfs use for testable
// filesystem access) rooted at a scratch file, so a flash image can be
// inspected with ordinary file tools in tests without touching real
// hardware.
package simflash

import (
	"context"
	"io"
	"os"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/roterr"
	"github.com/spf13/afero"
)

// Flash is an afero-backed capabilities.Flash over a single scratch file
// representing one SPI flash device's address space.
type Flash struct {
	fs      afero.Fs
	path    string
	sectors []capabilities.SectorInfo
}

// New creates a Flash of the given size (zero-filled) backed by path on fs.
func New(fs afero.Fs, path string, size uint32, sectorSize uint32) (*Flash, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}

	var sectors []capabilities.SectorInfo
	for off := uint32(0); off < size; off += sectorSize {
		length := sectorSize
		if off+length > size {
			length = size - off
		}
		sectors = append(sectors, capabilities.SectorInfo{Offset: off, Length: length})
	}

	return &Flash{fs: fs, path: path, sectors: sectors}, nil
}

// NewMemMapFs is a convenience constructor using an in-memory afero
// filesystem, for tests that want complete isolation from the real
// filesystem.
func NewMemMapFs(path string, size uint32, sectorSize uint32) (*Flash, error) {
	return New(afero.NewMemMapFs(), path, size, sectorSize)
}

func (f *Flash) Read(_ context.Context, offset uint32, buf []byte) (int, error) {
	file, err := f.fs.Open(f.path)
	if err != nil {
		return 0, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	defer file.Close()

	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	return n, nil
}

func (f *Flash) Erase(_ context.Context, offset uint32, length uint32) error {
	file, err := f.fs.OpenFile(f.path, os.O_RDWR, 0o600)
	if err != nil {
		return roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	defer file.Close()

	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	blank := make([]byte, length)
	for i := range blank {
		blank[i] = 0xFF
	}
	if _, err := file.Write(blank); err != nil {
		return roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	return nil
}

func (f *Flash) Write(_ context.Context, offset uint32, data []byte) (int, error) {
	file, err := f.fs.OpenFile(f.path, os.O_RDWR, 0o600)
	if err != nil {
		return 0, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	defer file.Close()

	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	n, err := file.Write(data)
	if err != nil {
		return n, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	return n, nil
}

func (f *Flash) Sectors() []capabilities.SectorInfo {
	return f.sectors
}

// Bytes returns a copy of the full image, for test assertions.
func (f *Flash) Bytes() ([]byte, error) {
	return afero.ReadFile(f.fs, f.path)
}
