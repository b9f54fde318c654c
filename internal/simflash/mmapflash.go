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

package simflash

import (
	"context"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/roterr"
)

// MmapFlash backs a capabilities.Flash with a memory-mapped scratch file,
// grounded on CircleCashTeam-magiskboot_go's use of edsrzf/mmap-go to
// address a flash/boot image directly rather than through buffered reads.
// rotcored's non-hardware build uses this for its default device so the
// whole address space behaves like real flash (sparse-writable, directly
// addressable) instead of an in-memory byte slice.
type MmapFlash struct {
	file    *os.File
	region  mmap.MMap
	sectors []capabilities.SectorInfo
}

// OpenMmapFlash creates (or truncates) path to size bytes and maps it.
func OpenMmapFlash(path string, size uint32, sectorSize uint32) (*MmapFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, roterr.Wrap(roterr.ModuleFlashMgr, roterr.KindIoError, err)
	}

	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
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

	return &MmapFlash{file: f, region: region, sectors: sectors}, nil
}

func (m *MmapFlash) Close() error {
	if err := m.region.Unmap(); err != nil {
		return err
	}
	return m.file.Close()
}

func (m *MmapFlash) Read(_ context.Context, offset uint32, buf []byte) (int, error) {
	if int(offset)+len(buf) > len(m.region) {
		return 0, roterr.New(roterr.ModuleFlashMgr, roterr.KindInvalidArgument)
	}
	return copy(buf, m.region[offset:offset+uint32(len(buf))]), nil
}

func (m *MmapFlash) Erase(_ context.Context, offset uint32, length uint32) error {
	if int(offset)+int(length) > len(m.region) {
		return roterr.New(roterr.ModuleFlashMgr, roterr.KindInvalidArgument)
	}
	for i := uint32(0); i < length; i++ {
		m.region[offset+i] = 0xFF
	}
	return nil
}

func (m *MmapFlash) Write(_ context.Context, offset uint32, data []byte) (int, error) {
	if int(offset)+len(data) > len(m.region) {
		return 0, roterr.New(roterr.ModuleFlashMgr, roterr.KindInvalidArgument)
	}
	return copy(m.region[offset:], data), nil
}

func (m *MmapFlash) Sectors() []capabilities.SectorInfo {
	return m.sectors
}
