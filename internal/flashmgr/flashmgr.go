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

// Package flashmgr implements HostFlashMgr (spec.md section 4.3): it moves
// the SPI mux/arbiter so the RoT can read or write one of the two flash
// devices, and guarantees host access is restored afterward on every code
// path, including panics.
package flashmgr

import (
	"context"
	"sync"
	"time"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/observers"
	"github.com/nestybox/rotcore/internal/roterr"
	"github.com/sirupsen/logrus"
)

// Arbiter is the narrow hardware-glue capability for the mux/arbiter pair
// that routes one of {RoT, host} to a flash device at a time.
type Arbiter interface {
	RevokeHost() error
	GrantHost() error
	RevokeRot() error
	GrantRot() error
	// AwaitSettle blocks until the arbiter has settled after a grant/revoke,
	// bounded by ctx's deadline.
AwaitSettle(ctx context.Context) error
}

// HostFlashMgr owns the routing of the two physical flash devices (active
// and recovery) between the RoT and the host. Nested calls to
// WithRotAccess are forbidden: a busy flag (read and set under mu, which is
// not held while op runs) marks the scoped section as taken, so any attempt
// to enter it while it is taken -- from within op or from a call running
// concurrently -- is rejected with BusBusy instead of blocking, matching
// spec.md's "attempting one fails with BusBusy".
type HostFlashMgr struct {
	mu       sync.Mutex
	busy     bool
	arbiter  Arbiter
	active   capabilities.Flash
	recovery capabilities.Flash
	activeCS capabilities.ChipSelect
	obs      *observers.Registry
	log      *logrus.Entry
}

// Deps bundles HostFlashMgr's constructor arguments.
type Deps struct {
	Arbiter     Arbiter
	ActiveFlash capabilities.Flash
	RecoveryFlash capabilities.Flash
	Observers   *observers.Registry
	Log         *logrus.Entry
}

func New(d Deps) *HostFlashMgr {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HostFlashMgr{
		arbiter:  d.Arbiter,
		active:   d.ActiveFlash,
		recovery: d.RecoveryFlash,
		activeCS: capabilities.CS0,
		obs:      d.Observers,
		log:      log.WithField("component", "flashmgr"),
	}
}

// WithRotAccess runs op with the RoT granted exclusive access to the flash
// bus: it revokes host access, waits for the arbiter to settle, grants RoT
// access, runs op, and unconditionally restores host access afterward --
// including when op panics. Nested invocations fail fast with BusBusy
// rather than deadlocking.
func WithRotAccess[T any](ctx context.Context, m *HostFlashMgr, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return zero, roterr.New(roterr.ModuleFlashMgr, roterr.KindBusBusy)
	}
	m.busy = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	if err := m.arbiter.RevokeHost(); err != nil {
		return zero, err
	}
	if err := m.arbiter.AwaitSettle(ctx); err != nil {
		// host was revoked but RoT was never granted; restore host before
		// surfacing so the finalizer invariant holds even on this early exit.
		_ = m.arbiter.GrantHost()
		return zero, err
	}
	if err := m.arbiter.GrantRot(); err != nil {
		_ = m.arbiter.GrantHost()
		return zero, err
	}

	result, opErr := func() (result T, err error) {
		defer func() {
			if r := recover(); r != nil {
				// finalizer correctness: restore host access before the
				// panic continues to unwind past this frame.
				_ = m.arbiter.RevokeRot()
				_ = m.arbiter.GrantHost()
				panic(r)
			}
		}()
		return op(ctx)
	}()

	if err := m.arbiter.RevokeRot(); err != nil {
		m.log.WithError(err).Error("revoke rot failed while restoring host access")
	}
	if err := m.arbiter.GrantHost(); err != nil {
		m.log.WithError(err).Error("grant host failed while restoring host access")
	}

	return result, opErr
}

// ReadRegion reads one FirmwareRegion's bytes into buf from the given flash
// device. It must only be called from within the op passed to
// WithRotAccess.
func ReadRegion(ctx context.Context, flash capabilities.Flash, region capabilities.FirmwareRegion, buf []byte) (int, error) {
	if uint32(len(buf)) < region.Length {
		return 0, roterr.New(roterr.ModuleFlashMgr, roterr.KindBufferTooSmall)
	}
	return flash.Read(ctx, region.Offset, buf[:region.Length])
}

// ActiveFlash returns the flash device currently mapped as CS0 (active).
func (m *HostFlashMgr) ActiveFlash() capabilities.Flash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCS == capabilities.CS0 {
		return m.active
	}
	return m.recovery
}

// RecoveryFlash returns the flash device currently mapped as CS1 (backup).
func (m *HostFlashMgr) RecoveryFlash() capabilities.Flash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCS == capabilities.CS0 {
		return m.recovery
	}
	return m.active
}

// SwapActiveFlash atomically flips which physical device is mapped as CS0
// versus CS1 and emits FlashSwapped.
func (m *HostFlashMgr) SwapActiveFlash() {
	m.mu.Lock()
	if m.activeCS == capabilities.CS0 {
		m.activeCS = capabilities.CS1
	} else {
		m.activeCS = capabilities.CS0
	}
	newCS := m.activeCS
	m.mu.Unlock()

	m.obs.Notify(observers.Event{
		Category: "flash.swapped",
		Level:    observers.LevelInfo,
		Fields:   map[string]any{"new_active_cs": newCS.String()},
	})
}

// settleTimeout is the default bound used by callers that do not supply
// their own context deadline for WithRotAccess.
const settleTimeout = 2 * time.Second

// DefaultContext returns a context bounded by settleTimeout, for callers
// that have no deadline of their own.
func DefaultContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), settleTimeout)
}
