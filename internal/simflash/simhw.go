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
	"sync"
	"time"

	"github.com/nestybox/rotcore/internal/capabilities"
)

// Arbiter is an in-memory stand-in for the mux/arbiter pair flashmgr drives
// real hardware through. SettleDelay models the bounded arbiter-settle
// suspension point of spec.md section 5.
type Arbiter struct {
	mu          sync.Mutex
	hostGranted bool
	rotGranted  bool
	SettleDelay time.Duration
}

func NewArbiter() *Arbiter {
	return &Arbiter{hostGranted: true, SettleDelay: time.Millisecond}
}

func (a *Arbiter) RevokeHost() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostGranted = false
	return nil
}

func (a *Arbiter) GrantHost() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostGranted = true
	return nil
}

func (a *Arbiter) RevokeRot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rotGranted = false
	return nil
}

func (a *Arbiter) GrantRot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rotGranted = true
	return nil
}

func (a *Arbiter) AwaitSettle(ctx context.Context) error {
	select {
	case <-time.After(a.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BothGranted reports whether host and RoT are simultaneously granted --
// used by tests to assert the mutual-exclusion invariant of spec.md
// section 8 property 1.
func (a *Arbiter) BothGranted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostGranted && a.rotGranted
}

// IrqControl is an in-memory capabilities.HostIrqControl fake recording
// every call, so tests can assert "enable_exit_reset(true) observed" style
// scenarios (spec.md section 8, S1).
type IrqControl struct {
	mu             sync.Mutex
	ExitResetOn    bool
	ChipSelectOn   map[capabilities.ChipSelect]bool
	ForcedSelects  []capabilities.ChipSelect
}

func NewIrqControl() *IrqControl {
	return &IrqControl{ChipSelectOn: make(map[capabilities.ChipSelect]bool)}
}

func (c *IrqControl) EnableExitReset(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExitResetOn = on
	return nil
}

func (c *IrqControl) EnableChipSelect(cs capabilities.ChipSelect, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChipSelectOn[cs] = on
	return nil
}

func (c *IrqControl) ForceIrq(cs capabilities.ChipSelect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ForcedSelects = append(c.ForcedSelects, cs)
	return nil
}

func (c *IrqControl) ExitResetEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ExitResetOn
}
