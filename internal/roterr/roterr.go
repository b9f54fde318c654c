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

// Package roterr implements the module-tagged error code space described in
// spec.md section 6: each module owns a byte-level sub-range, combined with
// a module tag into a 32-bit code. Internally the core represents errors as
// a typed Kind plus a wrapped cause; the packed uint32 is computed only at
// the logging/wire boundary (see Code).
package roterr

import "fmt"

// Module identifies the subsystem that raised an error, matching the
// per-module sub-ranges of spec.md section 6.
type Module uint8

const (
	ModuleHostState Module = iota + 1
	ModuleFlashMgr
	ModuleHostProcessor
	ModuleBmcRecovery
	ModuleIrqHandler
	ModuleJournal
	ModuleManifest
	ModulePit
)

func (m Module) String() string {
	switch m {
	case ModuleHostState:
		return "host_state"
	case ModuleFlashMgr:
		return "flash_mgr"
	case ModuleHostProcessor:
		return "host_processor"
	case ModuleBmcRecovery:
		return "bmc_recovery"
	case ModuleIrqHandler:
		return "irq_handler"
	case ModuleJournal:
		return "journal"
	case ModuleManifest:
		return "manifest"
	case ModulePit:
		return "pit"
	default:
		return "unknown"
	}
}

// Kind enumerates the error kinds from spec.md section 7. Kinds are stable
// across releases; new kinds are appended, never renumbered.
type Kind uint8

const (
	KindInvalidArgument Kind = iota
	KindBufferTooSmall
	KindNoActiveHash
	KindBusBusy
	KindCryptoStartFailed
	KindCryptoUpdateFailed
	KindCryptoFinishFailed
	KindCryptoUnsupported
	KindCryptoSelfTestFailed
	KindBadSignature
	KindBadManifest
	KindUnsupportedFlash
	KindIoError
	KindRecoveryExhausted
	KindCancelled
	KindTimeout
	KindPersistFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindBufferTooSmall:
		return "buffer_too_small"
	case KindNoActiveHash:
		return "no_active_hash"
	case KindBusBusy:
		return "bus_busy"
	case KindCryptoStartFailed:
		return "crypto_start_failed"
	case KindCryptoUpdateFailed:
		return "crypto_update_failed"
	case KindCryptoFinishFailed:
		return "crypto_finish_failed"
	case KindCryptoUnsupported:
		return "crypto_unsupported"
	case KindCryptoSelfTestFailed:
		return "crypto_self_test_failed"
	case KindBadSignature:
		return "bad_signature"
	case KindBadManifest:
		return "bad_manifest"
	case KindUnsupportedFlash:
		return "unsupported_flash"
	case KindIoError:
		return "io_error"
	case KindRecoveryExhausted:
		return "recovery_exhausted"
	case KindCancelled:
		return "cancelled"
	case KindTimeout:
		return "timeout"
	case KindPersistFailed:
		return "persist_failed"
	default:
		return "unknown"
	}
}

// Error is the core's error type: a module tag, a kind, and an optional
// wrapped cause. It satisfies errors.Is/As via Unwrap.
type Error struct {
	Module Module
	Kind   Kind
	Cause  error
}

func New(mod Module, kind Kind) *Error {
	return &Error{Module: mod, Kind: kind}
}

func Wrap(mod Module, kind Kind, cause error) *Error {
	return &Error{Module: mod, Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Module, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Module, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind and, unless
// target's Module is zero, the same Module; the cause is ignored. This lets
// callers write errors.Is(err, roterr.New(0, KindBusBusy)) without caring
// which module produced it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Module != 0 && t.Module != e.Module {
		return false
	}
	return t.Kind == e.Kind
}

// Code packs Module and Kind into the 32-bit wire-level code from spec.md
// section 6: low 8 bits are the specific error, upper bits the module.
func (e *Error) Code() uint32 {
	return uint32(e.Module)<<8 | uint32(e.Kind)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// as is a tiny indirection over errors.As kept local to avoid importing
// errors twice at call sites that also use this package's own Is.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
