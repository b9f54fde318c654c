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

package capabilities

// AuthOutcomeKind enumerates the result of a host-authentication attempt.
type AuthOutcomeKind uint8

const (
	AuthGood AuthOutcomeKind = iota
	AuthBadSignature
	AuthBadManifest
	AuthUnsupportedFlash
	AuthIoError
)

// AuthOutcome is the result of HostProcessor.PowerOn / SoftReset. RegionIndex
// is only meaningful when Kind is AuthBadSignature. Bypass is set when the
// host was released despite a failed region walk because allow_unsecure and
// HostState.Bypass both applied (spec.md section 4.4, step 5).
type AuthOutcome struct {
	Kind        AuthOutcomeKind
	RegionIndex int
	Cause       error
	Bypass      bool
}

func (o AuthOutcome) Good() bool {
	return o.Kind == AuthGood
}
