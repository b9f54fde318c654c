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

// Package config loads the recognized options of spec.md section 6 from a
// TOML file, using github.com/BurntSushi/toml the same way
// nestybox-sysbox-libs/containerdUtils parses its own settings.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds the tunables of spec.md section 6, with their documented
// defaults applied by Default.
type Config struct {
	MinWdtSeconds        uint32 `toml:"min_wdt_seconds"`
	RecWaitSeconds       uint32 `toml:"rec_wait_seconds"`
	RecoveryAttemptsCap  uint32 `toml:"recovery_attempts_cap"`
	AllowUnsecureDefault bool   `toml:"allow_unsecure_default"`
	NotifyExitReset      bool   `toml:"notify_exit_reset"`
}

// Default returns the configuration with spec.md section 6's documented
// defaults.
func Default() Config {
	return Config{
		MinWdtSeconds:        3,
		RecWaitSeconds:       10,
		RecoveryAttemptsCap:  3,
		AllowUnsecureDefault: false,
		NotifyExitReset:      true,
	}
}

// Load reads path as TOML, starting from Default() so any field the file
// omits keeps its documented default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: failed to load %s", path)
	}
	return cfg, nil
}

// LoadBytes is Load's in-memory counterpart, used by tests.
func LoadBytes(data []byte) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: failed to decode")
	}
	return cfg, nil
}
