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

package observers

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LogObserver renders every Event through an injected logrus entry. State
// transitions log at info; DroppedEvent, BadSignature and recovery entry
// log at warn, matching the Level carried on the Event.
type LogObserver struct {
	log *logrus.Entry
}

func NewLogObserver(log *logrus.Entry) *LogObserver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogObserver{log: log.WithField("component", "observer")}
}

func (o *LogObserver) Notify(event Event) {
	entry := o.log.WithField("category", event.Category)
	for k, v := range event.Fields {
		entry = entry.WithField(k, v)
	}

	switch event.Level {
	case LevelError:
		entry.Error("rot event")
	case LevelWarn:
		entry.Warn("rot event")
	default:
		entry.Info("rot event")
	}
}

// CounterObserver is an in-memory tally of events by category, which rotctl
// prints at the end of a run. It stands in for a real metrics exporter (out of scope
// per spec.md section 1) while still giving operators something to read.
type CounterObserver struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func NewCounterObserver() *CounterObserver {
	return &CounterObserver{counts: make(map[string]uint64)}
}

func (o *CounterObserver) Notify(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[event.Category]++
}

// Counts returns a snapshot of the current per-category tallies.
func (o *CounterObserver) Counts() map[string]uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]uint64, len(o.counts))
	for k, v := range o.counts {
		out[k] = v
	}
	return out
}
