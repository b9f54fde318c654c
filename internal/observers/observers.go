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

// Package observers implements the C7 event sinks of spec.md section 4
// (originally "Observer<E>"): pull-not-push-back consumers of the
// externally visible transitions produced by flashmgr, hostproc,
// bmcrecovery and irqhandler.
//
// The teacher's pidmonitor/fileMonitor packages model "nullable observer
// lists" implicitly via a single hardcoded channel; spec.md section 9
// calls instead for "an explicit set with deterministic iteration order;
// missing observer == empty set, not null." That is built here on top of
// github.com/deckarep/golang-set (used the same way by
// nestybox-sysbox-libs/idShiftUtils and overlayUtils for exactly this kind
// of membership tracking), wrapped with a parallel slice to recover
// deterministic iteration -- golang-set itself does not guarantee order.
package observers

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/nestybox/rotcore/internal/capabilities"
)

// Level mirrors the severity a LogObserver assigns to an Event.
type Level uint8

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Event is the single concrete event shape every C4/C5/C6 component
// publishes after an externally visible transition. Category names the
// transition (e.g. "auth.good", "recovery.started", "event.dropped");
// Fields carries structured detail for logging/metrics.
type Event struct {
	Category string
	Level    Level
	Fields   map[string]any
}

type namedSink struct {
	name string
	sink capabilities.Observer[Event]
}

// Registry is the C7 observer set: a deterministic-order collection of
// named sinks, each notified of every Event in registration order.
// Registration order, not alphabetical or category order, is what
// "deterministic iteration order" means here -- it is the order an
// operator added sinks in rotcored's wiring.
type Registry struct {
	mu      sync.Mutex
	names   mapset.Set
	ordered []namedSink
}

func NewRegistry() *Registry {
	return &Registry{names: mapset.NewThreadUnsafeSet()}
}

// Register adds a named sink. Registering the same name twice replaces the
// earlier sink in place, preserving its original position.
func (r *Registry) Register(name string, sink capabilities.Observer[Event]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names.Contains(name) {
		for i := range r.ordered {
			if r.ordered[i].name == name {
				r.ordered[i].sink = sink
				return
			}
		}
	}
	r.names.Add(name)
	r.ordered = append(r.ordered, namedSink{name: name, sink: sink})
}

// Unregister removes a named sink, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.names.Contains(name) {
		return
	}
	r.names.Remove(name)
	for i := range r.ordered {
		if r.ordered[i].name == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
}

// Notify broadcasts event to every registered sink, in registration order.
// A nil Registry is a valid empty set -- callers never need a nil check.
func (r *Registry) Notify(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	sinks := make([]namedSink, len(r.ordered))
	copy(sinks, r.ordered)
	r.mu.Unlock()

	for _, ns := range sinks {
		ns.sink.Notify(event)
	}
}
