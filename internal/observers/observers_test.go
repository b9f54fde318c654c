package observers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name   string
	events *[]string
}

func (s recordingSink) Notify(Event) {
	*s.events = append(*s.events, s.name)
}

func TestNotifyPreservesRegistrationOrder(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Register("a", recordingSink{name: "a", events: &order})
	r.Register("b", recordingSink{name: "b", events: &order})
	r.Register("c", recordingSink{name: "c", events: &order})

	r.Notify(Event{Category: "test"})
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRegisterReplaceKeepsPosition(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Register("a", recordingSink{name: "a", events: &order})
	r.Register("b", recordingSink{name: "b", events: &order})
	r.Register("a", recordingSink{name: "a2", events: &order})

	r.Notify(Event{Category: "test"})
	require.Equal(t, []string{"a2", "b"}, order)
}

func TestUnregisterRemovesSink(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Register("a", recordingSink{name: "a", events: &order})
	r.Register("b", recordingSink{name: "b", events: &order})
	r.Unregister("a")

	r.Notify(Event{Category: "test"})
	require.Equal(t, []string{"b"}, order)
}

func TestNilRegistryNotifyIsNoop(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.Notify(Event{Category: "test"})
	})
}

func TestCounterObserverTallies(t *testing.T) {
	c := NewCounterObserver()
	c.Notify(Event{Category: "auth.good"})
	c.Notify(Event{Category: "auth.good"})
	c.Notify(Event{Category: "auth.failed"})

	counts := c.Counts()
	require.Equal(t, uint64(2), counts["auth.good"])
	require.Equal(t, uint64(1), counts["auth.failed"])
}
