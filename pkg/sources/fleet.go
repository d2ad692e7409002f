package sources

import (
	"fmt"
	"sort"
	"sync"
)

// Fleet tracks the constructed connectors and their enabled state. The
// administrative surface flips toggles at runtime; Active hands the enabled
// subset to the orchestrator. Construction order is preserved so fan-out
// ordering stays stable across toggles.
type Fleet struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]Connector
	enabled map[string]bool
}

// NewFleet registers connectors with their initial toggle state. Connectors
// absent from the enabled map start enabled.
func NewFleet(connectors []Connector, enabled map[string]bool) *Fleet {
	f := &Fleet{
		byID:    make(map[string]Connector, len(connectors)),
		enabled: make(map[string]bool, len(connectors)),
	}
	for _, conn := range connectors {
		id := conn.ID()
		if _, dup := f.byID[id]; dup {
			continue
		}
		f.order = append(f.order, id)
		f.byID[id] = conn
		on, ok := enabled[id]
		if !ok {
			on = true
		}
		f.enabled[id] = on
	}
	return f
}

// Replace swaps the connector set, keeping the toggle state of ids that
// survive the swap. Used after prompt updates rebuild the assistant
// connector.
func (f *Fleet) Replace(connectors []Connector) {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous := f.enabled
	f.order = f.order[:0]
	f.byID = make(map[string]Connector, len(connectors))
	f.enabled = make(map[string]bool, len(connectors))
	for _, conn := range connectors {
		id := conn.ID()
		if _, dup := f.byID[id]; dup {
			continue
		}
		f.order = append(f.order, id)
		f.byID[id] = conn
		on, ok := previous[id]
		if !ok {
			on = true
		}
		f.enabled[id] = on
	}
}

// Active returns the enabled connectors in registration order.
func (f *Fleet) Active() []Connector {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Connector, 0, len(f.order))
	for _, id := range f.order {
		if f.enabled[id] {
			out = append(out, f.byID[id])
		}
	}
	return out
}

// SetEnabled flips one source's toggle. Unknown ids are rejected so a typo
// in an administrative request cannot silently create phantom state.
func (f *Fleet) SetEnabled(id string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[id]; !ok {
		return fmt.Errorf("unknown source %q", id)
	}
	f.enabled[id] = on
	return nil
}

// States returns a copy of the toggle map for the stats surface.
func (f *Fleet) States() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]bool, len(f.enabled))
	for id, on := range f.enabled {
		out[id] = on
	}
	return out
}

// IDs returns every registered source id, sorted.
func (f *Fleet) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, len(f.order))
	copy(out, f.order)
	sort.Strings(out)
	return out
}
