package sources

import (
	"context"
	"testing"
)

type fleetStub struct {
	id     string
	weight float64
}

func (s *fleetStub) ID() string          { return s.id }
func (s *fleetStub) TrustWeight() float64 { return s.weight }
func (s *fleetStub) Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error) {
	return nil, nil
}

func newTestFleet(enabled map[string]bool) *Fleet {
	return NewFleet([]Connector{
		&fleetStub{id: IDAcademic, weight: 1.0},
		&fleetStub{id: IDCuratedKB, weight: 0.95},
		&fleetStub{id: IDAssistant, weight: 0.8},
		&fleetStub{id: IDWeb, weight: 0.7},
	}, enabled)
}

func TestFleetDefaultsEnabled(t *testing.T) {
	f := newTestFleet(nil)

	if got := len(f.Active()); got != 4 {
		t.Fatalf("Active() len = %d, want 4", got)
	}
	states := f.States()
	for id, on := range states {
		if !on {
			t.Errorf("source %s disabled by default", id)
		}
	}
}

func TestFleetInitialToggles(t *testing.T) {
	f := newTestFleet(map[string]bool{IDWeb: false})

	active := f.Active()
	if len(active) != 3 {
		t.Fatalf("Active() len = %d, want 3", len(active))
	}
	for _, conn := range active {
		if conn.ID() == IDWeb {
			t.Error("web connector active despite disabled toggle")
		}
	}
}

func TestFleetSetEnabled(t *testing.T) {
	f := newTestFleet(nil)

	if err := f.SetEnabled(IDWeb, false); err != nil {
		t.Fatalf("SetEnabled(web) failed: %v", err)
	}
	if states := f.States(); states[IDWeb] {
		t.Error("web still enabled after SetEnabled(false)")
	}
	if err := f.SetEnabled("bedrock_kb", true); err == nil {
		t.Error("SetEnabled accepted unknown source id")
	}

	if err := f.SetEnabled(IDWeb, true); err != nil {
		t.Fatalf("re-enable failed: %v", err)
	}
	if got := len(f.Active()); got != 4 {
		t.Errorf("Active() len = %d after re-enable, want 4", got)
	}
}

func TestFleetActiveKeepsRegistrationOrder(t *testing.T) {
	f := newTestFleet(map[string]bool{IDCuratedKB: false})

	active := f.Active()
	want := []string{IDAcademic, IDAssistant, IDWeb}
	if len(active) != len(want) {
		t.Fatalf("Active() len = %d, want %d", len(active), len(want))
	}
	for i, conn := range active {
		if conn.ID() != want[i] {
			t.Errorf("Active()[%d] = %s, want %s", i, conn.ID(), want[i])
		}
	}
}

func TestFleetReplaceKeepsToggles(t *testing.T) {
	f := newTestFleet(nil)
	if err := f.SetEnabled(IDAssistant, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	// Rebuild with a fresh assistant connector, as the admin refresh does.
	f.Replace([]Connector{
		&fleetStub{id: IDAcademic, weight: 1.0},
		&fleetStub{id: IDCuratedKB, weight: 0.95},
		&fleetStub{id: IDAssistant, weight: 0.8},
		&fleetStub{id: IDWeb, weight: 0.7},
	})

	states := f.States()
	if states[IDAssistant] {
		t.Error("assistant toggle reset by Replace")
	}
	if !states[IDAcademic] || !states[IDCuratedKB] || !states[IDWeb] {
		t.Error("unrelated toggles changed by Replace")
	}
	if got := len(f.Active()); got != 3 {
		t.Errorf("Active() len = %d, want 3", got)
	}
}
