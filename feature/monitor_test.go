package feature

import (
	"sync"
	"testing"

	"github.com/rushteam/imputekit/core"
)

func TestMemoryMonitor(t *testing.T) {
	m := NewMemoryMonitor()
	r := NewReconciler().WithMonitor(m)
	schema := core.MustSchema([]string{"a", "b"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Reconcile(map[string]float64{"a": 1, "x": 1}, schema)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Reconciles != 20 {
		t.Errorf("reconciles = %d, want 20", snap.Reconciles)
	}
	if len(snap.Features) != 2 || snap.Features[0].FeatureName != "b" || snap.Features[1].FeatureName != "x" {
		t.Fatalf("unexpected features: %+v", snap.Features)
	}
	b, ok := m.GetFeatureStats("b")
	if !ok || b.FilledCount != 20 || b.DroppedCount != 0 {
		t.Errorf("b stats = %+v", b)
	}
	x, _ := m.GetFeatureStats("x")
	if x.DroppedCount != 20 {
		t.Errorf("x dropped = %d, want 20", x.DroppedCount)
	}
}

func TestMultiMonitor(t *testing.T) {
	var calls int
	mm := MultiMonitor{nil, MonitorFunc(func(ReconcileReport) { calls++ }), NewMemoryMonitor()}
	mm.RecordReconcile(ReconcileReport{Filled: []string{"a"}})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
