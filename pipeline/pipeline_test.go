package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/pkg/dsl"
)

func TestPipeline_Run(t *testing.T) {
	p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)))
	res := p.Run(context.Background(), primaryAsia)
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Err)
	}
	if res.Stage != core.StageSucceeded {
		t.Errorf("stage = %s", res.Stage)
	}

	pred := res.Prediction
	if pred.Len() != 9 {
		t.Fatalf("got %d outputs, want 9", pred.Len())
	}
	for i, name := range core.AluminiumOutputs {
		if pred.Names[i] != name {
			t.Errorf("output %d = %s, want %s", i, pred.Names[i], name)
		}
		v, ok := pred.Get(name)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, %v", name, v, ok)
		}
	}
	// 激活特征 4 个（region_oceania 被补 0），输出 j = 10j + (j+1)*4
	if v, _ := pred.Get("electricity_MJ"); v != 4 {
		t.Errorf("electricity_MJ = %v, want 4", v)
	}
	if v, _ := pred.Get("natural_gas_MJ"); v != 18 {
		t.Errorf("natural_gas_MJ = %v, want 18", v)
	}
}

func TestPipeline_UnknownCategory(t *testing.T) {
	atlantis := primaryAsia
	atlantis.Region = "atlantis"

	t.Run("error policy", func(t *testing.T) {
		p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)))
		res := p.Run(context.Background(), atlantis)
		if res.OK() {
			t.Fatal("expected failure")
		}
		if res.Err.Kind != core.KindEncoding || res.Stage != core.StageEncoding {
			t.Fatalf("got %s at %s", res.Err.Kind, res.Stage)
		}
		if res.Err.Field != "region" || res.Err.Value != "atlantis" {
			t.Errorf("error should name region=atlantis, got %s=%s", res.Err.Field, res.Err.Value)
		}
	})

	t.Run("ignore policy", func(t *testing.T) {
		p := New(newTestContext(t, feature.UnknownIgnore, newTestLinear(t)))
		res := p.Run(context.Background(), atlantis)
		if !res.OK() {
			t.Fatalf("unexpected failure: %+v", res.Err)
		}
		// region_asia 不再激活：激活特征 3 个
		if v, _ := res.Prediction.Get("electricity_MJ"); v != 3 {
			t.Errorf("electricity_MJ = %v, want 3", v)
		}
	})
}

func TestPipeline_NonFiniteOutput(t *testing.T) {
	values := ones(9)
	values[4] = math.NaN()
	p := New(newTestContext(t, feature.UnknownError, newFakeRegressor(constantRows(values))))

	res := p.Run(context.Background(), primaryAsia)
	if res.OK() || res.Err.Kind != core.KindPrediction || res.Stage != core.StageShaping {
		t.Fatalf("expected PredictionError at shaping, got %+v", res)
	}
	if res.Err.Field != "coal_MJ" {
		t.Errorf("field = %q, want coal_MJ", res.Err.Field)
	}
	if res.Prediction != nil {
		t.Error("no partial prediction may be returned")
	}
}

func TestPipeline_OutputLengthMismatch(t *testing.T) {
	p := New(newTestContext(t, feature.UnknownError, newFakeRegressor(constantRows(ones(8)))))
	res := p.Run(context.Background(), primaryAsia)
	if res.OK() || res.Err.Kind != core.KindShape {
		t.Fatalf("expected ShapeError, got %+v", res)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)))
	first := p.Run(context.Background(), primaryAsia)
	for i := 0; i < 5; i++ {
		again := p.Run(context.Background(), primaryAsia)
		for _, name := range core.AluminiumOutputs {
			a, _ := first.Prediction.Get(name)
			b, _ := again.Prediction.Get(name)
			if a != b {
				t.Fatalf("run %d: %s changed %v -> %v", i, name, a, b)
			}
		}
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)))
	want := p.Run(context.Background(), primaryAsia)

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.Run(context.Background(), primaryAsia)
			if !res.OK() {
				errs <- res.Err.Message
				return
			}
			for _, name := range core.AluminiumOutputs {
				a, _ := want.Prediction.Get(name)
				b, _ := res.Prediction.Get(name)
				if a != b {
					errs <- name
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent run differs: %s", e)
	}
}

func TestPipeline_RunBatch(t *testing.T) {
	fake := newFakeRegressor(constantRows(ones(9)))
	p := New(newTestContext(t, feature.UnknownError, fake))

	bad := primaryAsia
	bad.Metal = "lead"
	results := p.RunBatch(context.Background(), []core.ProcessDescriptor{primaryAsia, bad, primaryAsia})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].OK() || !results[2].OK() {
		t.Fatalf("valid rows must succeed: %+v / %+v", results[0].Err, results[2].Err)
	}
	if results[1].OK() || results[1].Err.Kind != core.KindEncoding || results[1].Err.Field != "metal" {
		t.Fatalf("row 1 should fail encoding on metal, got %+v", results[1])
	}
	if fake.calls.Load() != 1 {
		t.Errorf("surviving rows should share one PredictBatch call, got %d", fake.calls.Load())
	}
}

func TestPipeline_Canceled(t *testing.T) {
	fake := newFakeRegressor(constantRows(ones(9)))
	p := New(newTestContext(t, feature.UnknownError, fake))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Run(ctx, primaryAsia)
	if res.OK() || res.Err.Kind != core.KindCanceled || res.Stage != core.StagePredicting {
		t.Fatalf("expected CanceledError before predicting, got %+v", res)
	}
	if fake.calls.Load() != 0 {
		t.Error("regressor must not be called after cancellation")
	}

	batch := p.RunBatch(ctx, []core.ProcessDescriptor{primaryAsia})
	if batch[0].OK() || !errors.Is(batch[0].Err, core.ErrCanceled) {
		t.Fatalf("expected canceled batch row, got %+v", batch[0])
	}
}

func TestPipeline_CanceledDuringPrediction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := newFakeRegressor(func(ctx context.Context, _ [][]float64) ([][]float64, error) {
		cancel()
		return nil, ctx.Err()
	})
	p := New(newTestContext(t, feature.UnknownError, fake))
	res := p.Run(ctx, primaryAsia)
	if res.OK() || res.Err.Kind != core.KindCanceled {
		t.Fatalf("expected CanceledError, got %+v", res)
	}
}

func TestPipeline_Unavailable(t *testing.T) {
	p := New(nil)
	res := p.Run(context.Background(), primaryAsia)
	if res.OK() || !core.IsUnavailable(res.Err) {
		t.Fatalf("expected UnavailableError, got %+v", res)
	}
	for _, r := range p.RunBatch(context.Background(), []core.ProcessDescriptor{primaryAsia, primaryAsia}) {
		if !core.IsUnavailable(r.Err) {
			t.Fatalf("expected UnavailableError, got %+v", r)
		}
	}

	if old := p.Swap(newTestContext(t, feature.UnknownError, newTestLinear(t))); old != nil {
		t.Error("previous context should be nil")
	}
	if res := p.Run(context.Background(), primaryAsia); !res.OK() {
		t.Fatalf("run after swap failed: %+v", res.Err)
	}
}

func TestPipeline_RunMap(t *testing.T) {
	p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)))

	res := p.RunMap(context.Background(), map[string]any{"metal": "primary_aluminium", "route": "smelting", "stage": "production"})
	if res.OK() || res.Err.Kind != core.KindSchema || res.Stage != core.StageReceived {
		t.Fatalf("expected SchemaError at received, got %+v", res)
	}

	res = p.RunMap(context.Background(), map[string]any{
		"metal": "primary_aluminium", "route": "smelting", "stage": "production", "region": "asia", "note": "extra",
	})
	if !res.OK() {
		t.Fatalf("extra keys must be ignored: %+v", res.Err)
	}
}

func TestPipeline_Rules(t *testing.T) {
	values := ones(9)
	values[2] = -3
	rules, err := dsl.CompileAll(dsl.DefaultRules())
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	p := New(newTestContext(t, feature.UnknownError, newFakeRegressor(constantRows(values))), WithRules(rules))

	res := p.Run(context.Background(), primaryAsia)
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Err)
	}
	if len(res.Flags) != 1 || res.Flags[0].Rule != dsl.NegativeOutputRule.Name {
		t.Fatalf("flags = %+v", res.Flags)
	}
	if v, _ := res.Prediction.Get("diesel_MJ"); v != -3 {
		t.Errorf("flagged values must not be modified, diesel_MJ = %v", v)
	}
}

func TestPipeline_Monitor(t *testing.T) {
	mon := feature.NewMemoryMonitor()
	p := New(newTestContext(t, feature.UnknownError, newTestLinear(t)), WithMonitor(mon))
	p.Run(context.Background(), primaryAsia)

	filled, ok := mon.GetFeatureStats("region_oceania")
	if !ok || filled.FilledCount != 1 {
		t.Errorf("region_oceania should be filled once, got %+v", filled)
	}
	dropped, ok := mon.GetFeatureStats("region_europe")
	if !ok || dropped.DroppedCount != 1 {
		t.Errorf("region_europe should be dropped once, got %+v", dropped)
	}
}

func TestNewContext(t *testing.T) {
	c := newTestContext(t, feature.UnknownIgnore, newTestLinear(t))
	if c.Policy != feature.UnknownIgnore {
		t.Errorf("policy = %q", c.Policy)
	}
	if len(c.MissingFeatures) != 1 || c.MissingFeatures[0] != "region_oceania" {
		t.Errorf("missing = %v", c.MissingFeatures)
	}
	if len(c.UnusedFeatures) != 1 || c.UnusedFeatures[0] != "region_europe" {
		t.Errorf("unused = %v", c.UnusedFeatures)
	}
	info := c.Info()
	if info.Model != "linear" || info.ModelVersion != "lr-test" || len(info.Outputs) != 9 {
		t.Errorf("info = %+v", info)
	}

	enc := newTestEncoder(t, feature.UnknownError)
	tests := []struct {
		name string
		fn   func() (*Context, error)
	}{
		{name: "nil encoder", fn: func() (*Context, error) { return NewContext(nil, newTestLinear(t)) }},
		{name: "nil regressor", fn: func() (*Context, error) { return NewContext(enc, nil) }},
		{name: "duplicate features", fn: func() (*Context, error) {
			f := newFakeRegressor(nil)
			f.features = []string{"a", "a"}
			return NewContext(enc, f)
		}},
		{name: "expected outputs", fn: func() (*Context, error) {
			f := newFakeRegressor(nil)
			f.outputs = []string{"electricity_MJ"}
			return NewContext(enc, f, WithExpectedOutputs(core.AluminiumOutputs))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); !core.IsSchemaError(err) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestShape(t *testing.T) {
	schema := core.MustSchema([]string{"a", "b"})
	tests := []struct {
		name     string
		raw      []float64
		wantKind core.ErrorKind
	}{
		{name: "ok", raw: []float64{1, -2}},
		{name: "short", raw: []float64{1}, wantKind: core.KindShape},
		{name: "long", raw: []float64{1, 2, 3}, wantKind: core.KindShape},
		{name: "inf", raw: []float64{1, math.Inf(1)}, wantKind: core.KindPrediction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Shape(tt.raw, schema)
			if tt.wantKind == "" {
				if err != nil || res.Values["b"] != -2 {
					t.Fatalf("got %+v, %v", res, err)
				}
				return
			}
			de := core.AsDomainError(err)
			if de == nil || de.Kind != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}
