package pipeline

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/model"
	"github.com/rushteam/imputekit/store"
)

func TestCachedPipeline_ReusesSuccess(t *testing.T) {
	fake := newFakeRegressor(constantRows(ones(9)))
	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(newTestContext(t, feature.UnknownError, fake)), mem, WithCacheTTL(60))

	first := cp.Run(context.Background(), primaryAsia)
	second := cp.Run(context.Background(), primaryAsia)
	if !first.OK() || !second.OK() {
		t.Fatalf("unexpected failure: %+v / %+v", first.Err, second.Err)
	}
	if fake.calls.Load() != 1 {
		t.Fatalf("regressor called %d times, want 1", fake.calls.Load())
	}
	for i, name := range core.AluminiumOutputs {
		if second.Prediction.Names[i] != name {
			t.Fatalf("cached result lost output order: %v", second.Prediction.Names)
		}
	}
	if mem.Len() != 1 {
		t.Errorf("store has %d entries, want 1", mem.Len())
	}
}

func TestCachedPipeline_FailuresNotCached(t *testing.T) {
	fake := newFakeRegressor(constantRows(ones(8)))
	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(newTestContext(t, feature.UnknownError, fake)), mem)

	for i := 0; i < 2; i++ {
		if res := cp.Run(context.Background(), primaryAsia); res.OK() {
			t.Fatal("expected failure")
		}
	}
	if fake.calls.Load() != 2 {
		t.Errorf("failed predictions must be recomputed, calls = %d", fake.calls.Load())
	}
	if mem.Len() != 0 {
		t.Errorf("store has %d entries, want 0", mem.Len())
	}
}

func TestCachedPipeline_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	fake := newFakeRegressor(func(ctx context.Context, vectors [][]float64) ([][]float64, error) {
		<-release
		return constantRows(ones(9))(ctx, vectors)
	})
	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(newTestContext(t, feature.UnknownError, fake)), mem)

	var wg sync.WaitGroup
	results := make([]core.Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cp.Run(context.Background(), primaryAsia)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, res := range results {
		if !res.OK() {
			t.Fatalf("request %d failed: %+v", i, res.Err)
		}
	}
	if fake.calls.Load() != 1 {
		t.Errorf("concurrent identical requests should share one prediction, calls = %d", fake.calls.Load())
	}
}

func TestCachedPipeline_KeyIncludesIdentity(t *testing.T) {
	cp := NewCachedPipeline(New(nil), store.NewMemoryStore(), WithCachePrefix("p:"))
	defer cp.store.Close()
	c := newTestContext(t, feature.UnknownError, newTestLinear(t))
	if c.Identity != "enc-test|lr-test" {
		t.Fatalf("identity = %q", c.Identity)
	}
	want := "p:enc-test|lr-test|" + primaryAsia.Key()
	if got := cp.key(c, primaryAsia); got != want {
		t.Errorf("key = %q, want %q", got, want)
	}

	if res := cp.Run(context.Background(), primaryAsia); !core.IsUnavailable(res.Err) {
		t.Fatalf("expected UnavailableError without context, got %+v", res)
	}
}

// weightedLinear 输出 j 对特征 i 的系数为 scale*(i+1)，未声明版本
func weightedLinear(t *testing.T, features []string, scale float64) *model.LinearRegressor {
	t.Helper()
	coef := make([][]float64, len(core.AluminiumOutputs))
	for j := range coef {
		coef[j] = make([]float64, len(features))
		for i := range coef[j] {
			coef[j][i] = scale * float64(i+1)
		}
	}
	m, err := model.NewLinearRegressor(features, nil, nil, coef, "")
	if err != nil {
		t.Fatalf("NewLinearRegressor: %v", err)
	}
	return m
}

func TestCachedPipeline_SeparatorInCategories(t *testing.T) {
	enc, err := feature.NewOneHotEncoder(testFields, [][]string{
		{"a|b", "a"},
		{"c", "b|c"},
		{"s"},
		{"g"},
	}, nil, feature.UnknownError)
	if err != nil {
		t.Fatalf("NewOneHotEncoder: %v", err)
	}
	c, err := NewContext(enc, weightedLinear(t, enc.FeatureNamesOut(), 1))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(c), mem)

	d1 := core.ProcessDescriptor{Metal: "a|b", Route: "c", Stage: "s", Region: "g"}
	d2 := core.ProcessDescriptor{Metal: "a", Route: "b|c", Stage: "s", Region: "g"}
	// d1 激活特征 0,2,4,5；d2 激活特征 1,3,4,5
	for _, tt := range []struct {
		desc core.ProcessDescriptor
		want float64
	}{
		{d1, 1 + 3 + 5 + 6},
		{d2, 2 + 4 + 5 + 6},
	} {
		res := cp.Run(context.Background(), tt.desc)
		if !res.OK() {
			t.Fatalf("%+v failed: %+v", tt.desc, res.Err)
		}
		if v, _ := res.Prediction.Get("electricity_MJ"); v != tt.want {
			t.Errorf("%+v electricity_MJ = %v, want %v", tt.desc, v, tt.want)
		}
	}
	if mem.Len() != 2 {
		t.Errorf("store has %d entries, want 2", mem.Len())
	}
}

func TestCachedPipeline_UnversionedModelsDoNotShareEntries(t *testing.T) {
	newUnversioned := func(scale float64) *Context {
		enc, err := feature.NewOneHotEncoder(testFields, testCategories, nil, feature.UnknownError)
		if err != nil {
			t.Fatalf("NewOneHotEncoder: %v", err)
		}
		c, err := NewContext(enc, weightedLinear(t, testModelFeatures, scale))
		if err != nil {
			t.Fatalf("NewContext: %v", err)
		}
		return c
	}
	mem := store.NewMemoryStore()
	defer mem.Close()

	a := NewCachedPipeline(New(newUnversioned(1)), mem)
	b := NewCachedPipeline(New(newUnversioned(1000)), mem)
	ra := a.Run(context.Background(), primaryAsia)
	rb := b.Run(context.Background(), primaryAsia)
	if !ra.OK() || !rb.OK() {
		t.Fatalf("unexpected failure: %+v / %+v", ra.Err, rb.Err)
	}
	va, _ := ra.Prediction.Get("electricity_MJ")
	vb, _ := rb.Prediction.Get("electricity_MJ")
	if va*1000 != vb {
		t.Fatalf("model B returned %v, want %v", vb, va*1000)
	}
	if mem.Len() != 2 {
		t.Errorf("store has %d entries, want 2", mem.Len())
	}
}

func TestCachedPipeline_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	release := make(chan struct{})
	fake := newFakeRegressor(func(ctx context.Context, vectors [][]float64) ([][]float64, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return constantRows(ones(9))(ctx, vectors)
	})
	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(newTestContext(t, feature.UnknownError, fake)), mem)

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	var leader, follower core.Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		leader = cp.Run(leaderCtx, primaryAsia)
	}()
	for fake.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		follower = cp.Run(context.Background(), primaryAsia)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if !follower.OK() {
		t.Fatalf("follower failed: %+v", follower.Err)
	}
	if !leader.OK() {
		t.Errorf("prediction already started should complete for the leader: %+v", leader.Err)
	}
	if fake.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", fake.calls.Load())
	}

	canceled, stop := context.WithCancel(context.Background())
	stop()
	other := primaryAsia
	other.Region = "europe"
	if res := cp.Run(canceled, other); res.Err == nil || res.Err.Kind != core.KindCanceled {
		t.Errorf("canceled caller should get CanceledError, got %+v", res)
	}
	if mem.Len() != 1 {
		t.Errorf("store has %d entries, want 1", mem.Len())
	}
}

func TestCachedPipeline_RunMapLogsPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())

	mem := store.NewMemoryStore()
	defer mem.Close()
	cp := NewCachedPipeline(New(newTestContext(t, feature.UnknownError, newTestLinear(t))), mem)
	res := cp.RunMap(ctx, map[string]any{"metal": "primary_aluminium", "route": "smelting", "stage": "production", "region": "asia"})
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Err)
	}
	if !strings.Contains(buf.String(), "inference request received") || !strings.Contains(buf.String(), "primary_aluminium") {
		t.Errorf("payload not logged: %s", buf.String())
	}
}
