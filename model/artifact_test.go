package model

import (
	"context"
	"testing"

	"github.com/rushteam/imputekit/core"
)

func TestLoadRegressor(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		source     string
		wantName   string
		wantOutput int
		wantErr    bool
	}{
		{
			// 单输出 Booster 无法默认命名输出
			name:    "raw booster without output names",
			data:    stumpJSON,
			source:  "model.json",
			wantErr: true,
		},
		{
			name:       "xgboost_multi envelope",
			data:       `{"format":"xgboost_multi","version":"m1","output_names":["y"],"estimators":[` + stumpJSON + `]}`,
			source:     "model.json",
			wantName:   "xgboost",
			wantOutput: 1,
		},
		{
			name:       "linear yaml",
			data:       "format: linear\nversion: l1\nfeature_names: [a, b]\noutput_names: [y]\nintercepts: [1]\ncoefficients: [[1, 2]]\n",
			source:     "model.yaml",
			wantName:   "linear",
			wantOutput: 1,
		},
		{
			name:    "unknown format",
			data:    `{"format":"onnx"}`,
			source:  "model.json",
			wantErr: true,
		},
		{
			name:    "no format",
			data:    `{"version":"x"}`,
			source:  "model.json",
			wantErr: true,
		},
		{
			name:    "kserve without service",
			data:    `{"format":"kserve","feature_names":["a"]}`,
			source:  "model.json",
			wantErr: true,
		},
		{
			name:    "kserve bad endpoint",
			data:    `{"format":"kserve","feature_names":["a"],"service":{"type":"kserve","endpoint":"localhost:1","model_name":"m"}}`,
			source:  "model.json",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := LoadRegressor([]byte(tt.data), tt.source)
			if tt.wantErr {
				if !core.IsSchemaError(err) {
					t.Fatalf("expected SchemaError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Name() != tt.wantName || r.NumOutputs() != tt.wantOutput {
				t.Errorf("got %s with %d outputs", r.Name(), r.NumOutputs())
			}
			if r.Version() == "" {
				t.Error("version should come from the envelope")
			}
		})
	}
}

func TestParseArtifact_RawBooster(t *testing.T) {
	art, err := ParseArtifact([]byte(stumpJSON), "model.json")
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	if art.Format != FormatXGBoost || len(art.Estimators) != 1 {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	art.OutputNames = []string{"y"}
	r, err := art.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, err := Predict(context.Background(), r, []float64{0, 0})
	if err != nil || out[0] != 1.5 {
		t.Fatalf("Predict = %v, %v", out, err)
	}
}

func TestRegister(t *testing.T) {
	Register("test_constant", func(a *Artifact) (Regressor, error) {
		return NewLinearRegressor(a.FeatureNames, []string{"y"}, []float64{7}, [][]float64{make([]float64, len(a.FeatureNames))}, a.Version)
	})
	found := false
	for _, f := range SupportedFormats() {
		if f == "test_constant" {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered format missing from %v", SupportedFormats())
	}
	r, err := LoadRegressor([]byte(`{"format":"test_constant","feature_names":["a"]}`), "x.json")
	if err != nil {
		t.Fatalf("LoadRegressor: %v", err)
	}
	out, _ := Predict(context.Background(), r, []float64{3})
	if out[0] != 7 {
		t.Errorf("got %v, want 7", out)
	}
}
