package config

import (
	"testing"
	"time"

	"github.com/example/snapclassify/internal/picker"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.ModelID != "Factral/test25" || cfg.ModelTask != "image-classification" {
		t.Fatalf("unexpected model defaults %+v", cfg)
	}
	if cfg.Backend != BackendGRPC || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected transport defaults %+v", cfg)
	}
	if cfg.PredictionCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.PredictionCacheTTL)
	}
	if cfg.Picker != picker.DefaultOptions() {
		t.Fatalf("unexpected picker defaults %+v", cfg.Picker)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"MODEL_ID":             "demo/classifier",
		"MODEL_QUANTIZED":      "true",
		"CLASSIFIER_BACKEND":   "ONNX",
		"PICKER_ASPECT":        "16:9",
		"PICKER_QUALITY":       "0.8",
		"PICKER_ALLOW_EDITING": "false",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelID != "demo/classifier" || !cfg.ModelQuantized || cfg.Backend != BackendONNX {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Picker.AspectRatio != (picker.AspectRatio{Width: 16, Height: 9}) || cfg.Picker.Quality != 0.8 || cfg.Picker.AllowEditing {
		t.Fatalf("unexpected picker config %+v", cfg.Picker)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"MODEL_QUANTIZED": "maybe"},
		{"CLASSIFIER_BACKEND": "tflite"},
		{"PICKER_ASPECT": "wide"},
		{"PICKER_ASPECT": "0:3"},
		{"PICKER_QUALITY": "1.5"},
		{"PREDICTION_CACHE_TTL": "soon"},
	}
	for _, values := range cases {
		if _, err := FromEnv(env(values)); err == nil {
			t.Fatalf("expected error for %v", values)
		}
	}
}
