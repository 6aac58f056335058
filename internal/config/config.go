// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/loader"
	"github.com/example/snapclassify/internal/picker"
)

// Backend names accepted by CLASSIFIER_BACKEND.
const (
	BackendGRPC = "grpc"
	BackendONNX = "onnx"
)

// Config is the full runtime configuration.
type Config struct {
	HTTPAddr string

	ModelTask      string
	ModelID        string
	ModelQuantized bool

	Backend        string
	RegistryAddr   string
	ModelsDir      string
	ONNXRuntimeLib string

	RedisAddr          string
	PredictionCacheTTL time.Duration

	LogFile string

	MediaAuthSecret   string
	MediaAuthAudience string

	Picker picker.Options
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg := Config{
		HTTPAddr:          get("HTTP_ADDR", ":8080"),
		ModelTask:         get("MODEL_TASK", classifier.TaskImageClassification),
		ModelID:           get("MODEL_ID", loader.DefaultModelID),
		Backend:           strings.ToLower(get("CLASSIFIER_BACKEND", BackendGRPC)),
		RegistryAddr:      get("MODEL_REGISTRY_ADDR", "model-registry:50051"),
		ModelsDir:         get("MODELS_DIR", "models"),
		ONNXRuntimeLib:    get("ONNXRUNTIME_LIB", ""),
		RedisAddr:         get("REDIS_ADDR", ""),
		LogFile:           get("LOG_FILE", ""),
		MediaAuthSecret:   get("MEDIA_AUTH_SECRET", ""),
		MediaAuthAudience: get("MEDIA_AUTH_AUDIENCE", ""),
		Picker:            picker.DefaultOptions(),
	}

	var err error
	if cfg.ModelQuantized, err = strconv.ParseBool(get("MODEL_QUANTIZED", "false")); err != nil {
		return Config{}, fmt.Errorf("MODEL_QUANTIZED: %w", err)
	}
	if cfg.PredictionCacheTTL, err = time.ParseDuration(get("PREDICTION_CACHE_TTL", "5m")); err != nil {
		return Config{}, fmt.Errorf("PREDICTION_CACHE_TTL: %w", err)
	}
	if cfg.Picker.AllowEditing, err = strconv.ParseBool(get("PICKER_ALLOW_EDITING", "true")); err != nil {
		return Config{}, fmt.Errorf("PICKER_ALLOW_EDITING: %w", err)
	}
	if cfg.Picker.AspectRatio, err = ParseAspect(get("PICKER_ASPECT", "4:3")); err != nil {
		return Config{}, fmt.Errorf("PICKER_ASPECT: %w", err)
	}
	if cfg.Picker.Quality, err = strconv.ParseFloat(get("PICKER_QUALITY", "1"), 64); err != nil {
		return Config{}, fmt.Errorf("PICKER_QUALITY: %w", err)
	}
	if cfg.Picker.Quality <= 0 || cfg.Picker.Quality > 1 {
		return Config{}, fmt.Errorf("PICKER_QUALITY: %v not in (0,1]", cfg.Picker.Quality)
	}

	switch cfg.Backend {
	case BackendGRPC, BackendONNX:
	default:
		return Config{}, fmt.Errorf("CLASSIFIER_BACKEND: unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

// ParseAspect parses "W:H".
func ParseAspect(value string) (picker.AspectRatio, error) {
	w, h, ok := strings.Cut(value, ":")
	if !ok {
		return picker.AspectRatio{}, fmt.Errorf("expected W:H, got %q", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return picker.AspectRatio{}, err
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return picker.AspectRatio{}, err
	}
	if width <= 0 || height <= 0 {
		return picker.AspectRatio{}, fmt.Errorf("aspect ratio must be positive, got %q", value)
	}
	return picker.AspectRatio{Width: width, Height: height}, nil
}
