// Package onnx serves classifier handles from ONNX models on local disk.
package onnx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/classifier"
)

const (
	modelFile          = "model.onnx"
	quantizedModelFile = "model_quantized.onnx"
	metadataFile       = "metadata.json"
)

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// Registry loads models laid out as <dir>/<model id>/model.onnx + metadata.json.
type Registry struct {
	dir     string
	libPath string
	logger  *zap.Logger

	mu     sync.Mutex
	models []*Model
}

// NewRegistry creates a registry rooted at dir. libPath points at the
// onnxruntime shared library; empty uses the platform default.
func NewRegistry(dir, libPath string, logger *zap.Logger) *Registry {
	return &Registry{dir: dir, libPath: libPath, logger: logger.Named("onnx_registry")}
}

// Acquire opens an inference session for modelID.
func (r *Registry) Acquire(ctx context.Context, task, modelID string, opts classifier.AcquireOptions) (classifier.Classifier, error) {
	if task != classifier.TaskImageClassification {
		return nil, fmt.Errorf("%w: %s", classifier.ErrUnsupportedTask, task)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := filepath.FromSlash(modelID)
	if modelID == "" || !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: invalid model id %q", classifier.ErrModelNotFound, modelID)
	}
	modelDir := filepath.Join(r.dir, rel)

	name := modelFile
	if opts.Quantized {
		name = quantizedModelFile
	}
	modelPath := filepath.Join(modelDir, name)
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", classifier.ErrModelNotFound, modelPath)
		}
		return nil, err
	}

	meta, err := LoadMetadata(filepath.Join(modelDir, metadataFile))
	if err != nil {
		return nil, err
	}

	if err := initEnvironment(r.libPath); err != nil {
		return nil, err
	}

	model, err := newModel(modelPath, meta)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.models = append(r.models, model)
	r.mu.Unlock()

	r.logger.Info("onnx model opened",
		zap.String("model_id", modelID),
		zap.String("path", modelPath),
		zap.Strings("classes", meta.Classes),
	)
	return model, nil
}

// Close releases every model the registry opened. Handles must not be used
// afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	models := r.models
	r.models = nil
	r.mu.Unlock()

	for _, m := range models {
		m.Close()
	}
	if len(models) > 0 {
		r.logger.Info("onnx models released", zap.Int("count", len(models)))
	}
}

// Model is a classifier handle over one ONNX session. The session reuses
// its tensors, so calls are serialised.
type Model struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	meta         Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newModel(modelPath string, meta Metadata) (*Model, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:      session,
		meta:         meta,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify decodes image, runs the session and returns the top predictions.
func (m *Model) Classify(ctx context.Context, data []byte, opts classifier.InvokeOptions) ([]classifier.Prediction, error) {
	if err := classifier.CheckImageSize(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	input := Preprocess(img, m.meta.ImageSize)
	if len(input) != m.meta.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", m.meta.InputSize(), len(input))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, errors.New("model is closed")
	}

	copy(m.inputTensor.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	output := make([]float32, len(m.outputTensor.GetData()))
	copy(output, m.outputTensor.GetData())

	return classifier.TopK(toPredictions(m.meta.Classes, output, m.meta.Probabilities), opts.TopK), nil
}

// Close releases the session and its tensors. It is safe to call twice.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
		m.inputTensor = nil
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
		m.outputTensor = nil
	}
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
