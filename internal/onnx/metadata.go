package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Metadata describes the tensors and labels of an exported model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	// Probabilities is set when the model already ends in a softmax.
	Probabilities bool `json:"probabilities,omitempty"`
}

// LoadMetadata reads and validates a metadata file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	return meta, meta.validate()
}

func (m Metadata) validate() error {
	if len(m.Classes) == 0 {
		return errors.New("metadata lists no classes")
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid image_size %d", m.ImageSize)
	}
	if got, want := m.InputSize(), 3*m.ImageSize*m.ImageSize; got != want {
		return fmt.Errorf("input_shape holds %d values, expected %d for a 3x%dx%d image", got, want, m.ImageSize, m.ImageSize)
	}
	return nil
}

// InputSize is the number of float32 values the input tensor holds.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}
