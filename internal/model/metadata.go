package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// DefaultMetadata describes an MNIST classifier exported with a single
// "input" of 1x1x28x28 and an "output" of 10 scores.
func DefaultMetadata() Metadata {
	classes := make([]string, 10)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return Metadata{
		InputShape:  []int64{1, 1, 28, 28},
		OutputShape: []int64{1, 10},
		InputName:   "input",
		OutputName:  "output",
		Classes:     classes,
		ImageSize:   28,
	}
}

// LoadMetadata reads the JSON sidecar at path. An empty path or a missing
// file yields DefaultMetadata; fields left out of the file keep their
// defaults.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, nil
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return metadata, nil
}

func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input shape must be NCHW, got %v", m.InputShape)
	}
	for _, d := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return fmt.Errorf("shape dimensions must be positive: input %v, output %v", m.InputShape, m.OutputShape)
		}
	}
	if m.ImageSize <= 0 || m.InputShape[2] != int64(m.ImageSize) || m.InputShape[3] != int64(m.ImageSize) {
		return fmt.Errorf("input shape %v does not take %dx%d images", m.InputShape, m.ImageSize, m.ImageSize)
	}
	if len(m.OutputShape) == 0 {
		return errors.New("output shape is empty")
	}
	if len(m.Classes) == 0 {
		return errors.New("no classes")
	}
	if n := m.OutputSize(); n < len(m.Classes) {
		return fmt.Errorf("output has %d scores for %d classes", n, len(m.Classes))
	}
	if m.InputName == "" || m.OutputName == "" {
		return errors.New("input and output names are required")
	}
	return nil
}

// InputSize is the number of float32 values the model takes.
func (m Metadata) InputSize() int {
	return product(m.InputShape)
}

func (m Metadata) OutputSize() int {
	return product(m.OutputShape)
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
