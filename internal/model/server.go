package model

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Brownie44l1/digitpad/internal/logger"
	"github.com/Brownie44l1/digitpad/internal/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrShapeMismatch is returned by Predict for a tensor the model cannot take.
var ErrShapeMismatch = errors.New("tensor shape does not match model input")

// Server owns one ONNX session and the tensors bound to it.
type Server struct {
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	device       Device
	logger       *logger.Logger

	// bound tensors are shared by every Run
	mu sync.Mutex
}

func NewServer(opts Options, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file %s: %w", opts.ModelPath, err)
	}

	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s := &Server{
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		logger:       log,
	}

	for _, device := range candidates(opts.Device) {
		session, err := s.newSession(opts.ModelPath, device)
		if err == nil {
			s.session = session
			s.device = device
			break
		}
		if opts.Device != DeviceAuto || device == DeviceCPU {
			s.Close()
			return nil, fmt.Errorf("failed to create ONNX session on %s: %w", device, err)
		}
		log.Warning("%s unavailable, falling back to cpu: %v", device, err)
	}

	log.Info("Model %s ready on %s (input %v, %d classes)",
		opts.ModelPath, s.device, metadata.InputShape, len(metadata.Classes))
	return s, nil
}

func candidates(d Device) []Device {
	switch d {
	case DeviceCUDA:
		return []Device{DeviceCUDA}
	case DeviceCPU:
		return []Device{DeviceCPU}
	default:
		return []Device{DeviceCUDA, DeviceCPU}
	}
}

func (s *Server) newSession(modelPath string, device Device) (*ort.AdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if device == DeviceCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()

		if err := cudaOptions.Update(map[string]string{"device_id": "0"}); err != nil {
			return nil, fmt.Errorf("failed to configure CUDA: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA: %w", err)
		}
	}

	return ort.NewAdvancedSession(modelPath,
		[]string{s.Metadata.InputName}, []string{s.Metadata.OutputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		options)
}

// Device reports where the session runs.
func (s *Server) Device() Device {
	return s.device
}

// ImageSize is the side of the square image the model takes.
func (s *Server) ImageSize() int {
	return s.Metadata.ImageSize
}

// Classes is the number of labels the model predicts.
func (s *Server) Classes() int {
	return len(s.Metadata.Classes)
}

// Predict runs one inference pass.
func (s *Server) Predict(t preprocess.Tensor) (*Prediction, error) {
	if err := s.checkShape(t); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), t.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return newPrediction(s.outputTensor.GetData(), s.Metadata.Classes), nil
}

func (s *Server) checkShape(t preprocess.Tensor) error {
	want := s.Metadata.InputShape
	if len(want) != len(t.Shape) {
		return fmt.Errorf("%w: want %v, got %v", ErrShapeMismatch, want, t.Shape)
	}
	for i := range want {
		if want[i] != t.Shape[i] {
			return fmt.Errorf("%w: want %v, got %v", ErrShapeMismatch, want, t.Shape)
		}
	}
	if len(t.Data) != s.Metadata.InputSize() {
		return fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, s.Metadata.InputSize(), len(t.Data))
	}
	return nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
