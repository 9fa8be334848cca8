package model

import (
	"fmt"
	"strings"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Prediction is the classifier's answer for one drawing.
type Prediction struct {
	Digit      int       `json:"digit"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"scores"`
}

// Device selects the execution provider for the ONNX session.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
		return d, nil
	case "":
		return DeviceAuto, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or cuda)", s)
	}
}

// Options configures NewServer.
type Options struct {
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
	Device            Device
}
