package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string // ONNX Runtime library; empty uses the runtime default
	Device            string
	LogDirectory      string // empty logs to the console only
	MaxUploadMB       int
	CanvasSize        int
}

// Load reads .env (if present) and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		ModelPath:         getEnv("MODEL_PATH", filepath.Join(".", "models", "mnist.onnx")),
		MetadataPath:      getEnv("METADATA_PATH", filepath.Join(".", "models", "mnist_metadata.json")),
		SharedLibraryPath: getEnv("ONNXRUNTIME_LIB", ""),
		Device:            getEnv("DEVICE", string(model.DeviceAuto)),
		LogDirectory:      getEnv("LOG_DIR", ""),
		MaxUploadMB:       getEnvAsInt("MAX_UPLOAD_MB", 10),
		CanvasSize:        getEnvAsInt("CANVAS_SIZE", 280),
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if _, err := model.ParseDevice(c.Device); err != nil {
		return err
	}
	return nil
}

// ModelOptions resolves the device once for the model server.
func (c *Config) ModelOptions() (model.Options, error) {
	device, err := model.ParseDevice(c.Device)
	if err != nil {
		return model.Options{}, err
	}
	return model.Options{
		ModelPath:         c.ModelPath,
		MetadataPath:      c.MetadataPath,
		SharedLibraryPath: c.SharedLibraryPath,
		Device:            device,
	}, nil
}

// MaxUploadBytes caps request bodies and WebSocket messages.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}
