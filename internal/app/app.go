package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitpad/internal/config"
	"github.com/Brownie44l1/digitpad/internal/handlers"
	"github.com/Brownie44l1/digitpad/internal/logger"
	"github.com/Brownie44l1/digitpad/internal/model"
)

type App struct {
	config      *config.Config
	logger      *logger.Logger
	modelServer *model.Server
	server      *http.Server
}

// New loads the model once; any failure here is meant to stop the process.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts, err := cfg.ModelOptions()
	if err != nil {
		return nil, err
	}

	log.Info("Loading model from: %s", cfg.ModelPath)
	modelServer, err := model.NewServer(opts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model server: %w", err)
	}

	handler := handlers.NewHandler(modelServer, log, cfg.MaxUploadBytes(), cfg.CanvasSize)

	return &App{
		config:      cfg,
		logger:      log,
		modelServer: modelServer,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           Routes(handler),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Routes registers the UI and API endpoints.
func Routes(handler *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handler.Index)
	mux.HandleFunc("/ws", handler.Stream)
	mux.HandleFunc("/health", handlers.EnableCORS(handler.Health))
	mux.HandleFunc("/predict", handlers.EnableCORS(handler.Predict))
	mux.HandleFunc("/predict/image", handlers.EnableCORS(handler.PredictFromImage))

	return mux
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Server starting on port %d", a.config.Port)
	a.logger.Info("Model: %s on %s, classes: %v", a.config.ModelPath, a.modelServer.Device(), a.modelServer.Metadata.Classes)
	a.logger.Info("Endpoints:")
	a.logger.Info("  GET  /              - Drawing canvas")
	a.logger.Info("  GET  /ws            - Live predictions over WebSocket")
	a.logger.Info("  GET  /health        - Health check")
	a.logger.Info("  POST /predict       - Raw RGBA bitmap prediction")
	a.logger.Info("  POST /predict/image - Predict from image upload")

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.logger.Info("Shutting down")
	return a.server.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	a.modelServer.Close()
}
