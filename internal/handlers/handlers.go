package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitpad/internal/logger"
	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/preprocess"
)

// Classifier is the model handle the handlers run drawings through.
type Classifier interface {
	Predict(t preprocess.Tensor) (*model.Prediction, error)
	Device() model.Device
	Classes() int
	ImageSize() int
}

// PredictionRequest carries one canvas capture. Pixels is base64 in JSON.
type PredictionRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

func (r PredictionRequest) Bitmap() preprocess.Bitmap {
	return preprocess.Bitmap{Width: r.Width, Height: r.Height, Pix: r.Pixels}
}

type PredictionResponse struct {
	Skipped bool `json:"skipped,omitempty"`
	*model.Prediction
	Preview string `json:"preview,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler struct {
	classifier  Classifier
	logger      *logger.Logger
	maxUpload   int64
	previewSize int
	options     preprocess.Options
	readTimeout time.Duration
	pingPeriod  time.Duration
}

func NewHandler(classifier Classifier, logger *logger.Logger, maxUpload int64, previewSize int) *Handler {
	options := preprocess.DefaultOptions()
	options.Size = classifier.ImageSize()

	return &Handler{
		classifier:  classifier,
		logger:      logger,
		maxUpload:   maxUpload,
		previewSize: previewSize,
		options:     options,
		readTimeout: readTimeout,
		pingPeriod:  pingPeriod,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"device":  h.classifier.Device(),
		"classes": h.classifier.Classes(),
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp, status := h.classify(req.Bitmap())
	writeJSON(w, status, resp)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}

	h.logger.Info("Received %s (%s, %dx%d)", header.Filename, format, img.Bounds().Dx(), img.Bounds().Dy())

	resp, status := h.classify(preprocess.BitmapFromImage(img))
	writeJSON(w, status, resp)
}

// classify runs one capture → tensor → prediction pass.
func (h *Handler) classify(b preprocess.Bitmap) (PredictionResponse, int) {
	if b.IsEmpty() {
		return PredictionResponse{Skipped: true}, http.StatusOK
	}

	tensor, err := preprocess.PreprocessWith(b, h.options)
	switch {
	case errors.Is(err, preprocess.ErrEmptyBitmap):
		return PredictionResponse{Skipped: true}, http.StatusOK
	case err != nil:
		h.logger.Warning("Rejected bitmap: %v", err)
		return PredictionResponse{Error: err.Error()}, http.StatusBadRequest
	}

	prediction, err := h.classifier.Predict(tensor)
	if err != nil {
		h.logger.Error("Prediction error: %v", err)
		return PredictionResponse{Error: "prediction failed"}, http.StatusInternalServerError
	}

	preview, err := encodePreview(tensor, h.previewSize)
	if err != nil {
		h.logger.Warning("Preview encoding failed: %v", err)
	}

	return PredictionResponse{Prediction: prediction, Preview: preview}, http.StatusOK
}

func encodePreview(t preprocess.Tensor, size int) (string, error) {
	if size <= 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Preview(size)); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
