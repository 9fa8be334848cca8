package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Brownie44l1/digitpad/internal/logger"
	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/preprocess"
)

// fakeClassifier answers 1 when any ink reaches the tensor and 0 otherwise.
type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	last  preprocess.Tensor
	err   error
	size  int
}

func (f *fakeClassifier) Predict(t preprocess.Tensor) (*model.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = t
	if f.err != nil {
		return nil, f.err
	}

	digit := 0
	for _, v := range t.Data {
		if v > 0 {
			digit = 1
			break
		}
	}
	scores := make([]float32, 10)
	scores[digit] = 1
	return &model.Prediction{Digit: digit, Label: string(rune('0' + digit)), Confidence: 0.9, Scores: scores}, nil
}

func (f *fakeClassifier) Device() model.Device { return model.DeviceCPU }
func (f *fakeClassifier) Classes() int { return 10 }

func (f *fakeClassifier) ImageSize() int {
	if f.size == 0 {
		return preprocess.ImageSize
	}
	return f.size
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestHandler(f *fakeClassifier) *Handler {
	return NewHandler(f, logger.Discard(), 10<<20, 280)
}

func strokeBitmap() preprocess.Bitmap {
	b := preprocess.NewBitmap(280, 280)
	b.FillRect(120, 40, 160, 240, 0, 0, 0, 255)
	return b
}

func postJSON(t *testing.T, h http.HandlerFunc, body interface{}) (*httptest.ResponseRecorder, PredictionResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)

	var resp PredictionResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Invalid response JSON %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeClassifier{})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["status"] != "healthy" || body["device"] != "cpu" || body["classes"] != float64(10) {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestPredict_Stroke(t *testing.T) {
	f := &fakeClassifier{}
	h := newTestHandler(f)
	b := strokeBitmap()

	rec, resp := postJSON(t, h.Predict, PredictionRequest{Width: b.Width, Height: b.Height, Pixels: b.Pix})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Prediction == nil || resp.Digit != 1 || resp.Label != "1" {
		t.Errorf("Unexpected prediction %+v", resp.Prediction)
	}
	if !strings.HasPrefix(resp.Preview, "data:image/png;base64,") {
		t.Errorf("Expected PNG preview, got %.40q", resp.Preview)
	}
	if f.last.Shape != [4]int64{1, 1, 28, 28} {
		t.Errorf("Classifier got shape %v", f.last.Shape)
	}
}

func TestPredict_UsesModelImageSize(t *testing.T) {
	f := &fakeClassifier{size: 32}
	h := newTestHandler(f)
	b := strokeBitmap()

	rec, resp := postJSON(t, h.Predict, PredictionRequest{Width: b.Width, Height: b.Height, Pixels: b.Pix})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Prediction == nil || resp.Digit != 1 {
		t.Errorf("Unexpected prediction %+v", resp.Prediction)
	}
	if f.last.Shape != [4]int64{1, 1, 32, 32} || len(f.last.Data) != 32*32 {
		t.Errorf("Expected a 1x1x32x32 tensor, got %v with %d values", f.last.Shape, len(f.last.Data))
	}
}

func TestPredict_OversizedBitmap(t *testing.T) {
	f := &fakeClassifier{}
	h := newTestHandler(f)

	rec, resp := postJSON(t, h.Predict, map[string]interface{}{
		"width":  1,
		"height": int64(4611686018427387905),
		"pixels": "AAAAAA==",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if !strings.Contains(resp.Error, "malformed bitmap") {
		t.Errorf("Expected diagnostic, got %q", resp.Error)
	}
	if f.callCount() != 0 {
		t.Error("Classifier should not run for an oversized bitmap")
	}
}

func TestPredict_EmptyCanvasSkipsInference(t *testing.T) {
	f := &fakeClassifier{}
	h := newTestHandler(f)

	rec, resp := postJSON(t, h.Predict, map[string]interface{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !resp.Skipped || resp.Prediction != nil {
		t.Errorf("Expected skipped response, got %+v", resp)
	}
	if f.callCount() != 0 {
		t.Errorf("Classifier should not run for an empty canvas, ran %d times", f.callCount())
	}
}

func TestPredict_MalformedBitmap(t *testing.T) {
	f := &fakeClassifier{}
	h := newTestHandler(f)

	rec, resp := postJSON(t, h.Predict, PredictionRequest{Width: 280, Height: 280, Pixels: make([]byte, 280*280*3)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if !strings.Contains(resp.Error, "malformed bitmap") {
		t.Errorf("Expected diagnostic, got %q", resp.Error)
	}
	if f.callCount() != 0 {
		t.Error("Classifier should not run for a malformed bitmap")
	}
}

func TestPredict_BadRequests(t *testing.T) {
	h := newTestHandler(&fakeClassifier{})

	rec := httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestPredict_ClassifierError(t *testing.T) {
	h := newTestHandler(&fakeClassifier{err: errors.New("session closed")})
	b := strokeBitmap()

	rec, resp := postJSON(t, h.Predict, PredictionRequest{Width: b.Width, Height: b.Height, Pixels: b.Pix})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if resp.Error != "prediction failed" {
		t.Errorf("Unexpected error %q", resp.Error)
	}
}

func TestPredictFromImage(t *testing.T) {
	f := &fakeClassifier{}
	h := newTestHandler(f)

	img := image.NewNRGBA(image.Rect(0, 0, 280, 280))
	for y := 50; y < 230; y++ {
		for x := 130; x < 150; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "digit.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.PredictFromImage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp PredictionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Prediction == nil || resp.Digit != 1 {
		t.Errorf("Expected ink to reach the classifier, got %+v", resp)
	}
}

func TestPredictFromImage_MissingFile(t *testing.T) {
	h := newTestHandler(&fakeClassifier{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.PredictFromImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	h := newTestHandler(&fakeClassifier{})

	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `width="280"`) {
		t.Errorf("Canvas size not rendered")
	}

	rec = httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestEnableCORS(t *testing.T) {
	called := false
	wrapped := EnableCORS(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	wrapped(rec, httptest.NewRequest(http.MethodOptions, "/predict", nil))
	if called {
		t.Error("Preflight should not reach the handler")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}

	wrapped(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/predict", nil))
	if !called {
		t.Error("POST should reach the handler")
	}
}
